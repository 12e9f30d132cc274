// Package progress renders a textual progress indicator for a running
// pipeline: a bar with percentage/elapsed/remaining when the total item
// count is known, an oscillating indicator with an items/second estimate
// otherwise. It is entirely optional — a disabled Bar's methods are all
// no-ops, so callers never need to branch on whether progress is shown.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
)

const barWidth = 30

// Bar renders one pipeline's progress to an io.Writer, one line rewritten
// in place. Total < 0 means "unknown": the bar switches to an oscillating
// indicator and an items/second rate instead of a percentage/remaining
// estimate.
type Bar struct {
	mu      sync.Mutex
	prefix  string
	total   int
	w       io.Writer
	enabled bool
	ascii   bool

	count     int
	started   time.Time
	lastWrite time.Time
	oscDir    int
	oscPos    int
}

// New returns a Bar for prefix, tracking up to total items (use a negative
// total when the count is unknown ahead of time). enabled lets callers
// thread a project-level "show_progress: false" straight through without
// branching at every call site; when false, every method is a no-op.
func New(prefix string, total int, enabled bool) *Bar {
	return NewWithWriter(prefix, total, enabled, os.Stderr)
}

// NewWithWriter is New with an explicit writer, used by tests to capture
// rendered output instead of writing to the real stderr.
func NewWithWriter(prefix string, total int, enabled bool, w io.Writer) *Bar {
	ascii := true
	if f, ok := w.(*os.File); ok {
		ascii = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return &Bar{
		prefix:  prefix,
		total:   total,
		w:       w,
		enabled: enabled,
		ascii:   ascii,
		started: nowOrZero(),
		oscDir:  1,
	}
}

// nowOrZero exists only so a future caller could inject a fixed clock for
// deterministic tests; today it simply calls time.Now.
func nowOrZero() time.Time { return time.Now() }

// Increment advances the bar by n items (n is usually 1) and re-renders
// the current line.
func (b *Bar) Increment(n int) {
	if b == nil || !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count += n
	b.render()
}

// Close finalizes the bar, writing a trailing newline so subsequent log
// lines don't collide with the in-place progress line.
func (b *Bar) Close() {
	if b == nil || !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.render()
	fmt.Fprint(b.w, "\n")
}

func (b *Bar) render() {
	now := time.Now()
	elapsed := now.Sub(b.started)

	var line string
	if b.total >= 0 {
		pct := 0.0
		if b.total > 0 {
			pct = float64(b.count) / float64(b.total) * 100
		}
		filled := 0
		if b.total > 0 {
			filled = int(float64(barWidth) * float64(b.count) / float64(b.total))
		}
		if filled > barWidth {
			filled = barWidth
		}
		bar := b.drawBar(filled)
		remaining := estimateRemaining(b.count, b.total, elapsed)
		line = fmt.Sprintf("%s |%s| %5.1f%% | %d/%d | elapsed %s | remaining %s",
			b.prefix, bar, pct, b.count, b.total, fmtDuration(elapsed), fmtDuration(remaining))
	} else {
		rate := 0.0
		if elapsed.Seconds() > 0 {
			rate = float64(b.count) / elapsed.Seconds()
		}
		line = fmt.Sprintf("%s %s %d items | %.1f/s | elapsed %s",
			b.prefix, b.oscillate(), b.count, rate, fmtDuration(elapsed))
	}

	line = sanitizeForWriter(line, b.w)
	fmt.Fprintf(b.w, "\r%s", line)
	b.lastWrite = now
}

func (b *Bar) drawBar(filled int) string {
	fullCh, emptyCh := "█", "░"
	if b.ascii {
		fullCh, emptyCh = "#", "-"
	}
	return strings.Repeat(fullCh, filled) + strings.Repeat(emptyCh, barWidth-filled)
}

// oscillate returns a single moving marker bouncing between the ends of a
// fixed-width track, used when the total item count is unknown.
func (b *Bar) oscillate() string {
	track := make([]byte, barWidth)
	for i := range track {
		track[i] = '-'
	}
	if b.oscPos >= barWidth {
		b.oscPos = barWidth - 1
	}
	if b.oscPos < 0 {
		b.oscPos = 0
	}
	track[b.oscPos] = '>'

	b.oscPos += b.oscDir
	if b.oscPos >= barWidth-1 || b.oscPos <= 0 {
		b.oscDir = -b.oscDir
	}
	return "[" + string(track) + "]"
}

func estimateRemaining(count, total int, elapsed time.Duration) time.Duration {
	if count == 0 {
		return 0
	}
	perItem := elapsed / time.Duration(count)
	left := total - count
	if left < 0 {
		left = 0
	}
	return perItem * time.Duration(left)
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// sanitizeForWriter replaces invalid UTF-8 sequences in s with '?' when w
// is not an *os.File (such as a buffer feeding a legacy log shipper);
// valid UTF-8 passes through unchanged. Such writers already get the ASCII
// bar glyphs from NewWithWriter, so the block characters never reach them.
func sanitizeForWriter(s string, w io.Writer) string {
	if _, ok := w.(*os.File); ok {
		return s
	}
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "?")
}
