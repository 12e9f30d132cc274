package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFmtDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}
	for _, tt := range cases {
		if got := fmtDuration(tt.d); got != tt.want {
			t.Errorf("fmtDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestEstimateRemaining(t *testing.T) {
	remaining := estimateRemaining(5, 10, 10*time.Second)
	if remaining != 10*time.Second {
		t.Errorf("estimateRemaining(5, 10, 10s) = %v, want 10s", remaining)
	}

	if got := estimateRemaining(0, 10, 5*time.Second); got != 0 {
		t.Errorf("estimateRemaining with count=0 should be 0, got %v", got)
	}

	if got := estimateRemaining(10, 10, 10*time.Second); got != 0 {
		t.Errorf("estimateRemaining at total should be 0, got %v", got)
	}
}

func TestBar_DisabledIsANoOp(t *testing.T) {
	var buf bytes.Buffer
	b := NewWithWriter("job", 10, false, &buf)
	b.Increment(5)
	b.Close()

	if buf.Len() != 0 {
		t.Errorf("disabled bar wrote %q, want no output", buf.String())
	}
}

func TestBar_EnabledRendersPercentageAndCounts(t *testing.T) {
	var buf bytes.Buffer
	b := NewWithWriter("job", 10, true, &buf)
	b.Increment(5)

	out := buf.String()
	if !strings.Contains(out, "job") {
		t.Errorf("rendered line missing prefix: %q", out)
	}
	if !strings.Contains(out, "5/10") {
		t.Errorf("rendered line missing count, got %q", out)
	}
	if !strings.Contains(out, "50.0%") {
		t.Errorf("rendered line missing percentage, got %q", out)
	}
}

func TestBar_UnknownTotalUsesOscillatingIndicator(t *testing.T) {
	var buf bytes.Buffer
	b := NewWithWriter("job", -1, true, &buf)
	b.Increment(3)

	out := buf.String()
	if !strings.Contains(out, "3 items") {
		t.Errorf("rendered line missing item count, got %q", out)
	}
	if strings.Contains(out, "%") {
		t.Errorf("unknown-total bar should not render a percentage, got %q", out)
	}
}

func TestBar_CloseWritesTrailingNewline(t *testing.T) {
	var buf bytes.Buffer
	b := NewWithWriter("job", 10, true, &buf)
	b.Close()

	if !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("Close should end with a newline, got %q", buf.String())
	}
}

func TestBar_NilReceiverMethodsAreNoOps(t *testing.T) {
	var b *Bar
	b.Increment(1)
	b.Close()
}
