package pipeflow

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pipeflow/pipeflow/pkg/catalog"
)

// Engine selects how a Pipeline's dispatch loop spreads work across master
// keys.
type Engine int

const (
	// Sequential runs one master key at a time, inline, with no worker
	// pool at all. Run uses the sequential loop whenever the resolved
	// worker count is 1, whatever Engine says; with a larger MaxWorkers, an
	// Engine of Sequential runs as SharedMemoryParallel.
	Sequential Engine = iota
	// SharedMemoryParallel runs a bounded pool of goroutines sharing this
	// process's address space.
	SharedMemoryParallel
	// IsolatedProcessParallel runs a bounded pool of OS subprocesses, each
	// with its own address space and its own re-opened handlers.
	IsolatedProcessParallel
)

func (e Engine) String() string {
	switch e {
	case Sequential:
		return "sequential"
	case SharedMemoryParallel:
		return "shared-memory-parallel"
	case IsolatedProcessParallel:
		return "isolated-process-parallel"
	default:
		return "unknown"
	}
}

// AutoWorkers is the MaxWorkers sentinel meaning "use every logical CPU",
// equivalent to the original's max_workers=None / "auto" string and to the
// teacher's ConcurrencyAuto constant.
const AutoWorkers = -1

// Config configures a Pipeline's dispatch behavior. The zero value selects
// sequential execution with one worker and no error tolerance.
type Config struct {
	// MaxWorkers is a positive worker count, AutoWorkers, or 0/unset
	// (treated as 1 — sequential). A value less than AutoWorkers is a
	// configuration error raised by NewPipeline.
	MaxWorkers int
	// Engine selects the dispatch engine used when the resolved worker
	// count is above 1.
	Engine Engine
	// ErrorTolerant, when true, lets per-item *Error failures be logged
	// and skipped rather than aborting the pipeline. StopPipeline always
	// wins regardless of this setting.
	ErrorTolerant bool
}

// Pipeline is a named, ordered set of Nodes plus its dispatch
// configuration. Call Plan before Run to validate the dataflow and
// compute the execution order; Run calls Plan itself if it hasn't been
// called yet.
type Pipeline struct {
	Name        string
	Description string
	Nodes       []*Node
	Config      Config

	catalog *catalog.Catalog

	execOrder      []*Node
	inputHandlers  *orderedmap.OrderedMap[string, catalog.Handler]
	outputHandlers *orderedmap.OrderedMap[string, catalog.Handler]
	planned        bool
}

var pipelineRegistry = orderedmap.New[string, *Pipeline]()

// Pipelines returns every registered Pipeline, in registration order.
func Pipelines() []*Pipeline {
	out := make([]*Pipeline, 0, pipelineRegistry.Len())
	for pair := pipelineRegistry.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// GetPipeline looks a pipeline up by name.
func GetPipeline(name string) (*Pipeline, error) {
	if p, ok := pipelineRegistry.Get(name); ok {
		return p, nil
	}
	names := make([]string, 0, pipelineRegistry.Len())
	for pair := pipelineRegistry.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return nil, &NotFoundError{Kind: "pipeline", Key: name, Suggestion: closestName(name, names)}
}

// NewPipeline validates and registers a Pipeline. cat is the catalog
// facade used to resolve dataset inputs/outputs and parameters; it may be
// nil for pipelines that read no catalog dataset (Plan then sees no
// datasets and no parameters).
func NewPipeline(name string, nodes []*Node, description string, cfg Config, cat *catalog.Catalog) *Pipeline {
	if name == "" {
		panic("pipeflow: pipeline name cannot be empty")
	}
	if _, exists := pipelineRegistry.Get(name); exists {
		panic(fmt.Sprintf("pipeflow: pipeline name %q is not unique", name))
	}
	if cfg.MaxWorkers < AutoWorkers {
		panic("pipeflow: MaxWorkers must be a positive integer or AutoWorkers")
	}

	p := &Pipeline{
		Name:        name,
		Description: description,
		Nodes:       append([]*Node(nil), nodes...),
		Config:      cfg,
		catalog:     cat,
	}
	pipelineRegistry.Set(name, p)
	return p
}

func (p *Pipeline) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "----- Pipeline: %s -----\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
		fmt.Fprintf(&b, "%s\n\n", strings.Repeat("-", 22+len(p.Name)))
	}
	parts := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		parts[i] = n.String()
	}
	b.WriteString(strings.Join(parts, "\n"))
	b.WriteString("\n")
	return b.String()
}

// ExecOrder returns the topological node order computed by the last Plan
// call. Empty until Plan has run.
func (p *Pipeline) ExecOrder() []*Node {
	return append([]*Node(nil), p.execOrder...)
}
