package pipeflow

import (
	"context"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pipeflow/pipeflow/pkg/catalog"
	"github.com/pipeflow/pipeflow/pkg/logging"
)

// PlanOptions configures one Plan call. PreKnown supplies names considered
// already bound before any node runs, for callers that supply those inputs
// directly instead of reading them from a catalog dataset. InitHandlers,
// when false, skips resolving catalog datasets to Handlers.
type PlanOptions struct {
	PreKnown     []string
	InitHandlers bool
}

// Plan validates the pipeline's declared dataflow (spec.md §4.3) and
// computes its execution order. It is idempotent: every call resets
// ExecOrder/input and output handlers before rebuilding, so replanning a
// pipeline (e.g. after the catalog changes on disk) is always safe.
//
// Plan returns a *ConfigError for: a duplicate output name across nodes,
// an output name that collides with a parameter or with a pipeline-level
// catalog input, an unsatisfiable node (its inputs can never all become
// known), or a cycle in the producer→consumer graph.
func (p *Pipeline) Plan(ctx context.Context, opts PlanOptions) error {
	log := logging.FromContext(ctx)
	log.Debug("calculating pipeline execution order", "pipeline", p.Name)

	p.execOrder = nil
	p.inputHandlers = orderedmap.New[string, catalog.Handler]()
	p.outputHandlers = orderedmap.New[string, catalog.Handler]()
	p.planned = false

	// Step 1: reject duplicate output names.
	outputs := make(map[string]struct{})
	for _, n := range p.Nodes {
		for _, out := range n.Outputs {
			if _, dup := outputs[out]; dup {
				return newConfigError(p.Name, "multiple nodes produce output "+quote(out))
			}
			outputs[out] = struct{}{}
		}
	}

	catalogDatasets, err := p.catalogList()
	if err != nil {
		return err
	}
	catalogSet := toSet(catalogDatasets)

	// Step 2: which outputs land in the catalog.
	catalogOutputs := make(map[string]struct{})
	for out := range outputs {
		if _, ok := catalogSet[out]; ok {
			catalogOutputs[out] = struct{}{}
		}
	}

	// Step 3: no output may be a parameter name.
	paramNames, err := p.catalogParamNames()
	if err != nil {
		return err
	}
	for out := range catalogOutputs {
		if _, ok := paramNames["params:"+out]; ok {
			return newConfigError(p.Name, "output "+quote(out)+" cannot also be a parameter")
		}
	}
	for out := range outputs {
		if strings.HasPrefix(out, "params:") {
			return newConfigError(p.Name, "output "+quote(out)+" cannot be a parameter name")
		}
	}

	// Step 4: inputs read straight from the catalog must not collide with
	// any node's output.
	inputsFromCatalog := make(map[string]struct{})
	for _, n := range p.Nodes {
		for _, in := range n.Inputs {
			if _, ok := catalogSet[in]; ok {
				inputsFromCatalog[in] = struct{}{}
			}
		}
	}
	for in := range inputsFromCatalog {
		if _, ok := outputs[in]; ok {
			return newConfigError(p.Name, "output "+quote(in)+" is also a pipeline input; a node cannot read a dataset another node writes")
		}
	}

	// Step 5: seed the known set.
	known := make(map[string]struct{})
	for _, k := range opts.PreKnown {
		known[k] = struct{}{}
	}
	for k := range inputsFromCatalog {
		known[k] = struct{}{}
	}
	for name := range paramNames {
		known[name] = struct{}{}
	}

	// Step 6: resolve handlers (skippable for RunOnce callers).
	if opts.InitHandlers {
		for in := range inputsFromCatalog {
			h, err := p.catalogGet(in)
			if err != nil {
				return err
			}
			p.inputHandlers.Set(in, h)
		}
		// Deterministic iteration for handler setup, even though the
		// final outputHandlers map is keyed by name anyway.
		names := setToSortedSlice(catalogOutputs)
		for _, out := range names {
			h, err := p.catalogGet(out)
			if err != nil {
				return err
			}
			p.outputHandlers.Set(out, h)
		}
	}

	// Step 7: fixed-point topological scan, ties broken by declaration
	// order; bounded by len(Nodes) to also catch cycles.
	remaining := append([]*Node(nil), p.Nodes...)
	maxIter := len(p.Nodes)
	iter := 0
	for len(remaining) > 0 {
		var placed []*Node
		var stillRemaining []*Node
		for _, n := range remaining {
			if subsetOf(n.Inputs, known) {
				placed = append(placed, n)
			} else {
				stillRemaining = append(stillRemaining, n)
			}
		}
		if len(placed) == 0 {
			var names []string
			for _, n := range remaining {
				names = append(names, n.Name)
			}
			return newConfigError(p.Name, "pipeline does not have enough inputs to run completely; stranded nodes: "+strings.Join(names, ", "))
		}
		p.execOrder = append(p.execOrder, placed...)
		for _, n := range placed {
			for _, out := range n.Outputs {
				known[out] = struct{}{}
			}
		}
		remaining = stillRemaining

		iter++
		if iter > maxIter {
			var names []string
			for _, n := range remaining {
				names = append(names, n.Name)
			}
			return newConfigError(p.Name, "pipeline contains a cycle involving: "+strings.Join(names, ", "))
		}
	}

	// Step 8: warn about outputs neither persisted nor consumed.
	consumed := make(map[string]struct{})
	for _, n := range p.Nodes {
		for _, in := range n.Inputs {
			consumed[in] = struct{}{}
		}
	}
	for out := range outputs {
		if out == "_" {
			continue // conventionally "unused"; never warned about
		}
		_, saved := catalogOutputs[out]
		_, used := consumed[out]
		if !saved && !used {
			log.Warn("output is never used nor saved", "pipeline", p.Name, "output", out)
		}
	}

	p.planned = true
	return nil
}

func (p *Pipeline) catalogList() ([]string, error) {
	if p.catalog == nil {
		return nil, nil
	}
	return p.catalog.List()
}

func (p *Pipeline) catalogGet(name string) (catalog.Handler, error) {
	if p.catalog == nil {
		return nil, newConfigError(p.Name, "no catalog configured; cannot resolve dataset "+quote(name))
	}
	h, err := p.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p *Pipeline) catalogParamNames() (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if p.catalog == nil {
		return out, nil
	}
	params, err := p.catalog.Parameters()
	if err != nil {
		return nil, err
	}
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		out["params:"+pair.Key] = struct{}{}
	}
	return out, nil
}

func quote(s string) string { return "'" + s + "'" }

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, i := range items {
		out[i] = struct{}{}
	}
	return out
}

func subsetOf(items []string, set map[string]struct{}) bool {
	for _, i := range items {
		if _, ok := set[i]; !ok {
			return false
		}
	}
	return true
}

func setToSortedSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
