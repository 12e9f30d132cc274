package pipeflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/pipeflow/pipeflow/pkg/catalog"
	"github.com/pipeflow/pipeflow/pkg/logging"
)

// itemOutcome classifies how a single master key's run through a planned
// pipeline ended.
type itemOutcome int

const (
	outcomeDone itemOutcome = iota
	outcomeSkipped
	outcomeStopped
	outcomeFailed
)

// itemResult carries an outcome plus whatever signal or error produced it.
type itemResult struct {
	Outcome itemOutcome
	Skip    *SkipItem
	Stop    *StopPipeline
	Err     error
}

// bindings is the per-item name → value map the executor assembles and
// mutates as execOrder's nodes run. Keys live in the three namespaces
// spec.md describes: "params:<dotted.path>", a catalog dataset name, or a
// free binding produced by an earlier node.
type bindings map[string]any

// runItem executes every node in p.execOrder for one master key, per
// spec.md §4.4's four-step protocol. params is the flattened parameter
// snapshot; it is read-only and shared across every concurrently running
// item, so the caller must not mutate it during dispatch.
func (p *Pipeline) runItem(ctx context.Context, key any, params catalog.FlatParams) itemResult {
	log := logging.FromContext(ctx)

	ctx, itemSpan := startItemSpan(ctx, p.Name, key)
	result := p.runItemTraced(ctx, log, key, params)
	endSpan(itemSpan, result.Err)
	return result
}

func (p *Pipeline) runItemTraced(ctx context.Context, log *slog.Logger, key any, params catalog.FlatParams) itemResult {
	b := make(bindings, params.Len())
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		b["params:"+pair.Key] = pair.Value
	}

	for pair := p.inputHandlers.Oldest(); pair != nil; pair = pair.Next() {
		item, err := pair.Value.Get(ctx, key)
		if err != nil {
			return classifyNodeErr(p.Name, "<input:"+pair.Key+">", key, err)
		}
		b[pair.Key] = map[string]any(item)
	}

	for _, n := range p.execOrder {
		args := make([]any, len(n.Inputs))
		for i, in := range n.Inputs {
			args[i] = cloneValue(b[in])
		}

		nodeCtx, nodeSpan := startNodeSpan(ctx, n.Name)
		ret, err := invokeNode(nodeCtx, n, args)
		endSpan(nodeSpan, err)
		if err != nil {
			return classifyNodeErr(p.Name, n.Name, key, err)
		}

		normalized, err := normalizeArity(n, ret)
		if err != nil {
			return itemResult{Outcome: outcomeFailed, Err: err}
		}

		for i, out := range n.Outputs {
			b[out] = normalized[i]
		}

		for i, out := range n.Outputs {
			if h, ok := p.outputHandlers.Get(out); ok {
				// Pass the node's raw bound output straight to Save, per
				// spec.md §4.4 step 4 ("handler.save(bindings[output])")
				// and the original's known_inputs[output_name] call. Go's
				// Handler.Save is statically typed to catalog.Item, so a
				// non-map output can't reach it unconverted the way Python
				// would hand JsonMulti.save an arbitrary object; instead
				// that case is reported as the same save-time failure a
				// handler would raise for a non-dict argument.
				m, ok := normalized[i].(map[string]any)
				if !ok {
					return classifyNodeErr(p.Name, n.Name, key,
						fmt.Errorf("output %q: handler requires a map[string]any value to save, got %T", out, normalized[i]))
				}
				if err := h.Save(ctx, catalog.Item(m)); err != nil {
					return classifyNodeErr(p.Name, n.Name, key, err)
				}
			}
		}
		log.Debug("node executed", "pipeline", p.Name, "node", n.Name, "master_key", key)
	}

	return itemResult{Outcome: outcomeDone}
}

// invokeNode calls the node function, recovering a panic into an error the
// same way the original wrapped an uncaught Python exception: no
// per-item crash should ever take the whole process down.
func invokeNode(ctx context.Context, n *Node, args []any) (ret []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node %q panicked: %v\n%s", n.Name, r, captureStack())
		}
	}()
	return n.Func(args)
}

// captureStack renders the goroutine's current call stack, mirroring the
// original's log.error(traceback.format_exc()) for a panicking node.
func captureStack() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var b []byte
	for {
		frame, more := frames.Next()
		b = append(b, fmt.Sprintf("\t%s\n\t\t%s:%d\n", frame.Function, frame.File, frame.Line)...)
		if !more {
			break
		}
	}
	return string(b)
}

// normalizeArity implements spec.md §4.4 step 3c exactly: a non-slice
// return is wrapped as one value; a declared arity of 1 always takes the
// whole return verbatim (even if the node happens to return a slice); any
// other arity mismatch with a declared arity > 1 is an ArityMismatchError.
func normalizeArity(n *Node, ret []any) ([]any, error) {
	declared := len(n.Outputs)

	if declared == 1 {
		return []any{wholeReturn(ret)}, nil
	}

	if len(ret) != declared {
		return nil, &ArityMismatchError{Node: n.Name, Declared: declared, Got: len(ret)}
	}
	return ret, nil
}

// wholeReturn collapses a NodeFunc's []any return back to the single value
// a declared-arity-1 node actually produced. NodeFunc always returns
// []any, so a scalar return from the node author's perspective arrives
// here as a one-element slice; anything else (zero or >1 elements) is
// itself "the whole return" per spec.md's arity-1 rule.
func wholeReturn(ret []any) any {
	if len(ret) == 1 {
		return ret[0]
	}
	out := make([]any, len(ret))
	copy(out, ret)
	return out
}

// classifyNodeErr implements spec.md §4.4 step 4: SkipItem only halts this
// item, StopPipeline halts the item and signals the dispatcher, anything
// else becomes a tolerated-or-fatal generic *Error.
func classifyNodeErr(pipeline, node string, key any, err error) itemResult {
	var skip *SkipItem
	if errors.As(err, &skip) {
		return itemResult{Outcome: outcomeSkipped, Skip: skip}
	}
	var stop *StopPipeline
	if errors.As(err, &stop) {
		return itemResult{Outcome: outcomeStopped, Stop: stop}
	}
	return itemResult{Outcome: outcomeFailed, Err: wrapItemError(pipeline, node, key, err)}
}

// flattenItemToBindings exposes the bindings a freshly-Get item contributes,
// the same entry runItem builds for each input handler. Nothing in the
// package calls it: the isolated-process worker (isolated.go) goes through
// runItem directly.
func flattenItemToBindings(name string, item catalog.Item) bindings {
	b := make(bindings, 1)
	b[name] = map[string]any(item)
	return b
}
