package pipeflow

import (
	"context"
	"testing"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pipeflow/pipeflow/pkg/catalog"
)

// wiredPipeline builds a single-node pipeline with both an input handler
// (for "raw") and an output handler (for "out") directly wired, bypassing
// Plan/catalog resolution, so runItem's save path can be exercised without
// a real on-disk backend.
func wiredPipeline(t *testing.T, name string, master, sink catalog.Handler, fn NodeFunc) *Pipeline {
	t.Helper()
	n := NewNode(name+"_node", []string{"raw"}, []string{"out"}, fn, "")
	p := NewPipeline(name, []*Node{n}, "", Config{}, nil)
	p.inputHandlers = orderedmap.New[string, catalog.Handler]()
	p.inputHandlers.Set("raw", master)
	p.outputHandlers = orderedmap.New[string, catalog.Handler]()
	p.outputHandlers.Set("out", sink)
	p.execOrder = []*Node{n}
	p.planned = true
	return p
}

func TestRunItemTraced_SavesRawMapOutputUnwrapped(t *testing.T) {
	resetRegistries()

	master := newMemHandler(map[any]catalog.Item{
		"a": {"v": "a"},
	}, []any{"a"})
	sink := newMemHandler(map[any]catalog.Item{}, nil)

	fn := func(args []any) ([]any, error) {
		return []any{map[string]any{"transformed": args[0].(map[string]any)["v"]}}, nil
	}
	p := wiredPipeline(t, "save_pipeline", master, sink, fn)

	params := orderedmap.New[string, any]()
	res := p.runItem(context.Background(), "a", params)
	if res.Outcome != outcomeDone {
		t.Fatalf("Outcome = %v, want outcomeDone (err=%v)", res.Outcome, res.Err)
	}

	if len(sink.items) != 1 {
		t.Fatalf("handler.Save was called %d times, want exactly 1 (saved-vs-produced conservation)", len(sink.items))
	}
	for _, saved := range sink.items {
		if saved["transformed"] != "a" {
			t.Errorf("saved item = %+v, want the node's raw output passed straight through, not wrapped under the output name", saved)
		}
		if _, wrapped := saved["out"]; wrapped {
			t.Errorf("saved item = %+v, unexpectedly wrapped under the output name %q", saved, "out")
		}
	}
}

func TestRunItemTraced_NonMapOutputToHandlerFails(t *testing.T) {
	resetRegistries()

	master := newMemHandler(map[any]catalog.Item{
		"a": {"v": "a"},
	}, []any{"a"})
	sink := newMemHandler(map[any]catalog.Item{}, nil)

	fn := func(args []any) ([]any, error) {
		return []any{"a scalar string, not a map"}, nil
	}
	p := wiredPipeline(t, "scalar_pipeline", master, sink, fn)

	params := orderedmap.New[string, any]()
	res := p.runItem(context.Background(), "a", params)

	if res.Outcome != outcomeFailed {
		t.Fatalf("Outcome = %v, want outcomeFailed for a scalar output wired to a catalog handler", res.Outcome)
	}
	if res.Err == nil {
		t.Fatal("Err = nil, want a save-time error describing the non-map value")
	}
	if len(sink.items) != 0 {
		t.Errorf("handler.Save was called with a rejected value; sink has %d items, want 0", len(sink.items))
	}
}
