package pipeflow

import (
	"context"
	"testing"
)

func oneNodePipeline(t *testing.T, name string, fn NodeFunc) *Pipeline {
	t.Helper()
	n := NewNode(name+"_node", nil, []string{"out"}, fn, "")
	return NewPipeline(name, []*Node{n}, "", Config{}, nil)
}

func TestSystem_RunsPipelinesInOrder(t *testing.T) {
	resetRegistries()

	var ran []string
	record := func(name string) NodeFunc {
		return func(args []any) ([]any, error) {
			ran = append(ran, name)
			return []any{nil}, nil
		}
	}

	p1 := oneNodePipeline(t, "first", record("first"))
	p2 := oneNodePipeline(t, "second", record("second"))
	sys := NewSystem("etl", []*Pipeline{p1, p2}, "")

	if err := sys.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ran) != 2 || ran[0] != "first" || ran[1] != "second" {
		t.Fatalf("run order = %v, want [first second]", ran)
	}
}

func TestSystem_StopsAtFirstFailure(t *testing.T) {
	resetRegistries()

	var ran []string
	failing := func(args []any) ([]any, error) {
		ran = append(ran, "failing")
		return nil, NewStopPipeline(nil, "stop here")
	}
	neverRuns := func(args []any) ([]any, error) {
		ran = append(ran, "never")
		return []any{nil}, nil
	}

	p1 := oneNodePipeline(t, "first", failing)
	p2 := oneNodePipeline(t, "second", neverRuns)
	sys := NewSystem("etl2", []*Pipeline{p1, p2}, "")

	err := sys.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error from the failing pipeline")
	}
	if len(ran) != 1 || ran[0] != "failing" {
		t.Fatalf("ran = %v, want only [failing]", ran)
	}
}

func TestNewSystem_PanicsOnEmptyPipelines(t *testing.T) {
	resetRegistries()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty pipeline list")
		}
	}()
	NewSystem("empty", nil, "")
}
