package pipeflow

import (
	"context"
	"testing"
)

func TestPlan_OrdersNodesByDependency(t *testing.T) {
	resetRegistries()

	// b depends on a's output, even though declared first.
	b := NewNode("b", []string{"mid"}, []string{"final"}, noop, "")
	a := NewNode("a", []string{"raw"}, []string{"mid"}, noop, "")

	p := NewPipeline("p1", []*Node{b, a}, "", Config{}, nil)
	err := p.Plan(context.Background(), PlanOptions{PreKnown: []string{"raw"}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	order := p.ExecOrder()
	if len(order) != 2 || order[0].Name != "a" || order[1].Name != "b" {
		t.Fatalf("ExecOrder = %v, want [a b]", names(order))
	}
}

func TestPlan_DuplicateOutputRejected(t *testing.T) {
	resetRegistries()
	n1 := NewNode("n1", nil, []string{"out"}, noop, "")
	n2 := NewNode("n2", nil, []string{"out"}, noop, "")

	p := NewPipeline("p2", []*Node{n1, n2}, "", Config{}, nil)
	err := p.Plan(context.Background(), PlanOptions{})
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
}

func TestPlan_StrandedNodeIsConfigError(t *testing.T) {
	resetRegistries()
	n := NewNode("n", []string{"never_bound"}, []string{"out"}, noop, "")

	p := NewPipeline("p3", []*Node{n}, "", Config{}, nil)
	err := p.Plan(context.Background(), PlanOptions{})
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError for stranded node, got %v", err)
	}
}

func TestPlan_CycleIsConfigError(t *testing.T) {
	resetRegistries()
	n1 := NewNode("n1", []string{"y"}, []string{"x"}, noop, "")
	n2 := NewNode("n2", []string{"x"}, []string{"y"}, noop, "")

	p := NewPipeline("p4", []*Node{n1, n2}, "", Config{}, nil)
	err := p.Plan(context.Background(), PlanOptions{})
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError for cycle, got %v", err)
	}
}

func TestPlan_IsIdempotent(t *testing.T) {
	resetRegistries()
	n := NewNode("n", []string{"raw"}, []string{"out"}, noop, "")
	p := NewPipeline("p5", []*Node{n}, "", Config{}, nil)

	opts := PlanOptions{PreKnown: []string{"raw"}}
	if err := p.Plan(context.Background(), opts); err != nil {
		t.Fatalf("first Plan: %v", err)
	}
	if err := p.Plan(context.Background(), opts); err != nil {
		t.Fatalf("second Plan: %v", err)
	}
	if len(p.ExecOrder()) != 1 {
		t.Fatalf("ExecOrder accumulated across replans: %v", names(p.ExecOrder()))
	}
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
