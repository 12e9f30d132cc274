package pipeflow

import "testing"

func noop(args []any) ([]any, error) { return args, nil }

func TestNewNode_Registration(t *testing.T) {
	resetRegistries()

	n := NewNode("double", []string{"x"}, []string{"y"}, noop, "doubles x")
	if got := len(Nodes()); got != 1 {
		t.Fatalf("Nodes() len = %d, want 1", got)
	}
	got, err := GetNode("double")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got != n {
		t.Fatalf("GetNode returned a different *Node")
	}
}

func TestNewNode_PanicsOnDuplicateName(t *testing.T) {
	resetRegistries()
	NewNode("a", nil, []string{"out"}, noop, "")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate node name")
		}
	}()
	NewNode("a", nil, []string{"out2"}, noop, "")
}

func TestNewNode_PanicsOnDuplicateInput(t *testing.T) {
	resetRegistries()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate input name")
		}
	}()
	NewNode("a", []string{"x", "x"}, []string{"y"}, noop, "")
}

func TestNewNode_PanicsOnNilFunc(t *testing.T) {
	resetRegistries()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on nil func")
		}
	}()
	NewNode("a", nil, []string{"y"}, nil, "")
}

func TestGetNode_NotFoundSuggestsClosestName(t *testing.T) {
	resetRegistries()
	NewNode("transform", nil, []string{"out"}, noop, "")

	_, err := GetNode("transfrom")
	nf, ok := err.(*NotFoundError)
	if !ok {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	if nf.Suggestion != "transform" {
		t.Errorf("Suggestion = %q, want %q", nf.Suggestion, "transform")
	}
}
