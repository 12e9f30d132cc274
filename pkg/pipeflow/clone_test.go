package pipeflow

import (
	"reflect"
	"testing"
)

func TestCloneValue_MapIsIndependent(t *testing.T) {
	original := map[string]any{"a": 1, "nested": map[string]any{"b": 2}}

	cloned := cloneValue(original).(map[string]any)
	cloned["a"] = 999
	cloned["nested"].(map[string]any)["b"] = 999

	if original["a"] != 1 {
		t.Errorf("original top-level value mutated: %v", original["a"])
	}
	if original["nested"].(map[string]any)["b"] != 2 {
		t.Errorf("original nested value mutated: %v", original["nested"])
	}
}

func TestCloneValue_SliceIsIndependent(t *testing.T) {
	original := []any{1, 2, []any{3, 4}}

	cloned := cloneValue(original).([]any)
	cloned[0] = 999
	cloned[2].([]any)[0] = 999

	if original[0] != 1 {
		t.Errorf("original slice element mutated: %v", original[0])
	}
	if original[2].([]any)[0] != 3 {
		t.Errorf("original nested slice element mutated: %v", original[2])
	}
}

func TestCloneValue_ScalarsAndNil(t *testing.T) {
	if cloneValue(nil) != nil {
		t.Error("cloneValue(nil) should be nil")
	}
	if cloneValue(42) != 42 {
		t.Error("scalar clone should be equal")
	}
	if cloneValue("x") != "x" {
		t.Error("string clone should be equal")
	}
}

func TestCloneValue_PointerToStructIsIndependent(t *testing.T) {
	type inner struct{ N int }
	original := &inner{N: 1}

	cloned := cloneValue(original).(*inner)
	if cloned == original {
		t.Fatal("clone returned the same pointer")
	}
	cloned.N = 2
	if original.N != 1 {
		t.Errorf("original struct mutated through cloned pointer: %v", original.N)
	}
	if !reflect.DeepEqual(*original, inner{N: 1}) {
		t.Errorf("original struct changed shape: %+v", original)
	}
}
