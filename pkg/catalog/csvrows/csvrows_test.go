package csvrows

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pipeflow/pipeflow/pkg/catalog"
)

func TestHandler_SaveThenGetByCompositeKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	ctx := context.Background()

	h, err := New("rows", []string{"id"}, map[string]any{"path": path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := h.Save(ctx, catalog.Item{"id": "a", "text": "hello"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := h.Save(ctx, catalog.Item{"id": "b", "text": "world"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	n, err := h.Length(ctx)
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if n != 2 {
		t.Fatalf("Length = %d, want 2", n)
	}

	item, err := h.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get(a): %v", err)
	}
	if item["text"] != "hello" {
		t.Errorf("Get(a)[text] = %v, want hello", item["text"])
	}
}

func TestHandler_IndexKeyWhenNoKeysConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	ctx := context.Background()

	h, err := New("rows", nil, map[string]any{"path": path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.Save(ctx, catalog.Item{"text": "first"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := h.Save(ctx, catalog.Item{"text": "second"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	item, err := h.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if item["text"] != "second" {
		t.Errorf("Get(1)[text] = %v, want second", item["text"])
	}
}

func TestHandler_GetUnknownKeyReturnsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	ctx := context.Background()

	h, err := New("rows", nil, map[string]any{"path": path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.Save(ctx, catalog.Item{"text": "only"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err = h.Get(ctx, "missing")
	if _, ok := err.(*catalog.NotFoundError); !ok {
		t.Fatalf("expected *catalog.NotFoundError, got %v", err)
	}
}

func TestHandler_LengthOnMissingFileIsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-written.csv")
	h, err := New("rows", nil, map[string]any{"path": path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n, err := h.Length(context.Background())
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if n != 0 {
		t.Errorf("Length = %d, want 0 for a file that was never written", n)
	}
}

func TestNew_RequiresPathOption(t *testing.T) {
	if _, err := New("rows", nil, map[string]any{}); err == nil {
		t.Fatal("expected an error when \"path\" is missing")
	}
}
