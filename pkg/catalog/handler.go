// Package catalog resolves dataset names and parameter names to concrete
// handlers and values. It is the pipeflow core's only collaborator for
// reading project configuration; concrete dataset-handler backends
// (jsonmulti, csvrows, badgerkv, pgrows) register themselves into Registry
// by type tag so the facade never needs to import them directly.
package catalog

import (
	"context"
	"fmt"
	"iter"
)

// Item is the dict-shaped value a Handler reads and writes. Field values
// are themselves arbitrary (string, number, nested map, slice, nil).
type Item = map[string]any

// Handler is the dataset-handler contract every pipeflow-compatible
// storage backend implements: an ordered, keyed, iterable, appendable
// collection of Items.
//
// Get must return a *NotFoundError (wrapped, checkable with errors.As)
// when key is absent. Save must be safe to call concurrently from many
// goroutines or processes — implementations serialize writes with an
// exclusive lock or equivalent.
type Handler interface {
	// Length returns the total item count, used to size the progress
	// reporter.
	Length(ctx context.Context) (int, error)
	// Iterate yields every (key, item) pair. Key must be stable and
	// hashable for the life of the handler; iteration order is
	// implementation-defined but stable across passes within one run.
	Iterate(ctx context.Context) iter.Seq2[any, Item]
	// Get looks an item up by key.
	Get(ctx context.Context, key any) (Item, error)
	// Save appends item to the handler's backing store.
	Save(ctx context.Context, item Item) error
}

// NotFoundError is returned by Handler.Get when key is absent.
type NotFoundError struct {
	Dataset string
	Key     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dataset %q: item %v not found", e.Dataset, e.Key)
}
