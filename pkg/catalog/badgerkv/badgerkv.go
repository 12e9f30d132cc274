// Package badgerkv implements the "pipeflow.badger_kv" dataset handler: a
// BadgerDB-backed key-value collection of items, each value a JSON-encoded
// catalog.Item. Adapted directly from the teacher's
// examples/memory/badger Store (View/Update transaction shape, iterator
// pattern) generalized from a []byte memory store to pipeflow's keyed
// Item collection.
package badgerkv

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/pipeflow/pipeflow/pkg/catalog"
)

// Tag is the catalog.yaml "type" value that selects this handler.
const Tag = "pipeflow.badger_kv"

func init() {
	catalog.RegisterHandler(Tag, New)
}

// Handler stores each item as a JSON-encoded value under a string key
// derived from Keys (or a random UUID, for a handler with no Keys used
// purely as a Save-only sink).
type Handler struct {
	name string
	keys []string
	db   *badger.DB
}

// New opens (creating if absent) the Badger database at options["path"].
func New(name string, keys []string, options map[string]any) (catalog.Handler, error) {
	path, ok := options["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("catalog: dataset %q: badger-kv handler requires a non-empty \"path\" option", name)
	}
	opts := badger.DefaultOptions(path)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("catalog: dataset %q: opening badger db at %s: %w", name, path, err)
	}
	return &Handler{name: name, keys: keys, db: db}, nil
}

// Close releases the underlying Badger database. Not part of the
// catalog.Handler interface (handlers are typically short-lived, one per
// Catalog.Get call); callers that hold onto a *Handler directly may call
// it during shutdown.
func (h *Handler) Close() error {
	return h.db.Close()
}

func (h *Handler) Length(ctx context.Context) (int, error) {
	count := 0
	err := h.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (h *Handler) Iterate(ctx context.Context) iter.Seq2[any, catalog.Item] {
	return func(yield func(any, catalog.Item) bool) {
		_ = h.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				keyBytes := it.Item().KeyCopy(nil)
				var item catalog.Item
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &item)
				})
				if err != nil {
					continue
				}
				if !yield(string(keyBytes), item) {
					return nil
				}
			}
			return nil
		})
	}
}

func (h *Handler) Get(ctx context.Context, key any) (catalog.Item, error) {
	var item catalog.Item
	err := h.db.View(func(txn *badger.Txn) error {
		dbItem, err := txn.Get([]byte(fmt.Sprint(key)))
		if err == badger.ErrKeyNotFound {
			return &catalog.NotFoundError{Dataset: h.name, Key: key}
		}
		if err != nil {
			return err
		}
		return dbItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Save writes item under a key derived from Handler.keys (composite of
// named fields), or a random UUID when no keys are configured.
func (h *Handler) Save(ctx context.Context, item catalog.Item) error {
	key := h.keyFor(item)
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("catalog: dataset %q: encoding item: %w", h.name, err)
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (h *Handler) keyFor(item catalog.Item) string {
	if len(h.keys) == 0 {
		return uuid.NewString()
	}
	parts := make([]string, len(h.keys))
	for i, k := range h.keys {
		parts[i] = fmt.Sprint(item[k])
	}
	return strings.Join(parts, "|")
}
