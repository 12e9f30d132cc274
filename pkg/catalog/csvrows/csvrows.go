// Package csvrows implements the "canonada.csv_rows" dataset handler: a
// single delimited file whose header row names the fields, one item per
// data row. Grounded on the original canonada.csv_rows handler; appends
// are serialized with github.com/gofrs/flock since a CSV file, unlike
// json-multi's one-file-per-item layout, is a single shared resource
// every worker's Save call must take turns mutating.
package csvrows

import (
	"context"
	"encoding/csv"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/gofrs/flock"

	"github.com/pipeflow/pipeflow/pkg/catalog"
	"github.com/pipeflow/pipeflow/pkg/logging"
)

// Tag is the catalog.yaml "type" value that selects this handler, the
// literal normative string a catalog.yaml author writes for this handler.
const Tag = "canonada.csv_rows"

// AliasTag additionally registers this handler under a pipeflow-branded
// name, so either spelling resolves in catalog.yaml.
const AliasTag = "pipeflow.csv_rows"

func init() {
	catalog.RegisterHandler(Tag, New)
	catalog.RegisterHandler(AliasTag, New)
}

// Handler reads and appends rows of Path, a single CSV file whose first
// line is the header. With no Keys, a row's key is its zero-based index;
// with Keys, the key is a composite of those named fields.
type Handler struct {
	name    string
	path    string
	keys    []string
	headers []string // optional seed for Save when the file doesn't exist yet
}

// New is the catalog.Constructor registered for Tag.
func New(name string, keys []string, options map[string]any) (catalog.Handler, error) {
	path, ok := options["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("catalog: dataset %q: csv-rows handler requires a non-empty \"path\" option", name)
	}
	headers := toStringSlice(options["headers"])
	return &Handler{name: name, path: path, keys: keys, headers: headers}, nil
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (h *Handler) readAll() ([]string, [][]string, error) {
	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("catalog: dataset %q: opening %s: %w", h.name, h.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: dataset %q: parsing %s: %w", h.name, h.path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

func (h *Handler) Length(ctx context.Context) (int, error) {
	_, rows, err := h.readAll()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Iterate yields every row's (key, item) pair in file order. Duplicate
// composite keys are dropped (first occurrence wins) with a warning.
func (h *Handler) Iterate(ctx context.Context) iter.Seq2[any, catalog.Item] {
	return func(yield func(any, catalog.Item) bool) {
		log := logging.FromContext(ctx)
		headers, rows, err := h.readAll()
		if err != nil {
			log.Error("csv-rows: reading failed", "dataset", h.name, "error", err)
			return
		}

		seen := make(map[any]struct{}, len(rows))
		for i, row := range rows {
			item := rowToItem(headers, row)
			key := h.keyOf(i, item)
			if _, dup := seen[key]; dup {
				log.Warn("csv-rows: dropping row with duplicate key", "dataset", h.name, "key", key, "row", i)
				continue
			}
			seen[key] = struct{}{}
			if !yield(key, item) {
				return
			}
		}
	}
}

func rowToItem(headers, row []string) catalog.Item {
	item := make(catalog.Item, len(headers))
	for i, h := range headers {
		if i < len(row) {
			item[h] = row[i]
		} else {
			item[h] = ""
		}
	}
	return item
}

func (h *Handler) keyOf(index int, item catalog.Item) any {
	if len(h.keys) == 0 {
		return index
	}
	parts := make([]string, len(h.keys))
	for i, k := range h.keys {
		parts[i] = fmt.Sprint(item[k])
	}
	return strings.Join(parts, "|")
}

func (h *Handler) Get(ctx context.Context, key any) (catalog.Item, error) {
	for k, item := range h.Iterate(ctx) {
		if k == key {
			return item, nil
		}
	}
	return nil, &catalog.NotFoundError{Dataset: h.name, Key: key}
}

// Save appends item as one row under an exclusive file lock (gofrs/flock),
// so concurrent workers or subprocesses never interleave partial writes.
// A file created on the first Save is seeded with Handler.headers if set,
// else with the first item's own field names in Go map iteration order,
// which is not defined.
func (h *Handler) Save(ctx context.Context, item catalog.Item) error {
	lock := flock.New(h.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("catalog: dataset %q: locking %s: %w", h.name, h.path, err)
	}
	defer lock.Unlock()

	headers, _, err := h.readAll()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("catalog: dataset %q: opening %s: %w", h.name, h.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if headers == nil {
		headers = h.headers
		if headers == nil {
			headers = itemHeaders(item)
		}
		if err := w.Write(headers); err != nil {
			return fmt.Errorf("catalog: dataset %q: writing header: %w", h.name, err)
		}
	}

	row := make([]string, len(headers))
	for i, hname := range headers {
		row[i] = fmt.Sprint(item[hname])
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("catalog: dataset %q: writing row: %w", h.name, err)
	}
	return nil
}

func itemHeaders(item catalog.Item) []string {
	out := make([]string, 0, len(item))
	for k := range item {
		out = append(out, k)
	}
	return out
}
