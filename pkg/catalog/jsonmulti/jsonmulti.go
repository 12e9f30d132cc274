// Package jsonmulti implements the "canonada.json_multi" dataset handler:
// a directory of JSON files, one item per file. Grounded on the original
// canonada.json_multi handler, re-expressed with google/uuid for random
// filenames instead of the original's stdlib uuid module.
package jsonmulti

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pipeflow/pipeflow/pkg/catalog"
	"github.com/pipeflow/pipeflow/pkg/logging"
)

// Tag is the catalog.yaml "type" value that selects this handler, the
// literal normative string a catalog.yaml author writes for this handler.
const Tag = "canonada.json_multi"

// AliasTag additionally registers this handler under a pipeflow-branded
// name, so either spelling resolves in catalog.yaml.
const AliasTag = "pipeflow.json_multi"

func init() {
	catalog.RegisterHandler(Tag, New)
	catalog.RegisterHandler(AliasTag, New)
}

// Handler reads and writes one JSON file per item under Path. With no
// Keys, a file's key is its filename stem; with Keys, the key is a
// composite built from those fields inside the decoded JSON.
type Handler struct {
	name string
	path string
	keys []string
}

// New is the catalog.Constructor registered for Tag.
func New(name string, keys []string, options map[string]any) (catalog.Handler, error) {
	path, ok := options["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("catalog: dataset %q: json-multi handler requires a non-empty \"path\" option", name)
	}
	return &Handler{name: name, path: path, keys: keys}, nil
}

func (h *Handler) files() ([]string, error) {
	entries, err := os.ReadDir(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: dataset %q: reading %s: %w", h.name, h.path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(h.path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (h *Handler) Length(ctx context.Context) (int, error) {
	files, err := h.files()
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// Iterate yields every file's (key, item) pair. Duplicate composite keys
// are dropped (first occurrence wins) with a warning, matching spec.md
// §6's json-multi semantics.
func (h *Handler) Iterate(ctx context.Context) iter.Seq2[any, catalog.Item] {
	return func(yield func(any, catalog.Item) bool) {
		log := logging.FromContext(ctx)
		files, err := h.files()
		if err != nil {
			log.Error("json-multi: listing files failed", "dataset", h.name, "error", err)
			return
		}

		seen := make(map[any]struct{}, len(files))
		for _, f := range files {
			item, err := readJSONFile(f)
			if err != nil {
				log.Warn("json-multi: skipping unreadable file", "dataset", h.name, "file", f, "error", err)
				continue
			}
			key := h.keyOf(log, f, item)
			if _, dup := seen[key]; dup {
				log.Warn("json-multi: dropping item with duplicate key", "dataset", h.name, "key", key, "file", f)
				continue
			}
			seen[key] = struct{}{}
			if !yield(key, item) {
				return
			}
		}
	}
}

func (h *Handler) keyOf(log interface {
	Warn(string, ...any)
}, file string, item catalog.Item) any {
	if len(h.keys) == 0 {
		stem := strings.TrimSuffix(filepath.Base(file), ".json")
		return stem
	}
	parts := make([]string, len(h.keys))
	for i, k := range h.keys {
		v, ok := item[k]
		if !ok {
			log.Warn(fmt.Sprintf("json-multi: item missing key field %q, using null", k))
			parts[i] = "<null>"
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "|")
}

// Get scans the directory for the item matching key. json-multi has no
// persistent index, so this is a linear scan — acceptable for the
// moderate-sized datasets the handler targets, and consistent with the
// catalog facade's own "re-read fresh every call" philosophy.
func (h *Handler) Get(ctx context.Context, key any) (catalog.Item, error) {
	for k, item := range h.Iterate(ctx) {
		if k == key {
			return item, nil
		}
	}
	return nil, &catalog.NotFoundError{Dataset: h.name, Key: key}
}

// Save writes item to a new file under Path. A "filename" field in item
// (without the .json suffix) names the file; absent, a random UUID is
// used. Each Save picks its own filename, so concurrent calls need no
// additional locking.
func (h *Handler) Save(ctx context.Context, item catalog.Item) error {
	if err := os.MkdirAll(h.path, 0o755); err != nil {
		return fmt.Errorf("catalog: dataset %q: creating %s: %w", h.name, h.path, err)
	}

	name, _ := item["filename"].(string)
	if name == "" {
		name = uuid.NewString()
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: dataset %q: encoding item: %w", h.name, err)
	}
	path := filepath.Join(h.path, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("catalog: dataset %q: writing %s: %w", h.name, path, err)
	}
	return nil
}

func readJSONFile(path string) (catalog.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var item catalog.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return item, nil
}
