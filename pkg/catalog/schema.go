package catalog

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/google/jsonschema-go/jsonschema"
)

// Sentinel errors surfaced by the config loaders; wrapped with the
// specific file/dataset via fmt.Errorf("...: %w", ...) at each call site.
var (
	errFileNotFound        = errors.New("file not found")
	errCatalogFileNotFound = errors.New("catalog file not found")
	errUnknownDataset      = errors.New("dataset not found in catalog")
)

// catalogEntrySchema describes the minimum shape every catalog.yaml entry
// must have: a non-empty "type" tag. Validating this structurally, before
// the planner or a handler constructor ever sees the entry, turns a typo'd
// or missing "type" field into one clear error instead of a panic deep
// inside a Constructor.
var catalogEntrySchema = &jsonschema.Schema{
	Type: "object",
	AdditionalProperties: &jsonschema.Schema{
		Type:     "object",
		Required: []string{"type"},
		Properties: map[string]*jsonschema.Schema{
			"type": {Type: "string", MinLength: intPtr(1)},
			"keys": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	},
}

func intPtr(i int) *int { return &i }

// validateCatalogSchema parses raw YAML into a generic document and checks
// it against catalogEntrySchema using google/jsonschema-go.
func validateCatalogSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	doc = normalizeForSchema(doc)

	resolved, err := catalogEntrySchema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("compiling catalog schema: %w", err)
	}
	if err := resolved.Validate(doc); err != nil {
		return err
	}
	return nil
}

// normalizeForSchema converts goccy/go-yaml's map[string]any decode
// (recursively) into the exact shape jsonschema-go's validator expects;
// jsonschema-go walks with reflection and does not understand nested
// map[any]any the way some YAML decoders produce for alternate key types.
func normalizeForSchema(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeForSchema(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeForSchema(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeForSchema(item)
		}
		return out
	default:
		return v
	}
}
