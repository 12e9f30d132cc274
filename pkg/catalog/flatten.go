package catalog

import (
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FlatParams is a flattened parameter/credential mapping. It is an
// OrderedMap (not a plain Go map) so that Parameters()/Credentials()
// iterate deterministically for logging/display. Go's map decode loses the
// source YAML document's declaration order, so flatten inserts keys in
// lexical order at each nesting level instead.
type FlatParams = *orderedmap.OrderedMap[string, any]

// flatten walks a nested map (as produced by goccy/go-yaml's decode into
// map[string]any) and returns a single-level, "."-joined mapping. Keys
// that themselves contain a literal "." are left intact; the separator is
// only introduced when descending into a nested mapping, exactly as
// spec.md §4.2 requires.
func flatten(m map[string]any) FlatParams {
	out := orderedmap.New[string, any]()
	flattenInto(out, "", m)
	return out
}

func flattenInto(out FlatParams, prefix string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		key := k
		if prefix != "" {
			key = fmt.Sprintf("%s.%s", prefix, k)
		}
		if nested, ok := asStringMap(v); ok {
			flattenInto(out, key, nested)
			continue
		}
		out.Set(key, v)
	}
}

// asStringMap normalizes the two shapes a YAML decoder can hand back for a
// nested mapping (map[string]any, or map[any]any with string keys) into
// map[string]any.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
