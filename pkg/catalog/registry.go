package catalog

import "fmt"

// Constructor builds a Handler for one catalog entry. name is the dataset
// name, keys is the (possibly empty) list of fields used to build a
// composite index key, and options is the entry's remaining YAML fields
// (path, table, dsn, ...).
type Constructor func(name string, keys []string, options map[string]any) (Handler, error)

// Registry maps a catalog entry's "type" tag (e.g. "canonada.json_multi")
// to the Constructor that builds it. Built-in handler packages register
// themselves here from an init() func; user code can register its own
// tags the same way.
var Registry = map[string]Constructor{}

// RegisterHandler installs a Constructor under tag, panicking on a
// duplicate registration (a programmer error caught at init time, the same
// class of failure as the original's "Datahandler type ... is not
// unique").
func RegisterHandler(tag string, ctor Constructor) {
	if _, exists := Registry[tag]; exists {
		panic(fmt.Sprintf("catalog: handler type %q already registered", tag))
	}
	Registry[tag] = ctor
}
