package catalog

import (
	"fmt"
	"sort"
)

// Catalog is the facade pipeflow's planner and executor use to resolve
// dataset names to Handlers and parameter/credential names to values. It
// holds only a project root directory — every call re-reads the relevant
// file from disk, matching the original's "reads fresh every time, caches
// nothing" behavior (deliberately, for test isolation: spec.md §4.2).
type Catalog struct {
	root string
}

// New returns a Catalog rooted at dir, the directory containing
// project.yaml, catalog.yaml, parameters.yaml, and credentials.yaml.
func New(dir string) *Catalog {
	return &Catalog{root: dir}
}

// List returns every dataset name declared in catalog.yaml.
func (c *Catalog) List() ([]string, error) {
	entries, err := loadCatalogFile(c.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Get instantiates the Handler registered for dataset name's declared
// type, looked up from Registry. Returns an error wrapping
// errCatalogFileNotFound when catalog.yaml is absent, one wrapping
// errUnknownDataset when the catalog has no such entry, or a plain error
// naming the unrecognized type tag.
func (c *Catalog) Get(name string) (Handler, error) {
	entries, err := loadCatalogFile(c.root)
	if err != nil {
		return nil, err
	}
	entry, ok := entries[name]
	if !ok {
		return nil, fmt.Errorf("catalog: dataset %q: %w", name, errUnknownDataset)
	}

	ctor, ok := Registry[entry.Type]
	if !ok {
		return nil, fmt.Errorf("catalog: dataset %q: handler type %q is not registered", name, entry.Type)
	}
	return ctor(name, entry.Keys, entry.Options)
}

// Parameters returns the flattened contents of parameters.yaml.
func (c *Catalog) Parameters() (FlatParams, error) {
	flat, err := loadFlatFile(c.root, "parameters.yaml")
	if err != nil {
		return nil, err
	}
	return flat, nil
}

// Credentials returns the flattened contents of credentials.yaml,
// overlaid with any matching PIPEFLOW_* environment variables (see
// overlayEnv).
func (c *Catalog) Credentials() (FlatParams, error) {
	flat, err := loadFlatFile(c.root, "credentials.yaml")
	if err != nil {
		return nil, err
	}
	overlayEnv(c.root, flat)
	return flat, nil
}

// Project returns the project.yaml-derived configuration.
func (c *Catalog) Project() (ProjectConfig, error) {
	return LoadProjectConfig(c.root)
}
