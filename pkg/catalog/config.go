package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// ProjectConfig is the project.yaml document: ambient logging behavior.
// Config files the catalog facade reads are treated, per spec.md §1, as an
// external collaborator's concern — this is intentionally the thinnest
// possible reader, not a general config framework.
type ProjectConfig struct {
	Logging struct {
		Level        string `yaml:"level"`
		ShowProgress *bool  `yaml:"show_progress"`
	} `yaml:"logging"`
}

// ShowProgress reports the configured value, defaulting to true when
// unset, matching spec.md §6's "default true".
func (c ProjectConfig) ShowProgress() bool {
	if c.Logging.ShowProgress == nil {
		return true
	}
	return *c.Logging.ShowProgress
}

// LoadProjectConfig reads "<root>/project.yaml". A missing file is not an
// error: it yields the zero-value ProjectConfig (level "info" once
// normalized through logging.LevelFromString, progress shown), matching
// the original's "file not found -> defaults" behavior.
func LoadProjectConfig(root string) (ProjectConfig, error) {
	var cfg ProjectConfig
	data, err := os.ReadFile(filepath.Join(root, "project.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("catalog: reading project.yaml: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("catalog: decoding project.yaml: %w", err)
	}
	return cfg, nil
}

// catalogEntry is one dataset's raw catalog.yaml entry: its handler type
// tag, optional composite-index field names, and every remaining
// handler-specific option (path, table, dsn, ...), built by hand in
// loadCatalogFile rather than a single struct-tagged Unmarshal because the
// option set varies per handler type.
type catalogEntry struct {
	Type    string
	Keys    []string
	Options map[string]any
}

func loadCatalogFile(root string) (map[string]catalogEntry, error) {
	path := filepath.Join(root, "catalog.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("catalog: %w", errCatalogFileNotFound)
		}
		return nil, fmt.Errorf("catalog: reading catalog.yaml: %w", err)
	}

	if err := validateCatalogSchema(data); err != nil {
		return nil, fmt.Errorf("catalog: catalog.yaml failed schema validation: %w", err)
	}

	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: decoding catalog.yaml: %w", err)
	}

	entries := make(map[string]catalogEntry, len(raw))
	for name, fields := range raw {
		entry := catalogEntry{Options: map[string]any{}}
		for k, v := range fields {
			switch k {
			case "type":
				s, _ := v.(string)
				entry.Type = s
			case "keys":
				entry.Keys = toStringSlice(v)
			default:
				entry.Options[k] = v
			}
		}
		entries[name] = entry
	}
	return entries, nil
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

func loadFlatFile(root, filename string) (FlatParams, error) {
	path := filepath.Join(root, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("catalog: %w: %s", errFileNotFound, filename)
		}
		return nil, fmt.Errorf("catalog: reading %s: %w", filename, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: decoding %s: %w", filename, err)
	}
	return flatten(raw), nil
}

// overlayEnv overrides flattened keys with process environment variables
// named PIPEFLOW_<DOTTED_UPPER_WITH_UNDERSCORES>, after loading an
// optional ".env" file at root via joho/godotenv — so credentials.yaml
// need not hold live secrets in a checked-out project.
func overlayEnv(root string, flat FlatParams) {
	_ = godotenv.Load(filepath.Join(root, ".env")) // best effort; absent .env is fine

	for pair := flat.Oldest(); pair != nil; pair = pair.Next() {
		envKey := "PIPEFLOW_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(pair.Key))
		if v, ok := os.LookupEnv(envKey); ok {
			flat.Set(pair.Key, v)
		}
	}
}
