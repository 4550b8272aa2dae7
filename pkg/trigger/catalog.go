package trigger

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogFile is the YAML document holding the trigger catalog.
type CatalogFile struct {
	Triggers []DefinitionConfig `yaml:"triggers"`
}

// Catalog is the compiled result of one catalog load.
type Catalog struct {
	Definitions []*Definition
	// Errors holds one ErrConfiguration-wrapped error per skipped entry.
	Errors []error
}

// LoadCatalog reads and compiles the catalog at path. Supports environment
// variable expansion in the form ${VAR_NAME} or ${VAR_NAME:default}.
//
// An unreadable or unparsable file is returned as an error. Malformed entries
// are skipped and reported in Catalog.Errors.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog compiles a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	expanded := expandEnvVars(string(data))

	var file CatalogFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse trigger catalog: %w", err)
	}

	catalog := &Catalog{}
	seen := make(map[string]bool)
	for _, cfg := range file.Triggers {
		if !cfg.IsEnabled() {
			continue
		}
		def, err := cfg.Compile()
		if err != nil {
			catalog.Errors = append(catalog.Errors, err)
			continue
		}
		if seen[def.Type] {
			catalog.Errors = append(catalog.Errors, fmt.Errorf("duplicate trigger type %s", def.Type))
			continue
		}
		seen[def.Type] = true
		catalog.Definitions = append(catalog.Definitions, def)
	}

	return catalog, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		value := os.Getenv(parts[0])
		if value == "" && len(parts) == 2 {
			return parts[1]
		}
		return value
	})
}
