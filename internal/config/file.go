package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileLookup reads a YAML document and exposes it through the same keys as the
// environment: nested mappings are joined with "_" under the ASKQL prefix, so
// `database: {dsn: x}` answers ASKQL_DATABASE_DSN.
func fileLookup(path string) (LookupFunc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	flat := map[string]string{}
	flattenInto(envPrefix, doc, flat)
	return func(key string) (string, bool) {
		value, ok := flat[key]
		return value, ok
	}, nil
}

func flattenInto(prefix string, node map[string]any, out map[string]string) {
	for name, value := range node {
		key := prefix + "_" + strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
		switch typed := value.(type) {
		case nil:
		case map[string]any:
			flattenInto(key, typed, out)
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(typed)
		}
	}
}
