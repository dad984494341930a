package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
)

// LoadFile reads a catalog from a .json, .yaml or .yml file
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSchemaInvalid, "Failed to read schema file").
			WithDetails(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON decodes the table-name keyed JSON shape. Repeated table names are
// rejected rather than letting the last one win.
func ParseJSON(data []byte) (*Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.NewSchemaError(fmt.Sprintf("invalid JSON: %v", err))
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.NewSchemaError("schema must be a JSON object keyed by table name")
	}

	var specs []TableSpec
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.NewSchemaError(fmt.Sprintf("invalid JSON: %v", err))
		}
		name, ok := tok.(string)
		if !ok {
			return nil, errors.NewSchemaError("schema must be a JSON object keyed by table name")
		}
		if seen[strings.ToLower(name)] {
			return nil, errors.NewSchemaError(fmt.Sprintf("duplicate table: %s", name))
		}
		seen[strings.ToLower(name)] = true

		var spec TableSpec
		if err := dec.Decode(&spec); err != nil {
			return nil, errors.NewSchemaError(fmt.Sprintf("table %s: %v", name, err))
		}
		spec.Name = name
		specs = append(specs, spec)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, errors.NewSchemaError(fmt.Sprintf("invalid JSON: %v", err))
	}

	return New(specs)
}

// ParseYAML decodes the same shape from YAML. yaml.v3 already rejects
// duplicate mapping keys.
func ParseYAML(data []byte) (*Catalog, error) {
	var m map[string]TableSpec
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.NewSchemaError(fmt.Sprintf("invalid YAML: %v", err))
	}
	return FromMap(m)
}
