package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
)

func TestLoadFile_JSONAndYAMLAgree(t *testing.T) {
	fromJSON, err := LoadFile("testdata/retail.json")
	require.NoError(t, err)
	fromYAML, err := LoadFile("testdata/retail.yaml")
	require.NoError(t, err)

	assert.Equal(t, fromJSON.TableNames(), fromYAML.TableNames())
	assert.Equal(t, fromJSON.Version(), fromYAML.Version())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSchemaInvalid, errors.CodeOf(err))
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not an object", data: `["orders"]`},
		{name: "empty object", data: `{}`},
		{name: "syntax error", data: `{"orders": {`},
		{name: "duplicate table key", data: `{"orders": {"columns": {"id": "INT"}}, "orders": {"columns": {"id": "INT"}}}`},
		{name: "bad table body", data: `{"orders": {"columns": ["id"]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.data))
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeSchemaInvalid, errors.CodeOf(err))
		})
	}
}

func TestParseYAML_DuplicateKey(t *testing.T) {
	data := "orders:\n  columns:\n    id: INT\norders:\n  columns:\n    id: INT\n"
	_, err := ParseYAML([]byte(data))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSchemaInvalid, errors.CodeOf(err))
}

func TestCatalog_MarshalJSONRoundTripsThroughParser(t *testing.T) {
	c := retailCatalog(t)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	reloaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, c.Version(), reloaded.Version())
}
