package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleTable = `{"orders": {"columns": {"id": "INT", "amount": "DECIMAL"}}}`
const twoTables = `{"orders": {"columns": {"id": "INT"}}, "stores": {"columns": {"city": "TEXT"}}}`

func writeSchema(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRegistry_ReloadSwapsCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	writeSchema(t, path, singleTable)

	initial, err := LoadFile(path)
	require.NoError(t, err)
	reg := NewRegistry(initial, FileSource(path))
	held := reg.Current()

	writeSchema(t, path, twoTables)
	next, err := reg.Reload(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"orders", "stores"}, reg.Current().TableNames())
	assert.Same(t, next, reg.Current())
	// A previously obtained catalog is unaffected
	assert.Equal(t, []string{"orders"}, held.TableNames())
}

func TestRegistry_ReloadFailureKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	writeSchema(t, path, singleTable)

	initial, err := LoadFile(path)
	require.NoError(t, err)
	reg := NewRegistry(initial, FileSource(path))

	writeSchema(t, path, `{}`)
	_, err = reg.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, initial, reg.Current())
}

func TestRegistry_NoSource(t *testing.T) {
	initial := retailCatalog(t)
	reg := NewRegistry(initial, nil)

	c, err := reg.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, initial, c)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	writeSchema(t, path, singleTable)

	initial, err := LoadFile(path)
	require.NoError(t, err)
	reg := NewRegistry(initial, FileSource(path))

	w, err := NewWatcher(path, reg)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	writeSchema(t, path, twoTables)

	require.Eventually(t, func() bool {
		return reg.Current().HasTable("stores")
	}, 3*time.Second, 20*time.Millisecond)

	w.Stop()
	w.Stop()
}
