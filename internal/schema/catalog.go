// Package schema holds the read-only catalog of tables, columns and keys that
// generated SQL is validated against.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
)

// TableSpec is the external description of one table, as found in a schema
// file or produced by introspection.
type TableSpec struct {
	Name        string            `json:"-" yaml:"-"`
	Columns     map[string]string `json:"columns" yaml:"columns"`
	PrimaryKey  []string          `json:"primary_key" yaml:"primary_key"`
	ForeignKeys []string          `json:"foreign_keys" yaml:"foreign_keys"`
}

// ForeignKey is a single column reference to another table's column
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// String formats the key the way schema files declare it
func (fk ForeignKey) String() string {
	return fmt.Sprintf("%s → %s.%s", fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
}

// Table is the immutable metadata of one table. Lookups are case-insensitive.
type Table struct {
	name        string
	columns     map[string]string // lowercased name -> declared type
	columnNames map[string]string // lowercased name -> declared name
	primaryKey  []string
	foreignKeys []ForeignKey
}

// Name returns the declared table name
func (t *Table) Name() string { return t.name }

// HasColumn reports whether the column is declared on this table
func (t *Table) HasColumn(column string) bool {
	_, ok := t.columns[strings.ToLower(column)]
	return ok
}

// ColumnType returns the declared type of a column
func (t *Table) ColumnType(column string) (string, bool) {
	typ, ok := t.columns[strings.ToLower(column)]
	return typ, ok
}

// Columns returns the declared column names in sorted order
func (t *Table) Columns() []string {
	cols := make([]string, 0, len(t.columnNames))
	for _, name := range t.columnNames {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

// PrimaryKey returns a copy of the primary key column sequence
func (t *Table) PrimaryKey() []string {
	return append([]string(nil), t.primaryKey...)
}

// ForeignKeys returns a copy of the table's foreign keys
func (t *Table) ForeignKeys() []ForeignKey {
	return append([]ForeignKey(nil), t.foreignKeys...)
}

// Catalog is an immutable view over a set of tables. It is safe for
// concurrent use without locking.
type Catalog struct {
	tables     map[string]*Table   // lowercased table name -> table
	tableNames []string            // declared names, sorted
	owners     map[string][]string // lowercased column -> owning table names, sorted
	columns    []string            // distinct declared column names, sorted
	version    string
}

// New builds a catalog from table specs. It fails with a SCHEMA_INVALID error if
// the catalog is empty, a table or column name repeats, a primary key column is
// undeclared, or a foreign key points outside the catalog.
func New(specs []TableSpec) (*Catalog, error) {
	if len(specs) == 0 {
		return nil, errors.NewSchemaError("catalog contains no tables")
	}

	c := &Catalog{
		tables: make(map[string]*Table, len(specs)),
		owners: make(map[string][]string),
	}

	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, errors.NewSchemaError("table with empty name")
		}
		key := strings.ToLower(name)
		if _, exists := c.tables[key]; exists {
			return nil, errors.NewSchemaError(fmt.Sprintf("duplicate table: %s", name))
		}
		if len(spec.Columns) == 0 {
			return nil, errors.NewSchemaError(fmt.Sprintf("table %s declares no columns", name))
		}

		table := &Table{
			name:        name,
			columns:     make(map[string]string, len(spec.Columns)),
			columnNames: make(map[string]string, len(spec.Columns)),
		}
		for col, typ := range spec.Columns {
			colKey := strings.ToLower(col)
			if _, dup := table.columns[colKey]; dup {
				return nil, errors.NewSchemaError(fmt.Sprintf("duplicate column %s on table %s", col, name))
			}
			table.columns[colKey] = typ
			table.columnNames[colKey] = col
		}
		for _, pk := range spec.PrimaryKey {
			if !table.HasColumn(pk) {
				return nil, errors.NewSchemaError(fmt.Sprintf("primary key column %s is not declared on table %s", pk, name))
			}
			table.primaryKey = append(table.primaryKey, pk)
		}
		for _, raw := range spec.ForeignKeys {
			fk, err := ParseForeignKey(raw)
			if err != nil {
				return nil, errors.NewSchemaError(fmt.Sprintf("table %s: %v", name, err))
			}
			if !table.HasColumn(fk.Column) {
				return nil, errors.NewSchemaError(fmt.Sprintf("foreign key column %s is not declared on table %s", fk.Column, name))
			}
			table.foreignKeys = append(table.foreignKeys, fk)
		}

		c.tables[key] = table
		c.tableNames = append(c.tableNames, name)
	}

	// Foreign keys are checked once every table is known
	for _, table := range c.tables {
		for _, fk := range table.foreignKeys {
			ref, ok := c.tables[strings.ToLower(fk.ReferencedTable)]
			if !ok {
				return nil, errors.NewSchemaError(fmt.Sprintf("foreign key %s on table %s references unknown table", fk, table.name))
			}
			if !ref.HasColumn(fk.ReferencedColumn) {
				return nil, errors.NewSchemaError(fmt.Sprintf("foreign key %s on table %s references unknown column", fk, table.name))
			}
		}
	}

	sort.Strings(c.tableNames)
	seen := make(map[string]bool)
	for _, tableName := range c.tableNames {
		table := c.tables[strings.ToLower(tableName)]
		for colKey, colName := range table.columnNames {
			c.owners[colKey] = append(c.owners[colKey], tableName)
			if !seen[colKey] {
				seen[colKey] = true
				c.columns = append(c.columns, colName)
			}
		}
	}
	sort.Strings(c.columns)

	version, err := c.fingerprint()
	if err != nil {
		return nil, errors.NewSchemaError(fmt.Sprintf("failed to fingerprint catalog: %v", err))
	}
	c.version = version

	return c, nil
}

// FromMap builds a catalog from the table-name keyed shape used by schema files
func FromMap(m map[string]TableSpec) (*Catalog, error) {
	specs := make([]TableSpec, 0, len(m))
	for name, spec := range m {
		spec.Name = name
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return New(specs)
}

// ParseForeignKey parses "col → table.col" (an ASCII "->" arrow is accepted too)
func ParseForeignKey(raw string) (ForeignKey, error) {
	normalized := strings.ReplaceAll(raw, "->", "→")
	parts := strings.SplitN(normalized, "→", 2)
	if len(parts) != 2 {
		return ForeignKey{}, fmt.Errorf("malformed foreign key %q: expected \"col → table.col\"", raw)
	}
	column := strings.TrimSpace(parts[0])
	target := strings.TrimSpace(parts[1])
	dot := strings.LastIndex(target, ".")
	if column == "" || dot <= 0 || dot == len(target)-1 {
		return ForeignKey{}, fmt.Errorf("malformed foreign key %q: expected \"col → table.col\"", raw)
	}
	return ForeignKey{
		Column:           column,
		ReferencedTable:  target[:dot],
		ReferencedColumn: target[dot+1:],
	}, nil
}

// LookupTable finds a table by name
func (c *Catalog) LookupTable(name string) (*Table, bool) {
	t, ok := c.tables[strings.ToLower(name)]
	return t, ok
}

// HasTable reports whether a table with this name exists
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.tables[strings.ToLower(name)]
	return ok
}

// TableNames returns all table names in sorted order
func (c *Catalog) TableNames() []string {
	return append([]string(nil), c.tableNames...)
}

// AllColumns returns every distinct column name across all tables, sorted
func (c *Catalog) AllColumns() []string {
	return append([]string(nil), c.columns...)
}

// HasColumn reports whether any table declares the column
func (c *Catalog) HasColumn(column string) bool {
	_, ok := c.owners[strings.ToLower(column)]
	return ok
}

// TablesContaining returns the sorted names of the tables that declare a column
func (c *Catalog) TablesContaining(column string) []string {
	return append([]string(nil), c.owners[strings.ToLower(column)]...)
}

// Version is a stable fingerprint of the catalog contents
func (c *Catalog) Version() string {
	return c.version
}

// Specs returns the catalog in its external, table-name keyed shape
func (c *Catalog) Specs() map[string]TableSpec {
	out := make(map[string]TableSpec, len(c.tables))
	for _, name := range c.tableNames {
		t := c.tables[strings.ToLower(name)]
		cols := make(map[string]string, len(t.columns))
		for key, typ := range t.columns {
			cols[t.columnNames[key]] = typ
		}
		fks := make([]string, 0, len(t.foreignKeys))
		for _, fk := range t.foreignKeys {
			fks = append(fks, fk.String())
		}
		out[name] = TableSpec{
			Name:        name,
			Columns:     cols,
			PrimaryKey:  t.PrimaryKey(),
			ForeignKeys: fks,
		}
	}
	return out
}

// MarshalJSON renders the catalog in the schema file shape
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Specs())
}

// fingerprint hashes the canonical JSON form. encoding/json sorts map keys, so
// equal catalogs always produce the same digest.
func (c *Catalog) fingerprint() (string, error) {
	data, err := json.Marshal(c.Specs())
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}
