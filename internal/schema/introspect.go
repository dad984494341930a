package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
)

// Dialect selects the catalog queries used for introspection
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const pgTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1 AND table_type = 'BASE TABLE'
	ORDER BY table_name
`

const pgColumnsQuery = `
	SELECT table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = $1
	ORDER BY table_name, ordinal_position
`

const pgPrimaryKeysQuery = `
	SELECT kcu.table_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
		AND tc.table_schema = kcu.table_schema
	WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'
	ORDER BY kcu.table_name, kcu.ordinal_position
`

const pgForeignKeysQuery = `
	SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
		AND tc.table_schema = kcu.table_schema
	JOIN information_schema.constraint_column_usage ccu
		ON tc.constraint_name = ccu.constraint_name
		AND tc.table_schema = ccu.table_schema
	WHERE tc.table_schema = $1 AND tc.constraint_type = 'FOREIGN KEY'
	ORDER BY kcu.table_name, kcu.column_name
`

// Introspect reads tables, columns and keys from a live database. For
// Postgres, schemaName selects the namespace and defaults to "public"; it is
// ignored for SQLite.
func Introspect(ctx context.Context, db *sql.DB, dialect Dialect, schemaName string) (*Catalog, error) {
	var (
		specs map[string]*TableSpec
		order []string
		err   error
	)

	switch dialect {
	case DialectSQLite:
		specs, order, err = introspectSQLite(ctx, db)
	case DialectPostgres, "":
		if schemaName == "" {
			schemaName = "public"
		}
		specs, order, err = introspectPostgres(ctx, db, schemaName)
	default:
		return nil, errors.NewInvalidInputError("dialect", fmt.Sprintf("unsupported dialect %q", dialect))
	}
	if err != nil {
		return nil, err
	}

	out := make([]TableSpec, 0, len(order))
	for _, name := range order {
		out = append(out, *specs[name])
	}
	return New(out)
}

func introspectPostgres(ctx context.Context, db *sql.DB, schemaName string) (map[string]*TableSpec, []string, error) {
	specs := make(map[string]*TableSpec)
	var order []string

	rows, err := db.QueryContext(ctx, pgTablesQuery, schemaName)
	if err != nil {
		return nil, nil, errors.NewDatabaseQueryError(err, "list tables")
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, nil, errors.NewDatabaseQueryError(err, "scan table")
		}
		specs[name] = &TableSpec{Name: name, Columns: make(map[string]string)}
		order = append(order, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, errors.NewDatabaseQueryError(err, "list tables")
	}

	err = scanTriples(ctx, db, pgColumnsQuery, schemaName, func(table, column, typ string) {
		if spec, ok := specs[table]; ok {
			spec.Columns[column] = strings.ToUpper(typ)
		}
	})
	if err != nil {
		return nil, nil, errors.NewDatabaseQueryError(err, "list columns")
	}

	pkRows, err := db.QueryContext(ctx, pgPrimaryKeysQuery, schemaName)
	if err != nil {
		return nil, nil, errors.NewDatabaseQueryError(err, "list primary keys")
	}
	for pkRows.Next() {
		var table, column string
		if err := pkRows.Scan(&table, &column); err != nil {
			pkRows.Close()
			return nil, nil, errors.NewDatabaseQueryError(err, "scan primary key")
		}
		if spec, ok := specs[table]; ok {
			spec.PrimaryKey = append(spec.PrimaryKey, column)
		}
	}
	pkRows.Close()

	fkRows, err := db.QueryContext(ctx, pgForeignKeysQuery, schemaName)
	if err != nil {
		return nil, nil, errors.NewDatabaseQueryError(err, "list foreign keys")
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var table, column, refTable, refColumn string
		if err := fkRows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return nil, nil, errors.NewDatabaseQueryError(err, "scan foreign key")
		}
		if spec, ok := specs[table]; ok {
			spec.ForeignKeys = append(spec.ForeignKeys, ForeignKey{
				Column:           column,
				ReferencedTable:  refTable,
				ReferencedColumn: refColumn,
			}.String())
		}
	}
	if err := fkRows.Err(); err != nil {
		return nil, nil, errors.NewDatabaseQueryError(err, "list foreign keys")
	}

	return specs, order, nil
}

func scanTriples(ctx context.Context, db *sql.DB, query, arg string, fn func(a, b, c string)) error {
	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a, b, c string
		if err := rows.Scan(&a, &b, &c); err != nil {
			return err
		}
		fn(a, b, c)
	}
	return rows.Err()
}

func introspectSQLite(ctx context.Context, db *sql.DB) (map[string]*TableSpec, []string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, nil, errors.NewDatabaseQueryError(err, "list tables")
	}
	var order []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, nil, errors.NewDatabaseQueryError(err, "scan table")
		}
		order = append(order, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, errors.NewDatabaseQueryError(err, "list tables")
	}

	specs := make(map[string]*TableSpec, len(order))
	type pendingFK struct {
		table string
		fk    ForeignKey
	}
	var pending []pendingFK
	for _, name := range order {
		spec := &TableSpec{Name: name, Columns: make(map[string]string)}

		// PRAGMA arguments cannot be bound, so use the table-valued form
		cols, err := db.QueryContext(ctx,
			`SELECT name, type, pk FROM pragma_table_info(?) ORDER BY cid`, name)
		if err != nil {
			return nil, nil, errors.NewDatabaseQueryError(err, "table info")
		}
		type pkCol struct {
			name string
			seq  int
		}
		var pks []pkCol
		for cols.Next() {
			var col, typ string
			var pk int
			if err := cols.Scan(&col, &typ, &pk); err != nil {
				cols.Close()
				return nil, nil, errors.NewDatabaseQueryError(err, "scan column")
			}
			spec.Columns[col] = strings.ToUpper(typ)
			if pk > 0 {
				pks = append(pks, pkCol{name: col, seq: pk})
			}
		}
		cols.Close()
		sort.Slice(pks, func(i, j int) bool { return pks[i].seq < pks[j].seq })
		for _, pk := range pks {
			spec.PrimaryKey = append(spec.PrimaryKey, pk.name)
		}

		fks, err := db.QueryContext(ctx,
			`SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, name)
		if err != nil {
			return nil, nil, errors.NewDatabaseQueryError(err, "foreign key list")
		}
		for fks.Next() {
			var from, table string
			var to sql.NullString
			if err := fks.Scan(&from, &table, &to); err != nil {
				fks.Close()
				return nil, nil, errors.NewDatabaseQueryError(err, "scan foreign key")
			}
			pending = append(pending, pendingFK{name, ForeignKey{Column: from, ReferencedTable: table, ReferencedColumn: to.String}})
		}
		fks.Close()

		specs[name] = spec
	}

	// A foreign key without a target column references the primary key
	for _, p := range pending {
		fk := p.fk
		if fk.ReferencedColumn == "" {
			if ref, ok := specs[fk.ReferencedTable]; ok && len(ref.PrimaryKey) > 0 {
				fk.ReferencedColumn = ref.PrimaryKey[0]
			}
		}
		specs[p.table].ForeignKeys = append(specs[p.table].ForeignKeys, fk.String())
	}

	return specs, order, nil
}
