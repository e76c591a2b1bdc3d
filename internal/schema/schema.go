// Package schema reads table definitions from a live database and offers
// them to the introspector as entity candidates, so a database nobody
// annotated can still be queried in natural language.
package schema

import (
	"context"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/errs"
)

// Reader is the interface for introspecting a database schema
type Reader interface {
	// DefaultSchema is the schema unqualified names resolve in
	// ("public", the current MySQL database, or "main").
	DefaultSchema(ctx context.Context) (string, error)

	// ListTables returns all user tables in the given schema
	ListTables(ctx context.Context, schema string) ([]string, error)

	// InspectTable returns full column info for a table
	InspectTable(ctx context.Context, schema, table string) (*TableInfo, error)

	// InspectSchema returns the full schema (all tables + foreign keys)
	InspectSchema(ctx context.Context, schema string) (*SchemaInfo, error)
}

// NewReader picks the catalog reader matching db's engine.
func NewReader(db database.DB) (Reader, error) {
	switch db.Dialect() {
	case database.DialectPostgres:
		return NewPgReader(db), nil
	case database.DialectMySQL:
		return NewMySQLReader(db), nil
	case database.DialectSQLite:
		return NewSQLiteReader(db), nil
	}
	return nil, errs.Newf(errs.ErrKindInvalidInput, "no schema reader for dialect %s", db.Dialect())
}

// tableLister is the engine specific half of InspectSchema.
type tableLister interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
	InspectTable(ctx context.Context, schema, table string) (*TableInfo, error)
}

func inspectSchema(ctx context.Context, r tableLister, schema string,
	listFKs func(context.Context, string) ([]ForeignKey, error)) (*SchemaInfo, error) {
	tables, err := r.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{Name: schema}
	for _, table := range tables {
		ti, err := r.InspectTable(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		info.Tables = append(info.Tables, *ti)
	}

	fks, err := listFKs(ctx, schema)
	if err != nil {
		return nil, err
	}
	info.ForeignKeys = fks
	return info, nil
}

// scanNames drains a single-column result.
func scanNames(rows database.Rows, what string) ([]string, error) {
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "scan "+what, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "list "+what, err)
	}
	return names, nil
}

func scanForeignKeys(rows database.Rows) ([]ForeignKey, error) {
	defer rows.Close()
	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Name, &fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "scan foreign key", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "list foreign keys", err)
	}
	return fks, nil
}

// scanColumns reads the (name, type, nullable, default, max length, pk,
// unique) projection both information_schema readers select.
func scanColumns(rows database.Rows, info *TableInfo) error {
	defer rows.Close()
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(
			&col.Name,
			&col.DataType,
			&col.IsNullable,
			&col.DefaultValue,
			&col.MaxLength,
			&col.IsPrimaryKey,
			&col.IsUnique,
		); err != nil {
			return errs.Wrap(errs.ErrKindQueryFailed, "scan column", err)
		}
		info.Columns = append(info.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "inspect table "+info.Name, err)
	}
	if len(info.Columns) == 0 {
		return errs.Newf(errs.ErrKindNotFound, "table %s.%s not found or has no columns", info.Schema, info.Name)
	}
	return nil
}
