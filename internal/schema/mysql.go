package schema

import (
	"context"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/errs"
)

// MySQLReader implements Reader for MySQL using information_schema.
// A MySQL schema is a database.
type MySQLReader struct {
	db database.DB
}

func NewMySQLReader(db database.DB) *MySQLReader {
	return &MySQLReader{db: db}
}

func (m *MySQLReader) DefaultSchema(ctx context.Context) (string, error) {
	row, err := m.db.QueryRow(ctx, `SELECT DATABASE()`)
	if err != nil {
		return "", err
	}
	var name *string
	if err := row.Scan(&name); err != nil {
		return "", errs.Wrap(errs.ErrKindQueryFailed, "read current database", err)
	}
	if name == nil || *name == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "no database selected in DSN")
	}
	return *name, nil
}

func (m *MySQLReader) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := m.db.Query(ctx, q, schema)
	if err != nil {
		return nil, err
	}
	return scanNames(rows, "table name")
}

// InspectTable returns column details for a single table
func (m *MySQLReader) InspectTable(ctx context.Context, schema, table string) (*TableInfo, error) {
	const q = `
		SELECT
			c.column_name,
			c.column_type,
			c.is_nullable = 'YES'                         AS is_nullable,
			c.column_default,
			c.character_maximum_length,
			(c.column_key = 'PRI')                        AS is_primary_key,
			(c.column_key = 'UNI')                        AS is_unique
		FROM information_schema.columns c
		WHERE c.table_schema = ?
		  AND c.table_name   = ?
		ORDER BY c.ordinal_position`

	rows, err := m.db.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	info := &TableInfo{Schema: schema, Name: table}
	if err := scanColumns(rows, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (m *MySQLReader) InspectSchema(ctx context.Context, schema string) (*SchemaInfo, error) {
	return inspectSchema(ctx, m, schema, m.listForeignKeys)
}

func (m *MySQLReader) listForeignKeys(ctx context.Context, schema string) ([]ForeignKey, error) {
	const q = `
		SELECT
			rc.constraint_name,
			kcu.table_name       AS from_table,
			kcu.column_name      AS from_column,
			kcu.referenced_table_name  AS to_table,
			kcu.referenced_column_name AS to_column
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON rc.constraint_name = kcu.constraint_name
			AND rc.constraint_schema = kcu.table_schema
		WHERE rc.constraint_schema = ?
		ORDER BY rc.constraint_name`

	rows, err := m.db.Query(ctx, q, schema)
	if err != nil {
		return nil, err
	}
	return scanForeignKeys(rows)
}
