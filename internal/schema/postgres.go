package schema

import (
	"context"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/errs"
)

// PgReader implements Reader for PostgreSQL using information_schema
type PgReader struct {
	db database.DB
}

func NewPgReader(db database.DB) *PgReader {
	return &PgReader{db: db}
}

func (p *PgReader) DefaultSchema(ctx context.Context) (string, error) {
	row, err := p.db.QueryRow(ctx, `SELECT current_schema()`)
	if err != nil {
		return "", err
	}
	var name string
	if err := row.Scan(&name); err != nil {
		return "", errs.Wrap(errs.ErrKindQueryFailed, "read current schema", err)
	}
	return name, nil
}

// ListTables returns all user-defined table names in the given schema
func (p *PgReader) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := p.db.Query(ctx, q, schema)
	if err != nil {
		return nil, err
	}
	return scanNames(rows, "table name")
}

// InspectTable returns column details for a single table
func (p *PgReader) InspectTable(ctx context.Context, schema, table string) (*TableInfo, error) {
	const q = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES'              AS is_nullable,
			c.column_default,
			c.character_maximum_length,
			COALESCE(pk.is_pk, false)          AS is_primary_key,
			COALESCE(uq.is_unique, false)      AS is_unique
		FROM information_schema.columns c

		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = $1
			  AND tc.table_name   = $2
		) pk ON pk.column_name = c.column_name

		-- single-column unique constraints only
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_unique
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'UNIQUE'
			  AND tc.table_schema = $1
			  AND tc.table_name   = $2
			  AND (SELECT COUNT(*) FROM information_schema.key_column_usage k2
			       WHERE k2.constraint_name = tc.constraint_name
			         AND k2.table_schema = tc.table_schema) = 1
		) uq ON uq.column_name = c.column_name

		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := p.db.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	info := &TableInfo{Schema: schema, Name: table}
	if err := scanColumns(rows, info); err != nil {
		return nil, err
	}
	return info, nil
}

// InspectSchema returns all tables and foreign keys in the schema
func (p *PgReader) InspectSchema(ctx context.Context, schema string) (*SchemaInfo, error) {
	return inspectSchema(ctx, p, schema, p.listForeignKeys)
}

func (p *PgReader) listForeignKeys(ctx context.Context, schema string) ([]ForeignKey, error) {
	const q = `
		SELECT
			tc.constraint_name,
			kcu.table_name   AS from_table,
			kcu.column_name  AS from_column,
			ccu.table_name   AS to_table,
			ccu.column_name  AS to_column
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		ORDER BY tc.constraint_name`

	rows, err := p.db.Query(ctx, q, schema)
	if err != nil {
		return nil, err
	}
	return scanForeignKeys(rows)
}
