package schema

import (
	"context"
	"regexp"
	"strconv"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/errs"
)

// SQLiteReader implements Reader over SQLite's catalog pragmas. Only the
// "main" schema is read.
type SQLiteReader struct {
	db database.DB
}

func NewSQLiteReader(db database.DB) *SQLiteReader {
	return &SQLiteReader{db: db}
}

const sqliteMain = "main"

func (s *SQLiteReader) DefaultSchema(context.Context) (string, error) { return sqliteMain, nil }

func (s *SQLiteReader) ListTables(ctx context.Context, schema string) ([]string, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}
	return s.db.ListTables(ctx)
}

var declaredLength = regexp.MustCompile(`\(\s*(\d+)\s*\)`)

// InspectTable reads pragma_table_info plus the single-column unique
// indexes. The driver holds one connection, so each result set is drained
// before the next query runs.
func (s *SQLiteReader) InspectTable(ctx context.Context, schema, table string) (*TableInfo, error) {
	if err := s.checkSchema(schema); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	info := &TableInfo{Schema: sqliteMain, Name: table}
	for rows.Next() {
		var (
			col     ColumnInfo
			notNull int
			pk      int
		)
		if err := rows.Scan(&col.Name, &col.DataType, &notNull, &col.DefaultValue, &pk); err != nil {
			rows.Close()
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "scan column", err)
		}
		col.IsPrimaryKey = pk > 0
		col.IsNullable = notNull == 0 && !col.IsPrimaryKey
		if m := declaredLength.FindStringSubmatch(col.DataType); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				col.MaxLength = &n
			}
		}
		info.Columns = append(info.Columns, col)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "inspect table "+table, err)
	}
	if len(info.Columns) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s not found or has no columns", sqliteMain, table)
	}

	unique, err := s.uniqueColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	for i := range info.Columns {
		info.Columns[i].IsUnique = unique[info.Columns[i].Name]
	}
	return info, nil
}

func (s *SQLiteReader) uniqueColumns(ctx context.Context, table string) (map[string]bool, error) {
	const q = `
		SELECT il.name, ii.name
		FROM pragma_index_list(?) AS il
		JOIN pragma_index_info(il.name) AS ii
		WHERE il."unique" = 1 AND il.origin <> 'pk'`

	rows, err := s.db.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byIndex := make(map[string][]string)
	for rows.Next() {
		var index, column string
		if err := rows.Scan(&index, &column); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "scan index column", err)
		}
		byIndex[index] = append(byIndex[index], column)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "list unique indexes", err)
	}

	out := make(map[string]bool)
	for _, cols := range byIndex {
		if len(cols) == 1 {
			out[cols[0]] = true
		}
	}
	return out, nil
}

func (s *SQLiteReader) InspectSchema(ctx context.Context, schema string) (*SchemaInfo, error) {
	return inspectSchema(ctx, s, schema, s.listForeignKeys)
}

func (s *SQLiteReader) listForeignKeys(ctx context.Context, schema string) ([]ForeignKey, error) {
	tables, err := s.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	var fks []ForeignKey
	for _, table := range tables {
		rows, err := s.db.Query(ctx, `SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var (
				id int
				to *string
				fk = ForeignKey{FromTable: table}
			)
			if err := rows.Scan(&id, &fk.ToTable, &fk.FromColumn, &to); err != nil {
				rows.Close()
				return nil, errs.Wrap(errs.ErrKindQueryFailed, "scan foreign key", err)
			}
			if to != nil {
				fk.ToColumn = *to
			}
			fk.Name = table + "_fk_" + strconv.Itoa(id)
			fks = append(fks, fk)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "list foreign keys", err)
		}
	}
	return fks, nil
}

func (s *SQLiteReader) checkSchema(schema string) error {
	if schema != "" && schema != sqliteMain {
		return errs.Newf(errs.ErrKindNotFound, "sqlite schema %q is not readable, only %q", schema, sqliteMain)
	}
	return nil
}
