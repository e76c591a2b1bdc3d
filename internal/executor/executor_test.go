package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/database/sqlite"
	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

func newExecutor(t *testing.T) (*SQLExecutor, database.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.New(ctx, &database.Config{Driver: database.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Exec(ctx, `CREATE TABLE um_user (id INTEGER PRIMARY KEY, username TEXT NOT NULL UNIQUE, active INTEGER NOT NULL DEFAULT 1)`)
	require.NoError(t, err)
	for _, name := range []string{"john", "jane", "joe"} {
		_, err = db.Exec(ctx, `INSERT INTO um_user (username) VALUES (?)`, name)
		require.NoError(t, err)
	}
	return New(db, logger.Nop(), 0), db
}

func TestClassify(t *testing.T) {
	tests := []struct {
		sql  string
		want model.QueryKind
	}{
		{"INSERT INTO t VALUES (1)", model.KindInsert},
		{"  select * from t", model.KindSelect},
		{"\n\tUpdate t SET a = 1", model.KindUpdate},
		{"delete from t", model.KindDelete},
		{"DROP TABLE t", model.KindDDL},
		{"create index i on t(a)", model.KindDDL},
		{"ALTER TABLE t ADD c INT", model.KindDDL},
		{"truncate t", model.KindDDL},
		{"MERGE INTO t USING s", model.KindOther},
		{"", model.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.sql))
		})
	}
}

func TestBindNamed(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		params   map[string]any
		dialect  database.Dialect
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "postgres",
			sql:      "SELECT * FROM t WHERE a = :a AND b = :b OR a = :a",
			params:   map[string]any{"a": 1, "b": "x"},
			dialect:  database.DialectPostgres,
			wantSQL:  "SELECT * FROM t WHERE a = $1 AND b = $2 OR a = $3",
			wantArgs: []any{1, "x", 1},
		},
		{
			name:     "mysql",
			sql:      "UPDATE t SET name = :name WHERE id = :id",
			params:   map[string]any{"id": 7, "name": "n"},
			dialect:  database.DialectMySQL,
			wantSQL:  "UPDATE t SET name = ? WHERE id = ?",
			wantArgs: []any{"n", 7},
		},
		{
			name:     "casts and quotes",
			sql:      "SELECT created::date, ':skip' FROM t WHERE tz = \"a:b\" AND id = :id",
			params:   map[string]any{"id": 1},
			dialect:  database.DialectPostgres,
			wantSQL:  "SELECT created::date, ':skip' FROM t WHERE tz = \"a:b\" AND id = $1",
			wantArgs: []any{1},
		},
		{
			name:     "positional keys",
			sql:      "SELECT * FROM t WHERE a = ? AND b = ?",
			params:   map[string]any{"2": "second", "1": "first"},
			dialect:  database.DialectSQLite,
			wantSQL:  "SELECT * FROM t WHERE a = ? AND b = ?",
			wantArgs: []any{"first", "second"},
		},
		{
			name:    "no params",
			sql:     "SELECT 1",
			dialect: database.DialectPostgres,
			wantSQL: "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := BindNamed(tt.sql, tt.params, tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBindNamed_Errors(t *testing.T) {
	_, _, err := BindNamed("SELECT * FROM t WHERE a = :a", map[string]any{}, database.DialectPostgres)
	assert.True(t, errs.IsInvalidInput(err))

	_, _, err = BindNamed("SELECT * FROM t WHERE a = :a", map[string]any{"a": 1, "typo": 2}, database.DialectPostgres)
	assert.True(t, errs.IsInvalidInput(err))

	_, _, err = BindNamed("SELECT * FROM t WHERE a = ?", map[string]any{"a": 1}, database.DialectSQLite)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestExecuteQuery(t *testing.T) {
	exec, _ := newExecutor(t)

	res := exec.ExecuteQuery(context.Background(), "SELECT id, username FROM um_user WHERE username LIKE :p ORDER BY id", map[string]any{"p": "jo%"})

	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, "john", res.Data[0]["username"])
	assert.Equal(t, model.KindSelect, res.Metadata.Kind)
	assert.Equal(t, "jo%", res.Metadata.Parameters["p"])
	assert.False(t, res.ExecutedAt.IsZero())
}

func TestExecuteQuery_Failure(t *testing.T) {
	exec, _ := newExecutor(t)

	res := exec.ExecuteQuery(context.Background(), "SELECT * FROM nowhere", nil)

	assert.False(t, res.Success)
	assert.Equal(t, 0, res.RowCount)
	assert.Empty(t, res.Data)
	assert.Contains(t, res.ErrorMessage, "Error executing query: ")
	assert.NotContains(t, res.ErrorMessage, "[query_failed]")
}

func TestExecuteUpdate(t *testing.T) {
	exec, _ := newExecutor(t)
	ctx := context.Background()

	res := exec.ExecuteUpdate(ctx, "UPDATE um_user SET active = 0 WHERE username <> :keep", map[string]any{"keep": "john"})
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, model.KindUpdate, res.Metadata.Kind)
	assert.Equal(t, int64(2), *res.Metadata.AffectedRows)
	assert.Empty(t, res.Metadata.GeneratedKeys)

	res = exec.ExecuteUpdate(ctx, "INSERT INTO um_user (username) VALUES (:u)", map[string]any{"u": "max"})
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, model.KindInsert, res.Metadata.Kind)
	assert.Equal(t, []any{int64(4)}, res.Metadata.GeneratedKeys)

	res = exec.ExecuteUpdate(ctx, "INSERT INTO um_user (username) VALUES (:u)", map[string]any{"u": "max"})
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "Error executing update: ")
}

func TestReadinessAndInfo(t *testing.T) {
	exec, db := newExecutor(t)
	ctx := context.Background()

	assert.True(t, exec.IsReady(ctx))

	info := exec.DatabaseInfo(ctx)
	assert.Equal(t, "SQLite", info["productName"])
	assert.Equal(t, "sqlite", info["dialect"])

	tables, err := exec.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"um_user"}, tables)

	db.Close()
	assert.False(t, exec.IsReady(ctx))
	degraded := exec.DatabaseInfo(ctx)
	assert.Contains(t, degraded["error"], "Unable to retrieve database info")
	assert.Equal(t, false, degraded["ready"])
}
