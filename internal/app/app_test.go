package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dataagent/internal/config"
	"github.com/koustreak/dataagent/internal/introspect"
	"github.com/koustreak/dataagent/internal/logger"
)

const scope = "github.com/koustreak/dataagent/internal/app"

type Customer struct {
	_    introspect.Entity `agent:"description:Shop customer" table:"CUSTOMER"`
	ID   int64             `column:"pk"`
	Name string            `column:"length:80"`
}

func newApp(t *testing.T, snapshots bool) *App {
	t.Helper()
	t.Chdir(t.TempDir())
	if snapshots {
		t.Setenv("DATAAGENT_SNAPSHOT_ENABLED", "true")
	}
	t.Setenv("DATAAGENT_DISCOVERY_STARTUP_DELAY_MS", "0")
	t.Setenv("DATAAGENT_DISCOVERY_SCAN_PACKAGES", scope+", db")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := New(ctx, cfg, logger.Nop(), WithTypes(Customer{}))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	for _, stmt := range []string{
		`CREATE TABLE CUSTOMER (id INTEGER PRIMARY KEY, name VARCHAR(80) NOT NULL)`,
		`INSERT INTO CUSTOMER (id, name) VALUES (1, 'Ada'), (2, 'Grace')`,
	} {
		_, err := a.DB.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return a
}

func TestNew_Defaults(t *testing.T) {
	a := newApp(t, false)
	assert.Nil(t, a.Snapshots)
	assert.Equal(t, 1, a.Catalog.Len())
	assert.True(t, a.Orchestrator.IsReady(context.Background()))

	n, err := a.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, a.Save(context.Background()))
}

func TestStartupAndQuery(t *testing.T) {
	a := newApp(t, false)
	ctx := context.Background()

	report := a.StartupRunner().Run(ctx)
	require.True(t, report.Ran)
	assert.Equal(t, []string{scope, "db"}, report.Scopes)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 2, report.Discovered)
	assert.True(t, a.Service.HasSchema(scope+".Customer"))
	assert.True(t, a.Service.HasSchema("db/main.CUSTOMER"))

	res := a.Orchestrator.ExecuteSQL(ctx, "SELECT name FROM CUSTOMER ORDER BY id LIMIT 10", nil)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 2, res.RowCount)

	res = a.Orchestrator.ExecuteSQL(ctx, "DELETE FROM CUSTOMER WHERE id = 1", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "read-only")
}

func TestSnapshotRoundTrip(t *testing.T) {
	a := newApp(t, true)
	ctx := context.Background()
	require.NotNil(t, a.Snapshots)

	_, err := a.Service.DiscoverAndLearn(ctx, scope, false)
	require.NoError(t, err)
	require.NoError(t, a.Save(ctx))
	require.NoError(t, a.Save(ctx))
	history, err := a.Snapshots.List(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1, "unchanged registry is not saved twice")

	a.Service.Clear()
	require.Zero(t, a.Service.Count())

	n, err := a.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	d, ok := a.Service.SchemaByTable("CUSTOMER")
	require.True(t, ok)
	assert.Equal(t, "Shop customer", d.Description)

	require.NoError(t, a.Save(ctx))
	history, err = a.Snapshots.List(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = a.Service.DiscoverAndLearn(ctx, "db", false)
	require.NoError(t, err)
	require.NoError(t, a.Save(ctx))
	history, err = a.Snapshots.List(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
