package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dataagent/internal/database"
	_ "github.com/koustreak/dataagent/internal/database/sqlite"
	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/introspect"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

func shopDB(t *testing.T) database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, &database.Config{Driver: database.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	for _, stmt := range []string{
		`CREATE TABLE customers (
			id         INTEGER PRIMARY KEY,
			name       VARCHAR(80) NOT NULL,
			email      TEXT UNIQUE,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE orders (
			id          INTEGER PRIMARY KEY,
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			total       DECIMAL(10,2),
			placed_at   DATETIME
		)`,
	} {
		_, err := db.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func TestSQLiteReader(t *testing.T) {
	ctx := context.Background()
	r, err := NewReader(shopDB(t))
	require.NoError(t, err)

	def, err := r.DefaultSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", def)

	info, err := r.InspectSchema(ctx, def)
	require.NoError(t, err)
	require.Len(t, info.Tables, 2)

	customers, ok := info.Table("customers")
	require.True(t, ok)
	id, _ := customers.Column("id")
	assert.True(t, id.IsPrimaryKey)
	assert.False(t, id.IsNullable)
	name, _ := customers.Column("name")
	require.NotNil(t, name.MaxLength)
	assert.Equal(t, 80, *name.MaxLength)
	email, _ := customers.Column("email")
	assert.True(t, email.IsUnique)
	assert.True(t, email.IsNullable)

	require.Len(t, info.ForeignKeys, 1)
	fk := info.ForeignKeys[0]
	assert.Equal(t, "orders", fk.FromTable)
	assert.Equal(t, "customer_id", fk.FromColumn)
	assert.Equal(t, "customers", fk.ToTable)
	assert.Equal(t, "id", fk.ToColumn)

	_, err = r.InspectTable(ctx, def, "missing")
	assert.True(t, errs.IsNotFound(err))
	_, err = r.ListTables(ctx, "archive")
	assert.True(t, errs.IsNotFound(err))
}

func TestProvider_Discover(t *testing.T) {
	r, err := NewReader(shopDB(t))
	require.NoError(t, err)
	in := introspect.New(NewProvider(r, logger.Nop()), logger.Nop(), introspect.Options{})

	ds, err := in.Discover(context.Background(), "db")
	require.NoError(t, err)
	require.Len(t, ds, 2)

	customers, orders := ds[0], ds[1]
	assert.Equal(t, "db/main.customers", customers.Identifier)
	assert.Equal(t, "customers", customers.TableName)
	assert.Equal(t, "Table main.customers", customers.Description)

	email, ok := customers.Field("Email")
	require.True(t, ok)
	assert.Equal(t, "email", email.ColumnName)
	assert.True(t, email.Unique)
	assert.True(t, email.Sensitive)

	createdAt, ok := customers.Field("CreatedAt")
	require.True(t, ok)
	assert.Equal(t, model.ColumnTimestamp, createdAt.ColumnType)

	require.Len(t, customers.Relationships, 1)
	assert.Equal(t, model.RelationshipDescriptor{
		FieldName:        "Orders",
		TargetEntity:     "db/main.orders",
		RelationshipType: model.OneToMany,
		MappedBy:         "Customer",
		CascadeTypes:     []string{},
		FetchType:        model.FetchLazy,
	}, customers.Relationships[0])

	assert.Equal(t, []string{"id"}, orders.PrimaryKeys())
	total, ok := orders.Field("Total")
	require.True(t, ok)
	assert.Equal(t, model.ColumnDecimal, total.ColumnType)

	rel, ok := orders.Relationship("Customer")
	require.True(t, ok)
	assert.Equal(t, model.ManyToOne, rel.RelationshipType)
	assert.Equal(t, "db/main.customers", rel.TargetEntity)
	assert.Equal(t, "customer_id", rel.JoinColumn)
}

func TestProvider_Scopes(t *testing.T) {
	r, err := NewReader(shopDB(t))
	require.NoError(t, err)
	p := NewProvider(r, nil)
	ctx := context.Background()

	specs, err := p.Candidates(ctx, "github.com/acme/shop")
	require.NoError(t, err)
	assert.Empty(t, specs)

	specs, err = p.Candidates(ctx, "db/main")
	require.NoError(t, err)
	assert.Len(t, specs, 2)

	_, err = p.Candidates(ctx, "db/archive")
	assert.True(t, errs.IsScanScope(err))

	spec, err := p.Lookup("db/main.orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", spec.Tags[introspect.TagTable])

	_, err = p.Lookup("db/main.nothing")
	assert.True(t, errs.IsNotFound(err))
	_, err = p.Lookup("db/main")
	assert.True(t, errs.IsInvalidInput(err))
	_, err = p.Lookup(42)
	assert.True(t, errs.IsNotFound(err))
}

func TestGoType(t *testing.T) {
	tests := map[string]string{
		"character varying":           "string",
		"VARCHAR(80)":                 "string",
		"integer":                     "int32",
		"int unsigned":                "int32",
		"bigint(20)":                  "int64",
		"tinyint(1)":                  "bool",
		"double precision":            "float64",
		"numeric":                     "big.Float",
		"timestamp without time zone": "time.Time",
		"time without time zone":      "civil.Time",
		"date":                        "civil.Date",
		"bytea":                       "string",
	}
	for in, want := range tests {
		assert.Equal(t, want, goType(in), in)
	}
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "CustomerId", pascal("customer_id"))
	assert.Equal(t, "customer", referenceName("customer_id", "customers"))
	assert.Equal(t, "owner", referenceName("ownerId", "users"))
	assert.Equal(t, "users", referenceName("created_by", "users"))

	used := map[string]bool{}
	assert.Equal(t, "Name", uniqueName("Name", used))
	assert.Equal(t, "Name2", uniqueName("Name", used))
}
