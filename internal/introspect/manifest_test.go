package introspect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

const shopManifest = `
scopes:
  - name: com.example.shop
    types:
      - name: Auditable
        fields:
          - name: createdAt
            type: LocalDateTime
          - name: INSTANCES
            type: Long
            static: true
      - name: Customer
        tags:
          agent: "description:Shop customers"
          table: SHOP_CUSTOMER
        extends: [com.example.shop.Auditable]
        fields:
          - name: id
            type: Long
            tags: {column: "pk;nullable:false"}
          - name: firstName
            type: String
            tags: {column: "name:first_name;length:80"}
          - name: orders
            type: List
            collection: true
            elem: com.example.shop.Invoice
            tags: {oneToMany: "mappedBy:customer;cascade:PERSIST"}
      - name: Invoice
        tags: {agent: ""}
        fields:
          - name: amount
            type: BigDecimal
            tags: {column: "precision:12;scale:2"}
          - name: customer
            type: com.example.shop.Customer
            tags: {manyToOne: "", joinColumn: customer_id}
  - name: com.example.billing
    types:
      - name: Ledger
        identifier: com.example.billing.v2.Ledger
        tags: {agent: "description:Ledger"}
`

func TestManifest_Discover(t *testing.T) {
	m, err := ParseManifest([]byte(shopManifest))
	require.NoError(t, err)

	in := New(m, logger.Nop(), Options{})
	got, err := in.Discover(context.Background(), "com.example.shop")
	require.NoError(t, err)
	require.Len(t, got, 2, "Auditable has no entity marker")

	customer := got[0]
	assert.Equal(t, "com.example.shop.Customer", customer.Identifier)
	assert.Equal(t, "SHOP_CUSTOMER", customer.TableName)
	assert.Equal(t, "com.example.shop.Customer", customer.Source)

	require.Len(t, customer.Fields, 3)
	first, _ := customer.Field("firstName")
	assert.Equal(t, "first_name", first.ColumnName)
	assert.Equal(t, 80, *first.Length)
	created, ok := customer.Field("createdAt")
	require.True(t, ok, "inherited from Auditable")
	assert.Equal(t, model.ColumnTimestamp, created.ColumnType)
	_, ok = customer.Field("INSTANCES")
	assert.False(t, ok)

	orders, _ := customer.Relationship("orders")
	assert.Equal(t, "com.example.shop.Invoice", orders.TargetEntity)
	assert.Equal(t, []string{"PERSIST"}, orders.CascadeTypes)

	invoice := got[1]
	assert.Equal(t, "INVOICE", invoice.TableName)
	amount, _ := invoice.Field("amount")
	assert.Equal(t, model.ColumnDecimal, amount.ColumnType)
	back, _ := invoice.Relationship("customer")
	assert.Equal(t, model.ManyToOne, back.RelationshipType)
	assert.Equal(t, "com.example.shop.Customer", back.TargetEntity)
	assert.Equal(t, "customer_id", back.JoinColumn)
}

func TestManifest_Lookup(t *testing.T) {
	m, err := ParseManifest([]byte(shopManifest))
	require.NoError(t, err)

	spec, err := m.Lookup("com.example.billing.v2.Ledger")
	require.NoError(t, err)
	assert.Equal(t, "com.example.billing", spec.Scope)

	_, err = m.Lookup("com.example.shop.Missing")
	assert.True(t, errs.IsNotFound(err))

	_, err = m.Lookup(struct{}{})
	assert.True(t, errs.IsInvalidInput(err))

	assert.Len(t, m.Identifiers(), 4)
}

func TestManifest_Invalid(t *testing.T) {
	_, err := ParseManifest([]byte("scopes: [oops"))
	assert.True(t, errs.IsInvalidInput(err))

	_, err = ParseManifest([]byte("scopes:\n  - name: a\n    types:\n      - name: X\n      - name: X\n"))
	assert.True(t, errs.IsInvalidInput(err))

	_, err = ParseManifest([]byte("scopes:\n  - name: a\n    types:\n      - tags: {agent: x}\n"))
	assert.True(t, errs.IsInvalidInput(err))
}

func TestManifestFile_Rereads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(shopManifest), 0o600))

	in := New(ManifestFile{Path: path}, logger.Nop(), Options{})
	got, err := in.Discover(context.Background(), "com.example")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	require.NoError(t, os.WriteFile(path, []byte("scopes: []\n"), 0o600))
	got, err = in.Discover(context.Background(), "com.example")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMulti(t *testing.T) {
	m, err := ParseManifest([]byte(shopManifest))
	require.NoError(t, err)
	dup, err := ParseManifest([]byte("scopes:\n  - name: com.example.shop\n    types:\n      - name: Customer\n        tags: {agent: \"table:OTHER\"}\n"))
	require.NoError(t, err)

	in := New(Multi{m, dup, newCatalog(t)}, logger.Nop(), Options{})

	got, err := in.Discover(context.Background(), "com.example.shop")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SHOP_CUSTOMER", got[0].TableName, "first provider wins")

	d, err := in.DescribeType(User{})
	require.NoError(t, err, "falls through to the catalog")
	assert.Equal(t, "UM_USER", d.TableName)

	_, err = Multi{}.Lookup("x")
	assert.True(t, errs.IsNotFound(err))
}
