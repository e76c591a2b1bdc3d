package introspect

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

const testScope = "github.com/koustreak/dataagent/internal/introspect"

type Priority int

type BaseEntity struct {
	ID        int64     `column:"name:id;pk;nullable:false" meta:"description:Surrogate key;category:identification"`
	CreatedAt time.Time `column:"name:created_at"`
	cache     map[string]string
}

type User struct {
	_ Entity `agent:"description:Application user, with login data" table:"UM_USER"`
	BaseEntity

	Username string   `column:"length:50;unique:true;nullable:false" meta:"examples:john, jane;quality:high"`
	Email    *string  `meta:"description:Contact address;sensitive;category:contact"`
	Priority Priority `column:"name:prio"`
	Balance  float64  `column:"precision:10;scale:2"`
	Version  int      `column:"-"`
	Profile  *Profile `oneToOne:"cascade:ALL|merge|all;fetch:EAGER" joinColumn:"profile_id"`
	Orders   []*Order `oneToMany:"mappedBy:User"`
}

type Profile struct {
	_   Entity `agent:"description:User profile"`
	ID  int64  `column:"pk"`
	Bio string
}

type Order struct {
	_     Entity `agent:"description:Orders placed by users"`
	ID    int64  `column:"pk"`
	Total float64
	User  *User `manyToOne:"mappedBy:ignored;fetch:LAZY" joinColumn:"user_id"`
}

func (Order) TableName() string { return "orders" }

type Hidden struct {
	_  Entity `agent:"discoverable:false"`
	ID int64
}

type Unmarked struct {
	ID int64
}

type Broken struct {
	_    Entity `agent:"description:bad"`
	Name string `column:"length:abc"`
}

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	require.NoError(t, c.Register(User{}, &Profile{}, reflect.TypeOf(Order{}), Hidden{}, Unmarked{}, Broken{}))
	return c
}

func fixedNow() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func newIntrospector(t *testing.T, opts Options) *Introspector {
	t.Helper()
	opts.Now = fixedNow
	return New(newCatalog(t), logger.Nop(), opts)
}

func identifiers(ds []*model.EntityDescriptor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Identifier)
	}
	return out
}

func TestDiscover_PartialSuccess(t *testing.T) {
	in := newIntrospector(t, Options{})

	got, err := in.Discover(context.Background(), testScope)
	require.NoError(t, err)

	assert.Equal(t, []string{
		testScope + ".Order",
		testScope + ".Profile",
		testScope + ".User",
	}, identifiers(got), "broken, hidden and unmarked types are left out")
}

func TestDiscover_Scope(t *testing.T) {
	in := newIntrospector(t, Options{})

	parent, err := in.Discover(context.Background(), "github.com/koustreak/dataagent/internal")
	require.NoError(t, err)
	assert.Len(t, parent, 3)

	prefix, err := in.Discover(context.Background(), "github.com/koustreak/dataagent/internal/intro")
	require.NoError(t, err)
	assert.Empty(t, prefix)
}

func TestDiscover_EmptyScope(t *testing.T) {
	in := newIntrospector(t, Options{})

	_, err := in.Discover(context.Background(), "  ")
	assert.True(t, errs.IsScanScope(err))
}

func TestDiscover_UnreadableScope(t *testing.T) {
	in := New(ManifestFile{Path: "/nonexistent/manifest.yaml"}, logger.Nop(), Options{})

	_, err := in.Discover(context.Background(), "com.example")
	assert.True(t, errs.IsScanScope(err))
}

func TestDiscover_MaxEntities(t *testing.T) {
	in := newIntrospector(t, Options{MaxEntities: 2})

	got, err := in.Discover(context.Background(), testScope)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDiscover_Cancelled(t *testing.T) {
	in := newIntrospector(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.Discover(ctx, testScope)
	assert.True(t, errs.IsTimeout(err))
}

func TestDescribe_User(t *testing.T) {
	in := newIntrospector(t, Options{})

	d, err := in.DescribeType(User{})
	require.NoError(t, err)

	assert.Equal(t, testScope+".User", d.Identifier)
	assert.Equal(t, "UM_USER", d.TableName)
	assert.Equal(t, "Application user, with login data", d.Description)
	assert.Equal(t, fixedNow(), d.DiscoveredAt)

	var names []string
	for _, f := range d.Fields {
		names = append(names, f.FieldName)
	}
	assert.Equal(t, []string{"Username", "Email", "Priority", "Balance", "ID", "CreatedAt"}, names,
		"own fields first, then inherited, statics skipped")

	username, _ := d.Field("Username")
	assert.Equal(t, "username", username.ColumnName)
	assert.Equal(t, model.ColumnVarchar, username.ColumnType)
	assert.False(t, username.Nullable)
	assert.True(t, username.Unique)
	require.NotNil(t, username.Length)
	assert.Equal(t, 50, *username.Length)
	assert.Equal(t, "john, jane", username.Examples)
	assert.Equal(t, "high", username.DataQuality)

	email, _ := d.Field("Email")
	assert.Equal(t, "string", email.FieldType)
	assert.True(t, email.Nullable)
	assert.True(t, email.Sensitive)
	assert.Equal(t, "contact", email.Category)
	assert.Nil(t, email.Length)

	prio, _ := d.Field("Priority")
	assert.Equal(t, "prio", prio.ColumnName)
	assert.Equal(t, model.ColumnInteger, prio.ColumnType, "named types fall back to their kind")

	balance, _ := d.Field("Balance")
	assert.Equal(t, model.ColumnDouble, balance.ColumnType)
	assert.Equal(t, 10, *balance.Precision)
	assert.Equal(t, 2, *balance.Scale)

	id, _ := d.Field("ID")
	assert.True(t, id.PrimaryKey)
	assert.Equal(t, model.ColumnBigint, id.ColumnType)
	assert.Equal(t, "Surrogate key", id.Description)

	created, _ := d.Field("CreatedAt")
	assert.Equal(t, "created_at", created.ColumnName)
	assert.Equal(t, model.ColumnTimestamp, created.ColumnType)
}

func TestDescribe_Relationships(t *testing.T) {
	in := newIntrospector(t, Options{})

	user, err := in.DescribeType(&User{})
	require.NoError(t, err)
	require.Len(t, user.Relationships, 2)

	for _, r := range user.Relationships {
		_, scalar := user.Field(r.FieldName)
		assert.False(t, scalar, "%s must not be a scalar field too", r.FieldName)
	}

	profile, _ := user.Relationship("Profile")
	assert.Equal(t, model.OneToOne, profile.RelationshipType)
	assert.Equal(t, testScope+".Profile", profile.TargetEntity)
	assert.Equal(t, "profile_id", profile.JoinColumn)
	assert.Equal(t, []string{"ALL", "MERGE"}, profile.CascadeTypes)
	assert.Equal(t, model.FetchEager, profile.FetchType)

	orders, _ := user.Relationship("Orders")
	assert.Equal(t, model.OneToMany, orders.RelationshipType)
	assert.Equal(t, testScope+".Order", orders.TargetEntity, "collection target is the element type")
	assert.Equal(t, "User", orders.MappedBy)
	assert.Empty(t, orders.CascadeTypes)
	assert.Equal(t, model.FetchLazy, orders.FetchType)

	order, err := in.DescribeType(Order{})
	require.NoError(t, err)
	assert.Equal(t, "orders", order.TableName)
	back, _ := order.Relationship("User")
	assert.Equal(t, model.ManyToOne, back.RelationshipType)
	assert.Empty(t, back.MappedBy, "many-to-one never carries mappedBy")
	assert.Equal(t, "user_id", back.JoinColumn)
}

func TestDescribe_DefaultTableName(t *testing.T) {
	in := newIntrospector(t, Options{})

	d, err := in.DescribeType(Profile{})
	require.NoError(t, err)
	assert.Equal(t, "PROFILE", d.TableName)
}

func TestDescribe_TablePrecedence(t *testing.T) {
	in := New(NewCatalog(), logger.Nop(), Options{})

	d, err := in.Describe(TypeSpec{
		Name: "Account",
		Tags: Tags{TagAgent: "table:FROM_MARKER", TagTable: "FROM_TYPE"},
	})
	require.NoError(t, err)
	assert.Equal(t, "FROM_MARKER", d.TableName)
	assert.Equal(t, "Account", d.Identifier)
}

func TestDescribe_BadMarkers(t *testing.T) {
	in := newIntrospector(t, Options{})

	_, err := in.DescribeType(Broken{})
	assert.True(t, errs.IsIntrospection(err))

	_, err = in.Describe(TypeSpec{
		Name:   "X",
		Fields: []FieldSpec{{Name: "Y", Type: "X", Tags: Tags{TagManyToOne: "fetch:SOMETIMES"}}},
	})
	assert.True(t, errs.IsIntrospection(err))

	_, err = in.Describe(TypeSpec{
		Name:   "X",
		Fields: []FieldSpec{{Name: "ID", Type: "int64", Tags: Tags{TagColumn: "pk:maybe"}}},
	})
	assert.True(t, errs.IsIntrospection(err))

	_, err = in.Describe(TypeSpec{})
	assert.True(t, errs.IsIntrospection(err))
}

func TestBuildField_PrimaryKey(t *testing.T) {
	tests := map[string]bool{
		"pk":            true,
		"pk:true":       true,
		"name:id;PK":    true,
		"pk:false":      false,
		"name:id;pk:0":  false,
		"nullable:true": false,
	}
	for tag, want := range tests {
		f, err := buildField(FieldSpec{Name: "ID", Type: "int64", Tags: Tags{TagColumn: tag}})
		require.NoError(t, err, tag)
		assert.Equal(t, want, f.PrimaryKey, tag)
	}

	_, err := buildField(FieldSpec{Name: "ID", Type: "int64", Tags: Tags{TagColumn: "pk:maybe"}})
	assert.ErrorContains(t, err, "pk")
}

func TestBuildField_Quality(t *testing.T) {
	f, err := buildField(FieldSpec{Name: "Name", Type: "string", Tags: Tags{TagMeta: "quality:high;dataQuality:low"}})
	require.NoError(t, err)
	assert.Equal(t, "high", f.DataQuality)
}

func TestRefresh(t *testing.T) {
	in := newIntrospector(t, Options{})

	d, err := in.DescribeType(User{})
	require.NoError(t, err)

	again, err := in.Refresh(d)
	require.NoError(t, err)
	assert.Equal(t, d.Fields, again.Fields)

	_, err = in.Refresh(&model.EntityDescriptor{})
	assert.True(t, errs.IsIntrospection(err))
}

func TestCatalog_Lookup(t *testing.T) {
	c := newCatalog(t)

	spec, err := c.Lookup(testScope + ".User")
	require.NoError(t, err)
	assert.Equal(t, "User", spec.Name)
	require.Len(t, spec.Embeds, 1)
	assert.Equal(t, "BaseEntity", spec.Embeds[0].Name)

	_, err = c.Lookup("com.example.Missing")
	assert.True(t, errs.IsNotFound(err))

	_, err = c.Lookup(42)
	assert.True(t, errs.IsIntrospection(err))

	assert.Error(t, c.Register(nil))
	assert.Equal(t, 6, c.Len())
}

func TestColumnTypeFor(t *testing.T) {
	tests := []struct {
		typeName string
		kind     string
		want     model.ColumnType
	}{
		{"string", "", model.ColumnVarchar},
		{"*int32", "", model.ColumnInteger},
		{"uint64", "", model.ColumnBigint},
		{"float32", "", model.ColumnFloat},
		{"bool", "", model.ColumnBoolean},
		{"civil.Date", "", model.ColumnDate},
		{"decimal.Decimal", "", model.ColumnDecimal},
		{"BigDecimal", "", model.ColumnDecimal},
		{"LocalTime", "", model.ColumnTime},
		{"domain.Status", "string", model.ColumnVarchar},
		{"domain.Level", "int16", model.ColumnInteger},
		{"uuid.UUID", "array", model.ColumnVarchar},
	}

	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			assert.Equal(t, tt.want, ColumnTypeFor(tt.typeName, tt.kind))
		})
	}
}

func TestParseDirectives(t *testing.T) {
	d := parseDirectives(" description:Orders: open, closed ; PK ; cascade:all|Persist|ALL ;; ")

	assert.Equal(t, "Orders: open, closed", d.str("description"))
	assert.Equal(t, "true", d.str("pk"))
	assert.Equal(t, []string{"ALL", "PERSIST"}, d.list("cascade"))

	on, err := d.boolean("pk", false)
	require.NoError(t, err)
	assert.True(t, on)

	_, err = parseDirectives("unique:maybe").boolean("unique", false)
	assert.Error(t, err)
}

func TestInScope(t *testing.T) {
	assert.True(t, inScope("com.example.domain", "com.example"))
	assert.True(t, inScope("github.com/acme/app/domain", "github.com/acme/app"))
	assert.True(t, inScope("com.example", "com.example"))
	assert.False(t, inScope("com.examples", "com.example"))
	assert.False(t, inScope("com", "com.example"))
}
