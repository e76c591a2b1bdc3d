package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userDescriptor() *EntityDescriptor {
	return &EntityDescriptor{
		Identifier:  "example.com/domain.User",
		TableName:   "UM_USER",
		Description: "application users",
		Fields: []FieldDescriptor{
			{FieldName: "ID", ColumnName: "id", FieldType: "string", ColumnType: ColumnVarchar, PrimaryKey: true},
			{FieldName: "Username", ColumnName: "username", FieldType: "string", ColumnType: ColumnVarchar, Unique: true, Length: PositiveInt(50)},
		},
		Relationships: []RelationshipDescriptor{
			{FieldName: "Profile", TargetEntity: "example.com/domain.Profile", RelationshipType: OneToOne, JoinColumn: "profile_id", CascadeTypes: []string{"ALL"}, FetchType: FetchLazy},
		},
		DiscoveredAt: time.Now(),
	}
}

func TestEntityDescriptor_Summary(t *testing.T) {
	assert.Equal(t, "UM_USER (2 fields, 1 relationships)", userDescriptor().Summary())
}

func TestEntityDescriptor_Info(t *testing.T) {
	info := userDescriptor().Info()

	assert.Contains(t, info, "Entity: example.com/domain.User\n")
	assert.Contains(t, info, "Table: UM_USER\n")
	assert.Contains(t, info, "Description: application users\n")
	assert.Contains(t, info, "  - ID (id): string [PK]\n")
	assert.Contains(t, info, "  - Username (username): string\n")
	assert.Contains(t, info, "  - Profile: OneToOne -> example.com/domain.Profile\n")
}

func TestEntityDescriptor_CloneIsDeep(t *testing.T) {
	orig := userDescriptor()
	cp := orig.Clone()

	*cp.Fields[1].Length = 10
	cp.Fields[0].ColumnName = "changed"
	cp.Relationships[0].CascadeTypes[0] = "MERGE"

	assert.Equal(t, 50, *orig.Fields[1].Length)
	assert.Equal(t, "id", orig.Fields[0].ColumnName)
	assert.Equal(t, "ALL", orig.Relationships[0].CascadeTypes[0])
	assert.Nil(t, (*EntityDescriptor)(nil).Clone())
}

func TestEntityDescriptor_Lookups(t *testing.T) {
	d := userDescriptor()

	f, ok := d.Field("Username")
	require.True(t, ok)
	assert.True(t, f.Unique)

	_, ok = d.Field("Profile")
	assert.False(t, ok, "relationship fields are not scalar fields")

	r, ok := d.Relationship("Profile")
	require.True(t, ok)
	assert.Equal(t, OneToOne, r.RelationshipType)

	assert.Equal(t, []string{"id"}, d.PrimaryKeys())
	assert.Equal(t, "User", d.SimpleName())
}

func TestSimpleName(t *testing.T) {
	assert.Equal(t, "User", SimpleName("User"))
	assert.Equal(t, "User", SimpleName("com.example.User"))
	assert.Equal(t, "User", SimpleName("github.com/acme/domain.User"))
}

func TestParseFetchType(t *testing.T) {
	assert.Equal(t, FetchEager, ParseFetchType(" eager "))
	assert.Equal(t, FetchLazy, ParseFetchType(""))
	assert.Equal(t, FetchLazy, ParseFetchType("whatever"))
}

func TestPositiveInt(t *testing.T) {
	assert.Nil(t, PositiveInt(0))
	assert.Nil(t, PositiveInt(-3))
	assert.Equal(t, 7, *PositiveInt(7))
}

func TestQueryResult_JSON(t *testing.T) {
	res := QueryResult{Success: true, Data: []map[string]any{{"id": 1}}, RowCount: 1, ExecutionTime: 1500 * time.Millisecond}

	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, float64(1500), decoded["executionTimeMs"])
	assert.NotContains(t, decoded, "errorMessage")
}

func TestFailedResult(t *testing.T) {
	res := FailedResult(time.Now(), "boom")

	assert.False(t, res.Success)
	assert.Equal(t, 0, res.RowCount)
	assert.Empty(t, res.Data)
	assert.Equal(t, "boom", res.ErrorMessage)
}

func TestValidationResult_Allowed(t *testing.T) {
	assert.True(t, ValidationResult{Valid: true}.Allowed())
	assert.False(t, ValidationResult{Valid: true, Blocked: true}.Allowed())
	assert.False(t, ValidationResult{Valid: false}.Allowed())
}
