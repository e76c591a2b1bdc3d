package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

func schemas() []*model.EntityDescriptor {
	return []*model.EntityDescriptor{
		{
			Identifier:  "shop.Order",
			TableName:   "ORDERS",
			Description: "Orders placed by customers",
			Fields: []model.FieldDescriptor{
				{FieldName: "ID", ColumnName: "id", ColumnType: model.ColumnBigint, PrimaryKey: true},
				{FieldName: "Total", ColumnName: "total", ColumnType: model.ColumnDecimal},
				{FieldName: "PlacedAt", ColumnName: "placed_at", ColumnType: model.ColumnTimestamp},
			},
		},
		{
			Identifier:  "shop.User",
			TableName:   "UM_USER",
			Description: "Application users",
			Fields: []model.FieldDescriptor{
				{FieldName: "ID", ColumnName: "id", ColumnType: model.ColumnBigint, PrimaryKey: true},
				{FieldName: "Username", ColumnName: "username", ColumnType: model.ColumnVarchar},
				{FieldName: "Email", ColumnName: "email", ColumnType: model.ColumnVarchar, Sensitive: true},
			},
			Relationships: []model.RelationshipDescriptor{
				{FieldName: "Orders", RelationshipType: model.OneToMany, TargetEntity: "shop.Order"},
			},
		},
	}
}

func TestRuleTranslator(t *testing.T) {
	tr := NewRuleTranslator(50, logger.Nop())

	tests := []struct {
		name string
		text string
		want string
	}{
		{"count", "How many users are there?", "SELECT COUNT(*) FROM UM_USER"},
		{"default columns skip sensitive", "list users", "SELECT id, username FROM UM_USER LIMIT 50"},
		{"named columns", "show username and email of every user", "SELECT username, email FROM UM_USER LIMIT 50"},
		{"top n", "top 5 orders by total", "SELECT id, total, placed_at FROM ORDERS ORDER BY total DESC LIMIT 5"},
		{"explicit order", "orders sorted by placed_at ascending", "SELECT id, total, placed_at FROM ORDERS ORDER BY placed_at ASC LIMIT 50"},
		{"latest", "latest 3 orders", "SELECT id, total, placed_at FROM ORDERS ORDER BY placed_at DESC LIMIT 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := tr.Translate(context.Background(), tt.text, schemas(), "postgresql")
			require.NoError(t, err)
			assert.Equal(t, tt.want, sql)
		})
	}
}

func TestRuleTranslator_Fails(t *testing.T) {
	tr := NewRuleTranslator(0, nil)

	_, err := tr.Translate(context.Background(), "what is the weather", schemas(), "mysql")
	assert.True(t, errs.IsTranslation(err))

	_, err = tr.Translate(context.Background(), "   ", schemas(), "mysql")
	assert.True(t, errs.IsTranslation(err))
}

func TestHTTPTranslator(t *testing.T) {
	var got translateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("{\"sql\": \"```sql\\nSELECT username FROM UM_USER;\\n```\"}"))
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL, "sql-coder", time.Second, logger.Nop())
	sql, err := tr.Translate(context.Background(), "usernames please", schemas(), "postgresql")
	require.NoError(t, err)

	assert.Equal(t, "SELECT username FROM UM_USER", sql)
	assert.Equal(t, "usernames please", got.Query)
	assert.Equal(t, "sql-coder", got.Model)
	require.Len(t, got.Schemas, 2)
	assert.Equal(t, "UM_USER", got.Schemas[1].Table)
	assert.True(t, got.Schemas[1].Columns[2].Sensitive)
	assert.Equal(t, []string{"Orders OneToMany -> shop.Order"}, got.Schemas[1].Relationships)
}

func TestHTTPTranslator_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error": "model loading"}`))
		case "/empty":
			_, _ = w.Write([]byte(`{"sql": "  "}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	for _, path := range []string{"/down", "/empty", "/garbage"} {
		t.Run(path, func(t *testing.T) {
			_, err := NewHTTPTranslator(srv.URL+path, "", 0, nil).Translate(context.Background(), "x", schemas(), "mysql")
			assert.True(t, errs.IsTranslation(err))
		})
	}

	_, err := NewHTTPTranslator(srv.URL+"/down", "", 0, nil).Translate(context.Background(), "x", nil, "")
	assert.Contains(t, err.Error(), "503: model loading")
}

func TestCleanSQL(t *testing.T) {
	assert.Equal(t, "SELECT 1", cleanSQL("```SELECT 1```"))
	assert.Equal(t, "SELECT 1", cleanSQL("```\nSELECT 1;\n```"))
	assert.Equal(t, "SELECT 1", cleanSQL(" SELECT 1 ; "))
}
