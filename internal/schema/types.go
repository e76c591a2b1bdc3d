package schema

// ColumnInfo describes a single column in a table
type ColumnInfo struct {
	Name         string
	DataType     string // engine type as reported: text, int4, varchar(50), ...
	IsNullable   bool
	IsPrimaryKey bool
	IsUnique     bool
	DefaultValue *string // nil if no default
	MaxLength    *int    // nil for non-char types
}

// TableInfo describes a table and its columns
type TableInfo struct {
	Schema  string
	Name    string
	Columns []ColumnInfo
}

// Column returns the named column.
func (t *TableInfo) Column(name string) (ColumnInfo, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// ForeignKey describes a relationship between two tables
type ForeignKey struct {
	Name       string
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// SchemaInfo is the full introspected database schema
type SchemaInfo struct {
	Name        string
	Tables      []TableInfo
	ForeignKeys []ForeignKey
}

// Table returns the named table.
func (s *SchemaInfo) Table(name string) (*TableInfo, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}
