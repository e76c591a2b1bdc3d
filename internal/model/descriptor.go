// Package model holds the value types shared by every stage of the agent:
// entity descriptors produced by introspection and the query results
// produced by the pipeline.
//
// Descriptors are treated as immutable once built. The registry hands out
// clones, so a caller mutating a descriptor it received never changes what
// other requests see.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ColumnType is the canonical logical type of a column.
type ColumnType string

const (
	ColumnVarchar   ColumnType = "VARCHAR"
	ColumnInteger   ColumnType = "INTEGER"
	ColumnBigint    ColumnType = "BIGINT"
	ColumnDouble    ColumnType = "DOUBLE"
	ColumnFloat     ColumnType = "FLOAT"
	ColumnBoolean   ColumnType = "BOOLEAN"
	ColumnTimestamp ColumnType = "TIMESTAMP"
	ColumnDate      ColumnType = "DATE"
	ColumnTime      ColumnType = "TIME"
	ColumnDecimal   ColumnType = "DECIMAL"
)

// RelationshipType is the cardinality of an association between entities.
type RelationshipType string

const (
	OneToOne   RelationshipType = "OneToOne"
	OneToMany  RelationshipType = "OneToMany"
	ManyToOne  RelationshipType = "ManyToOne"
	ManyToMany RelationshipType = "ManyToMany"
)

// FetchType controls when the related side is loaded.
type FetchType string

const (
	FetchLazy  FetchType = "LAZY"
	FetchEager FetchType = "EAGER"
)

// ParseFetchType maps a marker value onto a FetchType. Anything that is not
// EAGER is LAZY.
func ParseFetchType(s string) FetchType {
	if strings.EqualFold(strings.TrimSpace(s), string(FetchEager)) {
		return FetchEager
	}
	return FetchLazy
}

// EntityDescriptor is the learned structure of one entity.
type EntityDescriptor struct {
	// Identifier is the fully-qualified type name, unique within a registry.
	Identifier string `json:"identifier"`

	// TableName is the physical table or collection name.
	TableName string `json:"tableName"`

	Description   string                   `json:"description,omitempty"`
	Fields        []FieldDescriptor        `json:"fields"`
	Relationships []RelationshipDescriptor `json:"relationships"`
	DiscoveredAt  time.Time                `json:"discoveredAt"`

	// Source is the provider handle the descriptor was built from. It is
	// used only to re-introspect and never takes part in comparisons.
	Source any `json:"-"`
}

// FieldDescriptor describes one scalar (non-relationship) field.
type FieldDescriptor struct {
	FieldName  string     `json:"fieldName"`
	ColumnName string     `json:"columnName"`
	FieldType  string     `json:"fieldType"`
	ColumnType ColumnType `json:"columnType"`
	Nullable   bool       `json:"nullable"`
	Unique     bool       `json:"unique"`
	PrimaryKey bool       `json:"isPrimaryKey"`

	// Length, Precision and Scale are set only when declared and > 0.
	Length    *int `json:"length,omitempty"`
	Precision *int `json:"precision,omitempty"`
	Scale     *int `json:"scale,omitempty"`

	Description string `json:"description,omitempty"`
	Examples    string `json:"examples,omitempty"`
	Category    string `json:"category,omitempty"`
	Sensitive   bool   `json:"sensitive,omitempty"`
	DataQuality string `json:"dataQuality,omitempty"`
}

// RelationshipDescriptor describes one association field.
type RelationshipDescriptor struct {
	FieldName        string           `json:"fieldName"`
	TargetEntity     string           `json:"targetEntity"`
	RelationshipType RelationshipType `json:"relationshipType"`

	// MappedBy is set only on the non-owning side; never on ManyToOne.
	MappedBy   string `json:"mappedBy,omitempty"`
	JoinColumn string `json:"joinColumn,omitempty"`

	CascadeTypes []string  `json:"cascadeTypes"`
	FetchType    FetchType `json:"fetchType"`
}

// Summary renders "TABLE (N fields, M relationships)".
func (d *EntityDescriptor) Summary() string {
	return fmt.Sprintf("%s (%d fields, %d relationships)", d.TableName, len(d.Fields), len(d.Relationships))
}

// Field returns the scalar field with the given source-level name.
func (d *EntityDescriptor) Field(name string) (FieldDescriptor, bool) {
	for _, f := range d.Fields {
		if f.FieldName == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Relationship returns the relationship declared on the given field.
func (d *EntityDescriptor) Relationship(name string) (RelationshipDescriptor, bool) {
	for _, r := range d.Relationships {
		if r.FieldName == name {
			return r, true
		}
	}
	return RelationshipDescriptor{}, false
}

// PrimaryKeys returns the column names flagged as primary key, in field order.
func (d *EntityDescriptor) PrimaryKeys() []string {
	var keys []string
	for _, f := range d.Fields {
		if f.PrimaryKey {
			keys = append(keys, f.ColumnName)
		}
	}
	return keys
}

// SimpleName is the identifier without its package qualifier.
func (d *EntityDescriptor) SimpleName() string {
	return SimpleName(d.Identifier)
}

// SimpleName strips everything up to the last '.' or '/' of a qualified name.
func SimpleName(qualified string) string {
	if i := strings.LastIndexAny(qualified, "./"); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// Info renders a human-readable multi-line description of the entity.
func (d *EntityDescriptor) Info() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity: %s\n", d.Identifier)
	fmt.Fprintf(&sb, "Table: %s\n", d.TableName)
	if d.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", d.Description)
	}
	fmt.Fprintf(&sb, "Fields (%d):\n", len(d.Fields))
	for _, f := range d.Fields {
		pk := ""
		if f.PrimaryKey {
			pk = " [PK]"
		}
		fmt.Fprintf(&sb, "  - %s (%s): %s%s\n", f.FieldName, f.ColumnName, f.FieldType, pk)
	}
	if len(d.Relationships) > 0 {
		fmt.Fprintf(&sb, "Relationships (%d):\n", len(d.Relationships))
		for _, r := range d.Relationships {
			fmt.Fprintf(&sb, "  - %s: %s -> %s\n", r.FieldName, r.RelationshipType, r.TargetEntity)
		}
	}
	return sb.String()
}

// Clone returns a deep copy. Source is shared since it is a read-only handle.
func (d *EntityDescriptor) Clone() *EntityDescriptor {
	if d == nil {
		return nil
	}
	out := *d
	if d.Fields != nil {
		out.Fields = make([]FieldDescriptor, len(d.Fields))
		for i, f := range d.Fields {
			out.Fields[i] = f.clone()
		}
	}
	if d.Relationships != nil {
		out.Relationships = make([]RelationshipDescriptor, len(d.Relationships))
		for i, r := range d.Relationships {
			r.CascadeTypes = append([]string(nil), r.CascadeTypes...)
			out.Relationships[i] = r
		}
	}
	return &out
}

func (f FieldDescriptor) clone() FieldDescriptor {
	f.Length = copyInt(f.Length)
	f.Precision = copyInt(f.Precision)
	f.Scale = copyInt(f.Scale)
	return f
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// PositiveInt returns a pointer to n when n > 0 and nil otherwise.
func PositiveInt(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
