// Package introspect turns structural type descriptions into entity
// descriptors.
//
// The Introspector never touches reflection itself. It works on TypeSpec
// values handed out by a Provider: the reflect-backed Catalog for Go
// structs registered by the host, the YAML Manifest for hand-written
// registrations, or any other source able to answer "which types live in
// scope S" and "describe type T".
//
// Markers are tags. On Go structs they are ordinary struct tags:
//
//	type User struct {
//	    _        introspect.Entity `agent:"description:Application user" table:"UM_USER"`
//	    ID       string           `column:"name:id;pk" meta:"description:Unique identifier;category:identification"`
//	    Username string           `column:"length:50;unique:true;nullable:false"`
//	    Profile  *Profile         `oneToOne:"cascade:ALL;fetch:LAZY" joinColumn:"profile_id"`
//	    Orders   []Order          `oneToMany:"mappedBy:User"`
//	}
//
// Directives are separated by ';' and split on the first ':' so free text
// may contain commas and colons. A directive without ':' is a flag.
package introspect

import (
	"context"
	"strconv"
	"strings"
)

// Tag keys understood by the Introspector.
const (
	TagAgent      = "agent"      // entity marker: description, discoverable, table
	TagTable      = "table"      // physical table override on the type
	TagColumn     = "column"     // name, length, precision, scale, nullable, unique, pk
	TagMeta       = "meta"       // description, category, sensitive, quality, examples
	TagOneToOne   = "oneToOne"   // mappedBy, cascade, fetch
	TagOneToMany  = "oneToMany"  // mappedBy, cascade, fetch
	TagManyToOne  = "manyToOne"  // cascade, fetch
	TagManyToMany = "manyToMany" // mappedBy, cascade, fetch
	TagJoinColumn = "joinColumn" // join column name
)

// knownTags lists every key a provider should copy from its source.
var knownTags = []string{
	TagAgent, TagTable, TagColumn, TagMeta,
	TagOneToOne, TagOneToMany, TagManyToOne, TagManyToMany, TagJoinColumn,
}

// Tags holds marker values by key. Presence matters: a key mapped to ""
// is a marker without arguments.
type Tags map[string]string

// Lookup reports the value and presence of key.
func (t Tags) Lookup(key string) (string, bool) {
	if t == nil {
		return "", false
	}
	v, ok := t[key]
	return v, ok
}

// TypeSpec is the language-neutral structural description of one type.
type TypeSpec struct {
	// Name is the simple type name, e.g. "User".
	Name string

	// Identifier is the fully-qualified name, e.g. "example.com/app/domain.User".
	Identifier string

	// Scope is the package or module the type was found in.
	Scope string

	// Tags are type-level markers (TagAgent, TagTable).
	Tags Tags

	// Fields are declared directly on the type, in declaration order.
	Fields []FieldSpec

	// Embeds are the supertypes whose fields the type inherits, in order.
	Embeds []*TypeSpec

	// Handle is provider specific (a reflect.Type for the Catalog) and is
	// carried into the descriptor for re-introspection.
	Handle any
}

// FieldSpec describes one declared field.
type FieldSpec struct {
	Name string

	// Type is the source-level type name with pointers removed, e.g.
	// "string", "time.Time", "[]domain.Order".
	Type string

	// TypeID is the fully-qualified name of the declared type. Empty means
	// the same as Type.
	TypeID string

	// Kind is the underlying kind of a named type ("string" for
	// `type Status string`), used when Type itself is not mapped.
	Kind string

	// Collection marks container fields; Elem is the qualified element type.
	Collection bool
	Elem       string

	// Static marks class-level / non-persistent members, which are skipped.
	Static bool

	Tags Tags
}

func (f FieldSpec) typeID() string {
	if f.TypeID != "" {
		return f.TypeID
	}
	return f.Type
}

// Provider hands out type specs.
type Provider interface {
	// Candidates returns every type declared within scope, marked or not.
	Candidates(ctx context.Context, scope string) ([]TypeSpec, error)

	// Lookup returns the spec for a single type.
	Lookup(target any) (TypeSpec, error)
}

// directives is a parsed marker value with case-insensitive keys.
type directives map[string]string

func parseDirectives(raw string) directives {
	d := directives{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, found := strings.Cut(part, ":")
		key = strings.ToLower(strings.TrimSpace(key))
		if !found {
			d[key] = "true"
			continue
		}
		d[key] = strings.TrimSpace(val)
	}
	return d
}

func (d directives) str(key string) string {
	return d[strings.ToLower(key)]
}

// boolean returns def when key is absent.
func (d directives) boolean(key string, def bool) (bool, error) {
	v, ok := d[strings.ToLower(key)]
	if !ok {
		return def, nil
	}
	return strconv.ParseBool(v)
}

// integer returns 0 when key is absent.
func (d directives) integer(key string) (int, error) {
	v, ok := d[strings.ToLower(key)]
	if !ok || v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// list splits a '|' separated value and drops duplicates, keeping order.
func (d directives) list(key string) []string {
	v := d.str(key)
	if v == "" {
		return []string{}
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, item := range strings.Split(v, "|") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// inScope reports whether name belongs to scope: equal, or nested under it
// with a '/' or '.' separator.
func inScope(name, scope string) bool {
	if name == scope {
		return true
	}
	if !strings.HasPrefix(name, scope) {
		return false
	}
	sep := name[len(scope)]
	return sep == '/' || sep == '.'
}
