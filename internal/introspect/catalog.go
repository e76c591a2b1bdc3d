package introspect

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/koustreak/dataagent/internal/errs"
)

// Entity is the discoverable marker. Declare it as a (usually blank) field
// and put the entity-level tags on it:
//
//	_ introspect.Entity `agent:"description:Orders placed by users" table:"ORDERS"`
type Entity struct{}

// Tabler lets a type name its physical table, the way ORMs do.
type Tabler interface {
	TableName() string
}

var (
	entityType = reflect.TypeOf(Entity{})
	tablerType = reflect.TypeOf((*Tabler)(nil)).Elem()
)

// Catalog is a reflection-backed Provider over struct types registered by
// the host. The scope of a type is its Go package path; a scope matches
// its own package and every package below it.
//
// Catalog is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]reflect.Type // by identifier
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]reflect.Type)}
}

// Register adds struct types to the catalog. Each sample may be a struct
// value, a pointer to one, or a reflect.Type.
func (c *Catalog) Register(samples ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range samples {
		t, err := structType(s)
		if err != nil {
			return err
		}
		c.types[qualifiedName(t)] = t
	}
	return nil
}

// MustRegister is Register for package init code.
func (c *Catalog) MustRegister(samples ...any) *Catalog {
	if err := c.Register(samples...); err != nil {
		panic(err)
	}
	return c
}

// Len reports how many types are registered.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types)
}

// Candidates returns the registered types whose package lies in scope,
// sorted by identifier.
func (c *Catalog) Candidates(_ context.Context, scope string) ([]TypeSpec, error) {
	c.mu.RLock()
	matched := make([]reflect.Type, 0)
	for _, t := range c.types {
		if inScope(t.PkgPath(), scope) {
			matched = append(matched, t)
		}
	}
	c.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return qualifiedName(matched[i]) < qualifiedName(matched[j])
	})

	specs := make([]TypeSpec, 0, len(matched))
	for _, t := range matched {
		specs = append(specs, specFor(t, map[reflect.Type]*TypeSpec{}))
	}
	return specs, nil
}

// Lookup describes any struct type. A string target is resolved against
// the registered identifiers.
func (c *Catalog) Lookup(target any) (TypeSpec, error) {
	if id, ok := target.(string); ok {
		c.mu.RLock()
		t, found := c.types[id]
		c.mu.RUnlock()
		if !found {
			return TypeSpec{}, errs.Newf(errs.ErrKindNotFound, "type %q is not registered", id)
		}
		return specFor(t, map[reflect.Type]*TypeSpec{}), nil
	}

	t, err := structType(target)
	if err != nil {
		return TypeSpec{}, err
	}
	return specFor(t, map[reflect.Type]*TypeSpec{}), nil
}

func structType(sample any) (reflect.Type, error) {
	var t reflect.Type
	switch v := sample.(type) {
	case nil:
		return nil, errs.New(errs.ErrKindInvalidInput, "nil sample")
	case reflect.Type:
		t = v
	default:
		t = reflect.TypeOf(sample)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errs.Newf(errs.ErrKindIntrospection, "%s is not a struct type", t)
	}
	if t.Name() == "" {
		return nil, errs.New(errs.ErrKindIntrospection, "anonymous struct types cannot be entities")
	}
	return t, nil
}

// specFor converts a struct type. seen breaks embedding cycles.
func specFor(t reflect.Type, seen map[reflect.Type]*TypeSpec) TypeSpec {
	spec := TypeSpec{
		Name:       t.Name(),
		Identifier: qualifiedName(t),
		Scope:      t.PkgPath(),
		Tags:       Tags{},
		Handle:     t,
	}
	seen[t] = &spec

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)

		if sf.Type == entityType {
			copyTags(spec.Tags, sf.Tag, TagAgent, TagTable)
			continue
		}

		if sf.Anonymous {
			et := sf.Type
			for et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct {
				if prev, ok := seen[et]; ok {
					spec.Embeds = append(spec.Embeds, prev)
					continue
				}
				sup := specFor(et, seen)
				spec.Embeds = append(spec.Embeds, &sup)
				continue
			}
		}

		spec.Fields = append(spec.Fields, fieldSpec(sf))
	}

	if _, explicit := spec.Tags[TagTable]; !explicit {
		if name, ok := tablerName(t); ok {
			spec.Tags[TagTable] = name
		}
	}
	return spec
}

func fieldSpec(sf reflect.StructField) FieldSpec {
	ft := sf.Type
	for ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}

	f := FieldSpec{
		Name:   sf.Name,
		Type:   ft.String(),
		TypeID: qualifiedName(ft),
		Kind:   ft.Kind().String(),
		Tags:   Tags{},
	}
	copyTags(f.Tags, sf.Tag, knownTags...)

	switch ft.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		if ft.Elem().Kind() != reflect.Uint8 {
			elem := ft.Elem()
			for elem.Kind() == reflect.Pointer {
				elem = elem.Elem()
			}
			f.Collection = true
			f.Elem = qualifiedName(elem)
		}
	}

	if !sf.IsExported() || f.Tags[TagColumn] == "-" {
		f.Static = true
	}
	return f
}

func copyTags(dst Tags, tag reflect.StructTag, keys ...string) {
	for _, k := range keys {
		if v, ok := tag.Lookup(k); ok {
			dst[k] = v
		}
	}
}

func tablerName(t reflect.Type) (name string, ok bool) {
	defer func() {
		if recover() != nil {
			name, ok = "", false
		}
	}()
	switch {
	case t.Implements(tablerType):
		return reflect.Zero(t).Interface().(Tabler).TableName(), true
	case reflect.PointerTo(t).Implements(tablerType):
		return reflect.New(t).Interface().(Tabler).TableName(), true
	}
	return "", false
}

// qualifiedName is "pkg/path.Name" for named types and the plain type
// string otherwise.
func qualifiedName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return fmt.Sprintf("%s.%s", t.PkgPath(), t.Name())
	}
	return t.String()
}
