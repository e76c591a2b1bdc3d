package introspect

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/dataagent/internal/errs"
)

// Manifest is a Provider over hand-written type registrations:
//
//	scopes:
//	  - name: com.example.domain
//	    types:
//	      - name: User
//	        tags:
//	          agent: "description:Application user"
//	          table: UM_USER
//	        extends: [com.example.domain.BaseEntity]
//	        fields:
//	          - name: id
//	            type: Long
//	            tags: {column: "pk"}
//	          - name: orders
//	            type: List
//	            collection: true
//	            elem: com.example.domain.Order
//	            tags: {oneToMany: "mappedBy:user"}
//
// An omitted identifier defaults to "<scope>.<name>".
type Manifest struct {
	types map[string]*manifestType // by identifier
	order []string
}

type manifestDoc struct {
	Scopes []manifestScope `yaml:"scopes"`
}

type manifestScope struct {
	Name  string         `yaml:"name"`
	Types []manifestType `yaml:"types"`
}

type manifestType struct {
	Name       string            `yaml:"name"`
	Identifier string            `yaml:"identifier"`
	Tags       map[string]string `yaml:"tags"`
	Extends    []string          `yaml:"extends"`
	Fields     []manifestField   `yaml:"fields"`

	scope string
}

type manifestField struct {
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	Kind       string            `yaml:"kind"`
	Elem       string            `yaml:"elem"`
	Collection bool              `yaml:"collection"`
	Static     bool              `yaml:"static"`
	Tags       map[string]string `yaml:"tags"`
}

// ParseManifest decodes a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var doc manifestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid manifest", err)
	}

	m := &Manifest{types: make(map[string]*manifestType)}
	for _, sc := range doc.Scopes {
		scope := strings.TrimSpace(sc.Name)
		for i := range sc.Types {
			mt := sc.Types[i]
			mt.Name = strings.TrimSpace(mt.Name)
			if mt.Name == "" {
				return nil, errs.Newf(errs.ErrKindInvalidInput, "scope %q: type without a name", scope)
			}
			mt.scope = scope
			if mt.Identifier == "" {
				mt.Identifier = joinScope(scope, mt.Name)
			}
			if _, dup := m.types[mt.Identifier]; dup {
				return nil, errs.Newf(errs.ErrKindInvalidInput, "type %q declared twice", mt.Identifier)
			}
			m.types[mt.Identifier] = &mt
			m.order = append(m.order, mt.Identifier)
		}
	}
	return m, nil
}

// LoadManifestFile reads and decodes a manifest from disk.
func LoadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindScanScope, fmt.Sprintf("cannot read manifest %s", path), err)
	}
	return ParseManifest(data)
}

// Candidates returns the declared types whose scope lies in scope, in
// declaration order.
func (m *Manifest) Candidates(_ context.Context, scope string) ([]TypeSpec, error) {
	var specs []TypeSpec
	for _, id := range m.order {
		mt := m.types[id]
		if inScope(mt.scope, scope) {
			specs = append(specs, m.spec(mt, map[string]*TypeSpec{}))
		}
	}
	return specs, nil
}

// Lookup resolves an identifier string.
func (m *Manifest) Lookup(target any) (TypeSpec, error) {
	id, ok := target.(string)
	if !ok {
		return TypeSpec{}, errs.Newf(errs.ErrKindInvalidInput, "manifest lookup needs an identifier, got %T", target)
	}
	mt, found := m.types[id]
	if !found {
		return TypeSpec{}, errs.Newf(errs.ErrKindNotFound, "type %q is not in the manifest", id)
	}
	return m.spec(mt, map[string]*TypeSpec{}), nil
}

// Identifiers lists every declared type, sorted.
func (m *Manifest) Identifiers() []string {
	ids := append([]string(nil), m.order...)
	sort.Strings(ids)
	return ids
}

func (m *Manifest) spec(mt *manifestType, seen map[string]*TypeSpec) TypeSpec {
	spec := TypeSpec{
		Name:       mt.Name,
		Identifier: mt.Identifier,
		Scope:      mt.scope,
		Tags:       Tags{},
	}
	seen[mt.Identifier] = &spec
	for k, v := range mt.Tags {
		spec.Tags[k] = v
	}

	for _, f := range mt.Fields {
		fs := FieldSpec{
			Name:       f.Name,
			Type:       f.Type,
			Kind:       f.Kind,
			Collection: f.Collection,
			Elem:       f.Elem,
			Static:     f.Static,
			Tags:       Tags{},
		}
		for k, v := range f.Tags {
			fs.Tags[k] = v
		}
		spec.Fields = append(spec.Fields, fs)
	}

	for _, parent := range mt.Extends {
		if prev, ok := seen[parent]; ok {
			spec.Embeds = append(spec.Embeds, prev)
			continue
		}
		pt, ok := m.types[parent]
		if !ok {
			// Unknown supertypes contribute nothing, like a chain that ends.
			continue
		}
		sup := m.spec(pt, seen)
		spec.Embeds = append(spec.Embeds, &sup)
	}
	return spec
}

func joinScope(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

// ManifestFile re-reads a manifest on every scan so edits are picked up by
// the next discovery without a restart.
type ManifestFile struct {
	Path string
}

func (f ManifestFile) load() (*Manifest, error) {
	return LoadManifestFile(f.Path)
}

func (f ManifestFile) Candidates(ctx context.Context, scope string) ([]TypeSpec, error) {
	m, err := f.load()
	if err != nil {
		return nil, err
	}
	return m.Candidates(ctx, scope)
}

func (f ManifestFile) Lookup(target any) (TypeSpec, error) {
	m, err := f.load()
	if err != nil {
		return TypeSpec{}, err
	}
	return m.Lookup(target)
}

// Multi chains providers. Candidates are concatenated; the first identifier
// wins when two providers declare the same one. Lookup asks each provider
// in turn and returns the first hit.
type Multi []Provider

func (mp Multi) Candidates(ctx context.Context, scope string) ([]TypeSpec, error) {
	var out []TypeSpec
	seen := make(map[string]bool)
	for _, p := range mp {
		specs, err := p.Candidates(ctx, scope)
		if err != nil {
			return nil, err
		}
		for _, s := range specs {
			if seen[s.Identifier] {
				continue
			}
			seen[s.Identifier] = true
			out = append(out, s)
		}
	}
	return out, nil
}

func (mp Multi) Lookup(target any) (TypeSpec, error) {
	var lastErr error = errs.New(errs.ErrKindNotFound, "no providers configured")
	for _, p := range mp {
		spec, err := p.Lookup(target)
		if err == nil {
			return spec, nil
		}
		lastErr = err
	}
	return TypeSpec{}, lastErr
}
