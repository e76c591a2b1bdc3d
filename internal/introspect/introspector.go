package introspect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

// relationMarkers is the order in which relationship markers are tried.
// The first one present on a field decides the relationship type.
var relationMarkers = []struct {
	tag  string
	kind model.RelationshipType
}{
	{TagOneToOne, model.OneToOne},
	{TagOneToMany, model.OneToMany},
	{TagManyToOne, model.ManyToOne},
	{TagManyToMany, model.ManyToMany},
}

// Options tunes an Introspector.
type Options struct {
	// MaxEntities caps the descriptors returned by one Discover call.
	// Zero means unlimited.
	MaxEntities int

	// Now stamps DiscoveredAt. Defaults to time.Now.
	Now func() time.Time
}

// Introspector builds entity descriptors from a Provider.
// Discover is not meant to run concurrently for the same scope; callers
// serialize overlapping scans.
type Introspector struct {
	provider Provider
	log      *logger.Logger
	opts     Options
}

// New creates an Introspector reading from provider.
func New(provider Provider, log *logger.Logger, opts Options) *Introspector {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Introspector{provider: provider, log: log.Component("introspector"), opts: opts}
}

// Discover returns a descriptor for every discoverable type in scope.
//
// A type that cannot be described is logged and left out; the scan goes
// on. Only a failure to read the scope itself is returned, as a
// scan-scope error.
func (in *Introspector) Discover(ctx context.Context, scope string) ([]*model.EntityDescriptor, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errs.New(errs.ErrKindScanScope, "scan scope must not be empty")
	}

	in.log.Infof("starting entity discovery in scope %s", scope)

	specs, err := in.provider.Candidates(ctx, scope)
	if err != nil {
		if errs.IsScanScope(err) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrKindScanScope, fmt.Sprintf("cannot scan scope %q", scope), err)
	}

	candidates := make([]TypeSpec, 0, len(specs))
	for _, spec := range specs {
		if isDiscoverable(spec) {
			candidates = append(candidates, spec)
		}
	}
	in.log.InfoWith("found candidate entities", map[string]any{
		"scope":      scope,
		"types":      len(specs),
		"candidates": len(candidates),
	})

	out := make([]*model.EntityDescriptor, 0, len(candidates))
	for _, spec := range candidates {
		if err := ctx.Err(); err != nil {
			return out, errs.Wrap(errs.ErrKindTimeout, "discovery interrupted", err)
		}
		if in.opts.MaxEntities > 0 && len(out) >= in.opts.MaxEntities {
			in.log.Warnf("scope %s: entity limit %d reached, %d candidates not described",
				scope, in.opts.MaxEntities, len(candidates)-len(out))
			break
		}

		desc, err := in.Describe(spec)
		if err != nil {
			in.log.ErrorWith("failed to describe entity", err, map[string]any{
				"entity": spec.Identifier,
				"scope":  scope,
			})
			continue
		}
		out = append(out, desc)
	}

	in.log.Infof("discovered %d entities in scope %s", len(out), scope)
	return out, nil
}

// DescribeType looks target up through the provider and describes it.
// The discoverable marker is not required here.
func (in *Introspector) DescribeType(target any) (*model.EntityDescriptor, error) {
	spec, err := in.provider.Lookup(target)
	if err != nil {
		if errs.KindOf(err) != errs.ErrKindUnknown {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrKindIntrospection, fmt.Sprintf("cannot look up %v", target), err)
	}
	return in.Describe(spec)
}

// Refresh re-describes the type d was built from.
func (in *Introspector) Refresh(d *model.EntityDescriptor) (*model.EntityDescriptor, error) {
	if d == nil || d.Source == nil {
		return nil, errs.New(errs.ErrKindIntrospection, "descriptor carries no source type")
	}
	return in.DescribeType(d.Source)
}

// Describe builds exactly one descriptor from spec.
func (in *Introspector) Describe(spec TypeSpec) (*model.EntityDescriptor, error) {
	if spec.Name == "" && spec.Identifier == "" {
		return nil, errs.New(errs.ErrKindIntrospection, "type has neither a name nor an identifier")
	}
	if spec.Identifier == "" {
		spec.Identifier = spec.Name
	}
	if spec.Name == "" {
		spec.Name = model.SimpleName(spec.Identifier)
	}

	agent := parseDirectives(spec.Tags[TagAgent])

	desc := &model.EntityDescriptor{
		Identifier:    spec.Identifier,
		TableName:     tableName(spec, agent),
		Description:   agent.str("description"),
		Fields:        []model.FieldDescriptor{},
		Relationships: []model.RelationshipDescriptor{},
		DiscoveredAt:  in.opts.Now(),
		Source:        spec.Handle,
	}
	if desc.Source == nil {
		desc.Source = spec.Identifier
	}

	for _, f := range collectFields(&spec) {
		if kind, rawRel, ok := relationMarker(f); ok {
			rel, err := buildRelationship(f, kind, rawRel)
			if err != nil {
				return nil, errs.Wrap(errs.ErrKindIntrospection,
					fmt.Sprintf("%s.%s: bad relationship marker", spec.Identifier, f.Name), err)
			}
			desc.Relationships = append(desc.Relationships, rel)
			continue
		}

		field, err := buildField(f)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindIntrospection,
				fmt.Sprintf("%s.%s: bad field marker", spec.Identifier, f.Name), err)
		}
		desc.Fields = append(desc.Fields, field)
	}

	in.log.DebugWith("described entity", map[string]any{
		"entity":        desc.Identifier,
		"table":         desc.TableName,
		"fields":        len(desc.Fields),
		"relationships": len(desc.Relationships),
	})
	return desc, nil
}

func isDiscoverable(spec TypeSpec) bool {
	raw, ok := spec.Tags.Lookup(TagAgent)
	if !ok {
		return false
	}
	on, err := parseDirectives(raw).boolean("discoverable", true)
	return err == nil && on
}

// tableName applies: marker override > type override > upper-cased name.
func tableName(spec TypeSpec, agent directives) string {
	if t := agent.str("table"); t != "" {
		return t
	}
	if t := strings.TrimSpace(spec.Tags[TagTable]); t != "" {
		return t
	}
	return strings.ToUpper(spec.Name)
}

// collectFields returns the type's own fields followed by inherited ones,
// walking embedded types depth first. A name seen earlier shadows later
// ones; static members are dropped.
func collectFields(spec *TypeSpec) []FieldSpec {
	var out []FieldSpec
	seenName := make(map[string]bool)
	seenType := make(map[string]bool)

	var walk func(s *TypeSpec)
	walk = func(s *TypeSpec) {
		if s == nil || seenType[s.Identifier] {
			return
		}
		seenType[s.Identifier] = true
		for _, f := range s.Fields {
			if f.Static || seenName[f.Name] {
				continue
			}
			seenName[f.Name] = true
			out = append(out, f)
		}
		for _, sup := range s.Embeds {
			walk(sup)
		}
	}
	walk(spec)
	return out
}

func relationMarker(f FieldSpec) (model.RelationshipType, string, bool) {
	for _, m := range relationMarkers {
		if raw, ok := f.Tags.Lookup(m.tag); ok {
			return m.kind, raw, true
		}
	}
	return "", "", false
}

func buildRelationship(f FieldSpec, kind model.RelationshipType, raw string) (model.RelationshipDescriptor, error) {
	d := parseDirectives(raw)

	target := f.typeID()
	if f.Collection && f.Elem != "" {
		target = f.Elem
	}

	rel := model.RelationshipDescriptor{
		FieldName:        f.Name,
		TargetEntity:     target,
		RelationshipType: kind,
		JoinColumn:       strings.TrimSpace(f.Tags[TagJoinColumn]),
		CascadeTypes:     d.list("cascade"),
		FetchType:        model.ParseFetchType(d.str("fetch")),
	}
	if kind != model.ManyToOne {
		rel.MappedBy = d.str("mappedBy")
	}

	if fetch := d.str("fetch"); fetch != "" &&
		!strings.EqualFold(fetch, string(model.FetchLazy)) && !strings.EqualFold(fetch, string(model.FetchEager)) {
		return rel, fmt.Errorf("unknown fetch type %q", fetch)
	}
	return rel, nil
}

func buildField(f FieldSpec) (model.FieldDescriptor, error) {
	col := parseDirectives(f.Tags[TagColumn])
	meta := parseDirectives(f.Tags[TagMeta])

	field := model.FieldDescriptor{
		FieldName:   f.Name,
		ColumnName:  strings.ToLower(f.Name),
		FieldType:   f.Type,
		ColumnType:  ColumnTypeFor(f.Type, f.Kind),
		Description: meta.str("description"),
		Examples:    meta.str("examples"),
		Category:    meta.str("category"),
		DataQuality: meta.str("quality"),
	}
	if name := col.str("name"); name != "" {
		field.ColumnName = name
	}

	var err error
	if field.PrimaryKey, err = col.boolean("pk", false); err != nil {
		return field, fmt.Errorf("pk: %w", err)
	}
	if field.Nullable, err = col.boolean("nullable", true); err != nil {
		return field, fmt.Errorf("nullable: %w", err)
	}
	if field.Unique, err = col.boolean("unique", false); err != nil {
		return field, fmt.Errorf("unique: %w", err)
	}
	if field.Sensitive, err = meta.boolean("sensitive", false); err != nil {
		return field, fmt.Errorf("sensitive: %w", err)
	}

	for key, dst := range map[string]**int{
		"length":    &field.Length,
		"precision": &field.Precision,
		"scale":     &field.Scale,
	} {
		n, err := col.integer(key)
		if err != nil {
			return field, fmt.Errorf("%s: %w", key, err)
		}
		*dst = model.PositiveInt(n)
	}
	return field, nil
}
