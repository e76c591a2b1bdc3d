package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/introspect"
	"github.com/koustreak/dataagent/internal/logger"
)

// ScopePrefix selects the live database as a discovery scope: "db" reads
// the default schema, "db/<schema>" a named one. Entity identifiers are
// "db/<schema>.<table>".
const ScopePrefix = "db"

// sensitiveColumns flags columns that usually hold personal or secret data.
var sensitiveColumns = []string{"password", "passwd", "secret", "token", "ssn", "email", "phone"}

// Provider is an introspect.Provider over a Reader. Scopes that do not
// start with ScopePrefix yield no candidates, so it chains in
// introspect.Multi next to the compiled catalog.
type Provider struct {
	reader Reader
	log    *logger.Logger
}

var _ introspect.Provider = (*Provider)(nil)

func NewProvider(r Reader, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &Provider{reader: r, log: log.Component("schema")}
}

func (p *Provider) Candidates(ctx context.Context, scope string) ([]introspect.TypeSpec, error) {
	name, ok := splitScope(scope)
	if !ok {
		return nil, nil
	}
	if name == "" {
		def, err := p.reader.DefaultSchema(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindScanScope, "cannot resolve default schema", err)
		}
		name = def
	}

	info, err := p.reader.InspectSchema(ctx, name)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindScanScope, fmt.Sprintf("cannot read schema %q", name), err)
	}
	p.log.InfoWith("read database schema", map[string]any{
		"schema":       name,
		"tables":       len(info.Tables),
		"foreign_keys": len(info.ForeignKeys),
	})

	specs := make([]introspect.TypeSpec, 0, len(info.Tables))
	for i := range info.Tables {
		specs = append(specs, specFor(info, &info.Tables[i]))
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Identifier < specs[j].Identifier })
	return specs, nil
}

// Lookup resolves a "db/<schema>.<table>" identifier.
func (p *Provider) Lookup(target any) (introspect.TypeSpec, error) {
	id, ok := target.(string)
	if !ok {
		return introspect.TypeSpec{}, errs.Newf(errs.ErrKindNotFound, "%T is not a table identifier", target)
	}
	rest, ok := strings.CutPrefix(id, ScopePrefix+"/")
	if !ok {
		return introspect.TypeSpec{}, errs.Newf(errs.ErrKindNotFound, "%q is not a table identifier", id)
	}
	schemaName, table, ok := strings.Cut(rest, ".")
	if !ok || schemaName == "" || table == "" {
		return introspect.TypeSpec{}, errs.Newf(errs.ErrKindInvalidInput, "malformed table identifier %q", id)
	}

	// Relationships need the whole schema's foreign keys.
	info, err := p.reader.InspectSchema(context.Background(), schemaName)
	if err != nil {
		return introspect.TypeSpec{}, err
	}
	t, found := info.Table(table)
	if !found {
		return introspect.TypeSpec{}, errs.Newf(errs.ErrKindNotFound, "table %s does not exist in schema %s", table, schemaName)
	}
	return specFor(info, t), nil
}

func splitScope(scope string) (string, bool) {
	scope = strings.TrimSpace(scope)
	if scope == ScopePrefix {
		return "", true
	}
	name, ok := strings.CutPrefix(scope, ScopePrefix+"/")
	return strings.TrimSpace(name), ok
}

func identifier(schemaName, table string) string {
	return ScopePrefix + "/" + schemaName + "." + table
}

// specFor renders a table as a marked type: columns become fields,
// outgoing foreign keys many-to-one references and incoming ones
// one-to-many collections.
func specFor(info *SchemaInfo, t *TableInfo) introspect.TypeSpec {
	spec := introspect.TypeSpec{
		Name:       pascal(t.Name),
		Identifier: identifier(t.Schema, t.Name),
		Scope:      ScopePrefix + "/" + t.Schema,
		Tags: introspect.Tags{
			introspect.TagAgent: fmt.Sprintf("description:Table %s.%s", t.Schema, t.Name),
			introspect.TagTable: t.Name,
		},
		Handle: identifier(t.Schema, t.Name),
	}

	used := make(map[string]bool)
	for _, c := range t.Columns {
		name := uniqueName(pascal(c.Name), used)
		spec.Fields = append(spec.Fields, introspect.FieldSpec{
			Name: name,
			Type: goType(c.DataType),
			Tags: columnTags(c),
		})
	}

	for _, fk := range info.ForeignKeys {
		if fk.FromTable == t.Name {
			spec.Fields = append(spec.Fields, introspect.FieldSpec{
				Name:   uniqueName(pascal(referenceName(fk.FromColumn, fk.ToTable)), used),
				Type:   pascal(fk.ToTable),
				TypeID: identifier(t.Schema, fk.ToTable),
				Tags: introspect.Tags{
					introspect.TagManyToOne:  "fetch:LAZY",
					introspect.TagJoinColumn: fk.FromColumn,
				},
			})
		}
	}
	for _, fk := range info.ForeignKeys {
		if fk.ToTable == t.Name && fk.FromTable != t.Name {
			spec.Fields = append(spec.Fields, introspect.FieldSpec{
				Name:       uniqueName(pascal(fk.FromTable), used),
				Type:       "[]" + pascal(fk.FromTable),
				Collection: true,
				Elem:       identifier(t.Schema, fk.FromTable),
				Tags: introspect.Tags{
					introspect.TagOneToMany: "mappedBy:" + pascal(referenceName(fk.FromColumn, fk.ToTable)),
				},
			})
		}
	}
	return spec
}

func columnTags(c ColumnInfo) introspect.Tags {
	parts := []string{"name:" + c.Name}
	if c.IsPrimaryKey {
		parts = append(parts, "pk")
	}
	if !c.IsNullable {
		parts = append(parts, "nullable:false")
	}
	if c.IsUnique {
		parts = append(parts, "unique:true")
	}
	if c.MaxLength != nil && *c.MaxLength > 0 {
		parts = append(parts, fmt.Sprintf("length:%d", *c.MaxLength))
	}

	tags := introspect.Tags{introspect.TagColumn: strings.Join(parts, ";")}
	lower := strings.ToLower(c.Name)
	for _, s := range sensitiveColumns {
		if strings.Contains(lower, s) {
			tags[introspect.TagMeta] = "sensitive"
			break
		}
	}
	return tags
}

// goType maps an engine column type onto the Go type the introspector
// knows how to classify.
func goType(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if t == "tinyint(1)" {
		return "bool"
	}
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSuffix(t, " unsigned")

	switch {
	case t == "bigint" || t == "int8" || t == "bigserial":
		return "int64"
	case t == "int" || t == "integer" || t == "int4" || t == "smallint" || t == "int2" ||
		t == "mediumint" || t == "tinyint" || t == "serial" || t == "smallserial":
		return "int32"
	case t == "real" || t == "float4" || t == "float":
		return "float32"
	case t == "double" || t == "double precision" || t == "float8":
		return "float64"
	case t == "numeric" || t == "decimal":
		return "big.Float"
	case t == "boolean" || t == "bool":
		return "bool"
	case t == "date":
		return "civil.Date"
	case strings.HasPrefix(t, "timestamp") || t == "datetime":
		return "time.Time"
	case strings.HasPrefix(t, "time"):
		return "civil.Time"
	}
	return "string"
}

// referenceName turns "user_id" or "userId" into "user"; any other
// column is named after the referenced table.
func referenceName(column, toTable string) string {
	switch {
	case len(column) > 3 && strings.EqualFold(column[len(column)-3:], "_id"):
		return column[:len(column)-3]
	case len(column) > 2 && strings.HasSuffix(column, "Id"):
		return column[:len(column)-2]
	}
	return toTable
}

func pascal(s string) string {
	var sb strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' || r == '-' || r == ' ' {
			upper = true
			continue
		}
		if upper {
			sb.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		sb.WriteRune(r)
	}
	if sb.Len() == 0 {
		return s
	}
	return sb.String()
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s%d", name, i)
	}
	used[candidate] = true
	return candidate
}
