package translate

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

// RuleTranslator is an offline translator for simple lookups. It picks the
// entity the request talks about, then emits a single-table SELECT:
//
//	"how many users"                  -> SELECT COUNT(*) FROM UM_USER
//	"top 5 orders by total desc"      -> SELECT ... FROM ORDERS ORDER BY total DESC LIMIT 5
//	"show username and email of users" -> SELECT username, email FROM UM_USER LIMIT 100
//
// Sensitive columns are only selected when the request names them.
type RuleTranslator struct {
	// DefaultLimit caps row queries without an explicit limit. Zero means 100.
	DefaultLimit int

	log *logger.Logger
}

// NewRuleTranslator creates a RuleTranslator.
func NewRuleTranslator(defaultLimit int, log *logger.Logger) *RuleTranslator {
	if log == nil {
		log = logger.Nop()
	}
	return &RuleTranslator{DefaultLimit: defaultLimit, log: log.Component("translator")}
}

var (
	wordRe  = regexp.MustCompile(`[a-z0-9_]+`)
	limitRe = regexp.MustCompile(`\b(?:top|first|limit|last|latest|newest)\s+(\d+)\b`)
	orderRe = regexp.MustCompile(`\b(?:order(?:ed)?|sort(?:ed)?)\s+by\s+([a-z0-9_]+)(?:\s+(asc|ascending|desc|descending))?`)
	byRe    = regexp.MustCompile(`\bby\s+([a-z0-9_]+)(?:\s+(asc|ascending|desc|descending))?`)
)

var countPhrases = []string{"how many", "count", "number of", "total number"}

func (t *RuleTranslator) Translate(ctx context.Context, text string, schemas []*model.EntityDescriptor, dialect string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(errs.ErrKindTimeout, "translation interrupted", err)
	}
	req := strings.ToLower(strings.TrimSpace(text))
	if req == "" {
		return "", errs.New(errs.ErrKindTranslation, "empty request")
	}
	d, err := database.ParseDialect(dialect)
	if err != nil {
		// Unknown dialect names fall back to ANSI-style output.
		d = database.DialectPostgres
	}

	words := wordSet(req)
	target := bestEntity(words, schemas)
	if target == nil {
		return "", errs.New(errs.ErrKindTranslation, "cannot relate the request to any known entity")
	}

	q := database.Select(target.TableName, d)

	if isCount(req) {
		q.Count()
	} else {
		// "by total" names the sort key, not a column to project.
		q.Columns(pickColumns(wordSet(stripOrdering(req)), target)...)

		if col, dir, ok := ordering(req, target); ok {
			q.OrderBy(col, dir)
		}
		limit := t.DefaultLimit
		if limit <= 0 {
			limit = 100
		}
		if m := limitRe.FindStringSubmatch(req); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				limit = n
			}
		}
		q.Limit(limit)
	}

	sql, _, err := q.Build()
	if err != nil {
		return "", errs.Wrap(errs.ErrKindTranslation, "cannot build statement", err)
	}
	t.log.DebugWith("translated request", map[string]any{"entity": target.Identifier, "sql": sql})
	return sql, nil
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordRe.FindAllString(s, -1) {
		out[w] = true
		out[singular(w)] = true
	}
	return out
}

func singular(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 3:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ses") && len(w) > 3:
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 1:
		return w[:len(w)-1]
	}
	return w
}

// bestEntity scores every schema against the request words. Entity and
// table names weigh most; field names and description words break ties.
func bestEntity(words map[string]bool, schemas []*model.EntityDescriptor) *model.EntityDescriptor {
	type scored struct {
		d     *model.EntityDescriptor
		score int
	}
	var ranked []scored
	for _, d := range schemas {
		if d == nil {
			continue
		}
		score := 0
		name := strings.ToLower(d.SimpleName())
		table := strings.ToLower(d.TableName)
		if words[name] || words[singular(name)] {
			score += 10
		}
		if words[table] || words[singular(table)] {
			score += 8
		}
		for _, part := range strings.Split(table, "_") {
			if len(part) > 2 && (words[part] || words[singular(part)]) {
				score += 4
			}
		}
		for _, f := range d.Fields {
			if words[strings.ToLower(f.FieldName)] || words[strings.ToLower(f.ColumnName)] {
				score++
			}
		}
		for _, w := range wordRe.FindAllString(strings.ToLower(d.Description), -1) {
			if len(w) > 3 && words[w] {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{d, score})
		}
	}
	if len(ranked) == 0 {
		return nil
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].d.Identifier < ranked[j].d.Identifier
	})
	return ranked[0].d
}

func isCount(req string) bool {
	for _, p := range countPhrases {
		if strings.Contains(req, p) {
			return true
		}
	}
	return false
}

// pickColumns returns the columns the request names, or every
// non-sensitive column when it names none.
func pickColumns(words map[string]bool, d *model.EntityDescriptor) []string {
	var named, safe, all []string
	for _, f := range d.Fields {
		all = append(all, f.ColumnName)
		if mentions(words, f) {
			named = append(named, f.ColumnName)
		}
		if !f.Sensitive {
			safe = append(safe, f.ColumnName)
		}
	}
	switch {
	case len(named) > 0:
		return named
	case len(safe) > 0:
		return safe
	default:
		return all
	}
}

func mentions(words map[string]bool, f model.FieldDescriptor) bool {
	return words[strings.ToLower(f.FieldName)] || words[strings.ToLower(f.ColumnName)]
}

func ordering(req string, d *model.EntityDescriptor) (string, database.SortDirection, bool) {
	for _, re := range []*regexp.Regexp{orderRe, byRe} {
		for _, m := range re.FindAllStringSubmatch(req, -1) {
			for _, f := range d.Fields {
				if strings.EqualFold(m[1], f.ColumnName) || strings.EqualFold(m[1], f.FieldName) {
					return f.ColumnName, direction(m[2], req), true
				}
			}
		}
	}
	if strings.Contains(req, "latest") || strings.Contains(req, "newest") || strings.Contains(req, "most recent") {
		for _, f := range d.Fields {
			if f.ColumnType == model.ColumnTimestamp || f.ColumnType == model.ColumnDate {
				return f.ColumnName, database.Desc, true
			}
		}
	}
	return "", database.Asc, false
}

func stripOrdering(req string) string {
	req = orderRe.ReplaceAllString(req, " ")
	return byRe.ReplaceAllString(req, " ")
}

func direction(explicit, req string) database.SortDirection {
	switch explicit {
	case "desc", "descending":
		return database.Desc
	case "asc", "ascending":
		return database.Asc
	}
	if strings.Contains(req, "top ") || strings.Contains(req, "highest") || strings.Contains(req, "largest") {
		return database.Desc
	}
	return database.Asc
}
