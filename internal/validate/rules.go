package validate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

// Score deductions per finding.
const (
	penaltyComment      = 10
	penaltyUnknownTable = 15
	penaltySelectStar   = 5
	penaltySensitive    = 10
	penaltyNoLimit      = 5
	penaltyWrite        = 20
	penaltyUnrecognized = 30
)

// DefaultMinScore is used when RuleValidator.MinScore is zero.
const DefaultMinScore = 50

var (
	ddlKeywords = map[string]bool{
		"CREATE": true, "ALTER": true, "DROP": true, "TRUNCATE": true,
		"RENAME": true, "GRANT": true, "REVOKE": true, "COMMENT": true,
	}
	writeKeywords = map[string]bool{
		"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
		"REPLACE": true, "UPSERT": true, "COPY": true,
	}
	readKeywords = map[string]bool{"SELECT": true, "WITH": true}

	// clause words that can follow a table name and are therefore not aliases
	clauseWords = map[string]bool{
		"WHERE": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
		"FULL": true, "CROSS": true, "OUTER": true, "NATURAL": true, "ON": true,
		"USING": true, "GROUP": true, "ORDER": true, "LIMIT": true, "OFFSET": true,
		"HAVING": true, "UNION": true, "EXCEPT": true, "INTERSECT": true,
		"SET": true, "VALUES": true, "WINDOW": true, "FETCH": true, "FOR": true,
		"RETURNING": true, "SELECT": true, "LATERAL": true, "DEFAULT": true,
	}
	// functions whose argument list uses FROM without naming a table
	fromFunctions = map[string]bool{
		"EXTRACT": true, "SUBSTRING": true, "TRIM": true, "POSITION": true, "OVERLAY": true,
	}

	aggregateOnly = regexp.MustCompile(`(?i)^SELECT\s+(?:COUNT|SUM|AVG|MIN|MAX)\s*\([^()]*\)\s+FROM\b`)
	cteName       = regexp.MustCompile(`(?i)(?:\bWITH(?:\s+RECURSIVE)?|,)\s+([A-Za-z_][A-Za-z0-9_]*)\s+AS\s*\(`)
)

// RuleValidator is a static, schema-aware validator. Every statement starts
// at a score of 100 and loses points per finding. Some findings block
// outright:
//
//   - empty input, unterminated quotes or comments
//   - more than one statement
//   - DDL
//   - UPDATE or DELETE without WHERE
//   - any write when ReadOnly is set
//   - a final score below MinScore
type RuleValidator struct {
	MinScore int
	ReadOnly bool
	// Dialect decides where string literals and comments end.
	Dialect database.Dialect

	log *logger.Logger
}

// NewRuleValidator creates a RuleValidator for statements in dialect d.
// minScore <= 0 uses DefaultMinScore.
func NewRuleValidator(minScore int, readOnly bool, d database.Dialect, log *logger.Logger) *RuleValidator {
	if log == nil {
		log = logger.Nop()
	}
	return &RuleValidator{MinScore: minScore, ReadOnly: readOnly, Dialect: d, log: log.Component("validator")}
}

func (v *RuleValidator) Validate(ctx context.Context, sql string, schemas []*model.EntityDescriptor) model.ValidationResult {
	if ctx.Err() != nil {
		return Block("validation interrupted")
	}
	stmt := strings.TrimSpace(sql)
	if stmt == "" {
		return Block("empty query")
	}

	sc := scan(stmt, v.Dialect)
	if sc.unterminated {
		return Block("unterminated quote or comment")
	}
	code := strings.TrimSpace(strings.TrimRight(sc.code, "; \t\r\n"))
	toks := tokens(code)
	if len(toks) == 0 {
		return Block("empty query")
	}

	var (
		score    = 100
		warnings = []string{}
	)
	warn := func(penalty int, format string, args ...any) {
		score -= penalty
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if sc.comments {
		warn(penaltyComment, "query contains comments")
	}

	for _, t := range toks {
		if t == ";" {
			return Block("multiple statements are not allowed", warnings...)
		}
	}

	lead := leadingKeyword(toks)
	words := wordSet(toks)

	if ddlKeywords[lead] {
		return Block(fmt.Sprintf("%s statements are not allowed", lead), warnings...)
	}
	if v.ReadOnly {
		for i, t := range toks {
			if !writeKeywords[t] && !ddlKeywords[t] {
				continue
			}
			if i+1 < len(toks) && toks[i+1] == "(" {
				// REPLACE(...) and friends are functions
				continue
			}
			if t == "UPDATE" && i > 0 && toks[i-1] == "FOR" {
				// SELECT ... FOR UPDATE is a lock, not a write
				continue
			}
			return Block("write statements are not allowed in read-only mode", warnings...)
		}
	}
	if (lead == "DELETE" || lead == "UPDATE") && !words["WHERE"] {
		return Block(fmt.Sprintf("%s without WHERE clause affects every row", lead), warnings...)
	}

	switch {
	case readKeywords[lead]:
	case writeKeywords[lead]:
		warn(penaltyWrite, "%s statement modifies data", lead)
	default:
		warn(penaltyUnrecognized, "unrecognized statement type %s", lead)
	}

	star := selectsStar(toks)
	if star {
		warn(penaltySelectStar, "SELECT * returns every column")
	}

	tables := referencedTables(toks)
	ctes := make(map[string]bool)
	for _, m := range cteName.FindAllStringSubmatch(code, -1) {
		ctes[strings.ToUpper(m[1])] = true
	}

	known := indexTables(schemas)
	var touched []*model.EntityDescriptor
	for _, t := range tables {
		if ctes[t] {
			continue
		}
		d, ok := known[t]
		if !ok {
			if len(known) > 0 {
				warn(penaltyUnknownTable, "unknown table %s", t)
			}
			continue
		}
		touched = append(touched, d)
	}

	for _, d := range touched {
		for _, f := range d.Fields {
			if !f.Sensitive {
				continue
			}
			col := strings.ToUpper(f.ColumnName)
			switch {
			case words[col]:
				warn(penaltySensitive, "query reads sensitive column %s.%s", d.TableName, f.ColumnName)
			case star:
				warn(penaltySensitive, "SELECT * exposes sensitive column %s.%s", d.TableName, f.ColumnName)
			}
		}
	}

	if lead == "SELECT" && !words["LIMIT"] && !words["FETCH"] && !words["TOP"] && !aggregateOnly.MatchString(code) {
		warn(penaltyNoLimit, "query has no LIMIT clause")
	}

	if score < 0 {
		score = 0
	}
	minScore := v.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	if score < minScore {
		res := Block(fmt.Sprintf("safety score %d is below the minimum of %d", score, minScore), warnings...)
		res.SafetyScore = score
		v.log.WarnWith("query blocked", nil, map[string]any{"score": score, "warnings": len(warnings)})
		return res
	}

	v.log.DebugWith("query validated", map[string]any{"score": score, "warnings": len(warnings)})
	return model.ValidationResult{
		Valid:       true,
		SafetyScore: score,
		Warnings:    warnings,
	}
}

func leadingKeyword(toks []string) string {
	for _, t := range toks {
		if isIdent(t) {
			return t
		}
	}
	return ""
}

func wordSet(toks []string) map[string]bool {
	out := make(map[string]bool, len(toks))
	for _, t := range toks {
		if !isIdent(t) {
			continue
		}
		out[t] = true
		out[baseName(t)] = true
	}
	return out
}

func selectsStar(toks []string) bool {
	for i, t := range toks {
		if t == "*" && i > 0 {
			prev := toks[i-1]
			if prev == "SELECT" || prev == "DISTINCT" || prev == "," {
				return true
			}
		}
		if strings.HasSuffix(t, ".*") {
			return true
		}
	}
	return false
}

// referencedTables collects the base names following FROM, JOIN, INTO and
// a leading UPDATE, including comma-separated FROM lists.
func referencedTables(toks []string) []string {
	var (
		out    []string
		seen   = make(map[string]bool)
		parens []string // token that opened each paren group
	)
	add := func(name string) {
		name = baseName(name)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t {
		case "(":
			opener := ""
			if i > 0 {
				opener = toks[i-1]
			}
			parens = append(parens, opener)
			continue
		case ")":
			if len(parens) > 0 {
				parens = parens[:len(parens)-1]
			}
			continue
		}

		switch {
		case t == "FROM":
			if len(parens) > 0 && fromFunctions[parens[len(parens)-1]] {
				continue
			}
			for j := i + 1; j < len(toks); {
				if !isIdent(toks[j]) || clauseWords[toks[j]] {
					break
				}
				add(toks[j])
				j = skipAlias(toks, j+1)
				i = j - 1
				if j < len(toks) && toks[j] == "," {
					j++
					continue
				}
				break
			}
		case t == "JOIN" || t == "INTO" || (t == "UPDATE" && (i == 0 || toks[i-1] != "FOR")):
			if i+1 < len(toks) && isIdent(toks[i+1]) && !clauseWords[toks[i+1]] {
				add(toks[i+1])
			}
		}
	}
	return out
}

func skipAlias(toks []string, j int) int {
	if j < len(toks) && toks[j] == "AS" {
		j++
	}
	if j < len(toks) && isIdent(toks[j]) && !clauseWords[toks[j]] {
		j++
	}
	return j
}

func indexTables(schemas []*model.EntityDescriptor) map[string]*model.EntityDescriptor {
	out := make(map[string]*model.EntityDescriptor, len(schemas))
	for _, d := range schemas {
		if d == nil || d.TableName == "" {
			continue
		}
		out[strings.ToUpper(baseName(d.TableName))] = d
	}
	return out
}
