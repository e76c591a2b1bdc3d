package validate

import (
	"regexp"
	"strings"

	"github.com/koustreak/dataagent/internal/database"
)

// scanned is a statement with its literals and comments taken out.
type scanned struct {
	// code keeps the statement structure. String literals become '' and
	// quoted identifiers lose their quotes.
	code     string
	comments bool
	// unterminated is set when a quote or block comment never closes.
	unterminated bool
}

// scan follows d's literal rules. Backslash escapes and # comments are
// MySQL only; Postgres honours backslashes inside E'...' strings alone.
func scan(sql string, d database.Dialect) scanned {
	var (
		out strings.Builder
		res scanned
	)
	out.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			res.comments = true
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			out.WriteByte(' ')
		case c == '#' && d == database.DialectMySQL:
			res.comments = true
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			out.WriteByte(' ')
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			res.comments = true
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				res.unterminated = true
				i = len(sql)
			} else {
				i += end + 3
			}
			out.WriteByte(' ')
		case c == '\'':
			escapes := d == database.DialectMySQL || (d == database.DialectPostgres && escapeString(sql, i))
			j := i + 1
			for ; j < len(sql); j++ {
				if escapes && sql[j] == '\\' {
					j++
					continue
				}
				if sql[j] == '\'' {
					if j+1 < len(sql) && sql[j+1] == '\'' {
						j++
						continue
					}
					break
				}
			}
			if j >= len(sql) {
				res.unterminated = true
			}
			out.WriteString("''")
			i = j
		case c == '"' || c == '`':
			end := strings.IndexByte(sql[i+1:], c)
			if end < 0 {
				res.unterminated = true
				out.WriteString(sql[i+1:])
				i = len(sql)
			} else {
				out.WriteString(sql[i+1 : i+1+end])
				i += end + 1
			}
		default:
			out.WriteByte(c)
		}
	}
	res.code = strings.TrimSpace(out.String())
	return res
}

// escapeString reports whether the quote at i opens a Postgres E'...' literal.
func escapeString(sql string, i int) bool {
	if i == 0 || (sql[i-1] != 'E' && sql[i-1] != 'e') {
		return false
	}
	return i == 1 || !identByte(sql[i-2])
}

func identByte(c byte) bool {
	return c == '_' || c == '$' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

var tokenRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_$]*(?:\.(?:[A-Za-z_][A-Za-z0-9_$]*|\*))*|''|\d+(?:\.\d+)?|\S`)

// tokens splits scanned code into identifiers, numbers and single
// punctuation characters. Identifiers are upper-cased.
func tokens(code string) []string {
	raw := tokenRe.FindAllString(code, -1)
	for i, t := range raw {
		raw[i] = strings.ToUpper(t)
	}
	return raw
}

func isIdent(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return c == '_' || (c >= 'A' && c <= 'Z')
}

// baseName drops a schema or catalog qualifier.
func baseName(ident string) string {
	if i := strings.LastIndexByte(ident, '.'); i >= 0 {
		return ident[i+1:]
	}
	return ident
}
