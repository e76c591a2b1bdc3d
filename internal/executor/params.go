package executor

import (
	"sort"
	"strconv"
	"strings"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/errs"
)

// BindNamed rewrites :name placeholders into the dialect's positional form
// and returns the matching argument list.
//
// Text inside single or double quotes and "::" casts are left alone. A
// name used twice binds twice. When the statement has no named
// placeholders, params whose keys are all integers ("1", "2", ...) are
// bound positionally in key order.
func BindNamed(sql string, params map[string]any, d database.Dialect) (string, []any, error) {
	if len(params) == 0 && !strings.Contains(sql, ":") {
		return sql, nil, nil
	}

	var (
		sb    strings.Builder
		args  []any
		used  = make(map[string]bool)
		quote byte
	)
	sb.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		if quote != 0 {
			sb.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"':
			quote = c
			sb.WriteByte(c)

		case c == ':' && i+1 < len(sql) && sql[i+1] == ':':
			sb.WriteString("::")
			i++

		case c == ':' && i+1 < len(sql) && isNameStart(sql[i+1]):
			j := i + 1
			for j < len(sql) && isNamePart(sql[j]) {
				j++
			}
			name := sql[i+1 : j]
			val, ok := params[name]
			if !ok {
				return "", nil, errs.Newf(errs.ErrKindInvalidInput, "no value for parameter :%s", name)
			}
			args = append(args, val)
			used[name] = true
			sb.WriteString(d.Placeholder(len(args)))
			i = j - 1

		default:
			sb.WriteByte(c)
		}
	}

	if len(used) == 0 && len(params) > 0 {
		pos, err := positional(params)
		if err != nil {
			return "", nil, err
		}
		return sql, pos, nil
	}

	for name := range params {
		if !used[name] {
			return "", nil, errs.Newf(errs.ErrKindInvalidInput, "parameter %q is not used by the statement", name)
		}
	}
	return sb.String(), args, nil
}

func positional(params map[string]any) ([]any, error) {
	type slot struct {
		n   int
		key string
	}
	slots := make([]slot, 0, len(params))
	for k := range params {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "parameter %q is not used by the statement", k)
		}
		slots = append(slots, slot{n, k})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].n < slots[j].n })
	args := make([]any, len(slots))
	for i, s := range slots {
		args[i] = params[s.key]
	}
	return args, nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
