package executor

import (
	"strings"

	"github.com/koustreak/dataagent/internal/model"
)

var ddlPrefixes = []string{"CREATE", "ALTER", "DROP", "TRUNCATE"}

// Classify maps a statement onto a query kind by its leading keyword,
// ignoring case and surrounding whitespace.
func Classify(sql string) model.QueryKind {
	s := strings.ToUpper(strings.TrimSpace(sql))
	switch {
	case strings.HasPrefix(s, "SELECT"):
		return model.KindSelect
	case strings.HasPrefix(s, "INSERT"):
		return model.KindInsert
	case strings.HasPrefix(s, "UPDATE"):
		return model.KindUpdate
	case strings.HasPrefix(s, "DELETE"):
		return model.KindDelete
	}
	for _, p := range ddlPrefixes {
		if strings.HasPrefix(s, p) {
			return model.KindDDL
		}
	}
	return model.KindOther
}
