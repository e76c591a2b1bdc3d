// Package translate turns natural-language requests into candidate SQL.
//
// Nothing produced here is trusted: every statement still goes through the
// validator before it reaches the executor.
package translate

import (
	"context"
	"strings"

	"github.com/koustreak/dataagent/internal/model"
)

// Translator converts a request plus the known schemas into one statement
// in the target dialect ("postgresql", "mysql", "sqlite", ...).
type Translator interface {
	Translate(ctx context.Context, text string, schemas []*model.EntityDescriptor, dialect string) (string, error)
}

// Func adapts a plain function to Translator.
type Func func(ctx context.Context, text string, schemas []*model.EntityDescriptor, dialect string) (string, error)

func (f Func) Translate(ctx context.Context, text string, schemas []*model.EntityDescriptor, dialect string) (string, error) {
	return f(ctx, text, schemas, dialect)
}

// cleanSQL strips markdown fences and a trailing semicolon from model output.
func cleanSQL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			first := strings.TrimSpace(s[:nl])
			if first == "" || !strings.ContainsAny(first, " \t") {
				s = s[nl+1:]
			}
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, ";"))
}
