// Package validate is the safety gate between translation and execution.
//
// A Validator never executes anything. It scores a candidate statement
// against the known schemas and either lets it through, with warnings, or
// blocks it with a reason.
package validate

import (
	"context"

	"github.com/koustreak/dataagent/internal/model"
)

// Validator scores sql for safety. It never fails: problems are reported
// through the returned result.
type Validator interface {
	Validate(ctx context.Context, sql string, schemas []*model.EntityDescriptor) model.ValidationResult
}

// Func adapts a plain function to Validator.
type Func func(ctx context.Context, sql string, schemas []*model.EntityDescriptor) model.ValidationResult

func (f Func) Validate(ctx context.Context, sql string, schemas []*model.EntityDescriptor) model.ValidationResult {
	return f(ctx, sql, schemas)
}

// Block returns a blocked verdict with a zero score.
func Block(reason string, warnings ...string) model.ValidationResult {
	if warnings == nil {
		warnings = []string{}
	}
	return model.ValidationResult{
		Valid:       false,
		SafetyScore: 0,
		Warnings:    warnings,
		Blocked:     true,
		Reason:      reason,
	}
}
