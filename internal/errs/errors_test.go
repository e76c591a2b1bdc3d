package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	plain := New(ErrKindNotFound, "schema missing")
	assert.Equal(t, "[not_found] schema missing", plain.Error())

	wrapped := Wrap(ErrKindTimeout, "query timed out", context.DeadlineExceeded)
	assert.Equal(t, "[timeout] query timed out: context deadline exceeded", wrapped.Error())
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", New(ErrKindNotFound, "x"), IsNotFound},
		{"timeout", New(ErrKindTimeout, "x"), IsTimeout},
		{"connection", New(ErrKindConnectionFailed, "x"), IsConnectionFailed},
		{"query", New(ErrKindQueryFailed, "x"), IsQueryFailed},
		{"invalid input", New(ErrKindInvalidInput, "x"), IsInvalidInput},
		{"permission", New(ErrKindPermissionDenied, "x"), IsPermissionDenied},
		{"introspection", New(ErrKindIntrospection, "x"), IsIntrospection},
		{"scan scope", New(ErrKindScanScope, "x"), IsScanScope},
		{"translation", New(ErrKindTranslation, "x"), IsTranslation},
		{"blocked", New(ErrKindValidationBlocked, "x"), IsValidationBlocked},
		{"execution", New(ErrKindExecution, "x"), IsExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("outer: %w", tt.err)), "predicate must see through wrapping")
		})
	}
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))
	assert.Equal(t, "unknown", ErrKind(99).String())
}
