package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/sentinel"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"domain error passes through", dErrors.New(dErrors.CodeForbidden, "not the owner"), dErrors.CodeForbidden},
		{"deadline", fmt.Errorf("lock ledger state: %w", context.DeadlineExceeded), dErrors.CodeTimeout},
		{"deadline while connecting", fmt.Errorf("begin ledger tx: %w: %w", sentinel.ErrUnavailable, context.DeadlineExceeded), dErrors.CodeTimeout},
		{"missing state row", fmt.Errorf("ledger state row: %w", sentinel.ErrNotFound), dErrors.CodeInternal},
		{"undecodable state", fmt.Errorf("decode ledger state: %w", sentinel.ErrCorrupt), dErrors.CodeInvariantViolation},
		{"database down", fmt.Errorf("begin ledger tx: %w", sentinel.ErrUnavailable), dErrors.CodeOperationFailed},
		{"anything else", errors.New("disk full"), dErrors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, dErrors.CodeOf(translate(tt.err)))
		})
	}
}
