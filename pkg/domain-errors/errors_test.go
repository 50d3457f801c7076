package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("CodeOf returns outermost code", func(t *testing.T) {
		inner := New(CodeNotFound, "lot does not exist")
		outer := Wrap(inner, CodeInvariantViolation, "batch references a missing lot")

		assert.Equal(t, CodeInvariantViolation, CodeOf(outer))
		assert.True(t, HasCode(outer, CodeNotFound))
		assert.False(t, Is(outer, CodeNotFound))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("purchase: %w", New(CodeInsufficientPayment, "payment below price"))
		assert.True(t, Is(err, CodeInsufficientPayment))
		assert.Equal(t, "payment below price", Message(err))
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeOperationFailed, "payment authority unavailable")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "payment authority unavailable: connection refused", err.Error())
	})

	t.Run("Newf formats message", func(t *testing.T) {
		err := Newf(CodeInvalidInput, "lot size %d exceeds remaining %d", 60, 50)
		assert.Equal(t, "lot size 60 exceeds remaining 50", err.Error())
	})
}
