package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outermost coded error", func(t *testing.T) {
		err := Wrap(errors.New("boom"), CodeStorage, "commit vote")
		assert.True(t, HasCode(err, CodeStorage))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("finds coded error through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeDuplicateNullifier, "already voted"))
		assert.True(t, HasCode(err, CodeDuplicateNullifier))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	})
}

func TestErrorIs(t *testing.T) {
	err := New(CodeExpiredAttestation, "attestation has expired")
	require.ErrorIs(t, err, New(CodeExpiredAttestation, "attestation has expired"))
	assert.NotErrorIs(t, err, New(CodeInvalidAttestation, "attestation has expired"))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(CodeStorage, "db down")))
	assert.True(t, Retryable(New(CodeTimeout, "deadline")))
	assert.False(t, Retryable(New(CodeDuplicateNullifier, "already voted")))
	assert.False(t, Retryable(New(CodePayloadHashMismatch, "mismatch")))
	assert.False(t, Retryable(errors.New("plain")))
}
