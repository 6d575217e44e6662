package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("live key cannot be overwritten", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.Put(ctx, "vote:a", time.Minute))
		err := s.Put(ctx, "vote:a", time.Minute)
		assert.True(t, errors.Is(err, ErrCollision))
	})

	t.Run("expired key consumes as false", func(t *testing.T) {
		s := NewInMemory()
		now := time.Unix(1000, 0)
		s.now = func() time.Time { return now }
		require.NoError(t, s.Put(ctx, "vote:b", time.Second))

		now = now.Add(2 * time.Second)
		ok, err := s.Consume(ctx, "vote:b")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
