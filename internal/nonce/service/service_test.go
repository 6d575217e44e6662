package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"anonpoll/internal/nonce/models"
	"anonpoll/internal/nonce/store"
	dErrors "anonpoll/pkg/domain-errors"
)

type NonceServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	service *Service
}

func TestNonceServiceSuite(t *testing.T) {
	suite.Run(t, new(NonceServiceSuite))
}

func (s *NonceServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.service = New(s.store, time.Minute)
}

func (s *NonceServiceSuite) TestGenerate() {
	ctx := context.Background()

	s.Run("token carries 256 bits and is url safe", func() {
		n, err := s.service.Generate(ctx, models.PurposeChallenge)
		s.Require().NoError(err)
		s.Len(n.Token, 43)
		s.NotContains(n.Token, "+")
		s.NotContains(n.Token, "/")
	})

	s.Run("tokens are distinct", func() {
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			n, err := s.service.Generate(ctx, models.PurposeVote)
			s.Require().NoError(err)
			s.False(seen[n.Token])
			seen[n.Token] = true
		}
	})

	s.Run("unknown purpose is rejected", func() {
		_, err := s.service.Generate(ctx, models.Purpose("login"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *NonceServiceSuite) TestVerifyAndConsume() {
	ctx := context.Background()

	s.Run("second consumption fails", func() {
		n, err := s.service.Generate(ctx, models.PurposeVote)
		s.Require().NoError(err)

		ok, err := s.service.VerifyAndConsume(ctx, n.Token, models.PurposeVote)
		s.Require().NoError(err)
		s.True(ok)

		ok, err = s.service.VerifyAndConsume(ctx, n.Token, models.PurposeVote)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("purpose scopes the token", func() {
		n, err := s.service.Generate(ctx, models.PurposeChallenge)
		s.Require().NoError(err)

		ok, err := s.service.VerifyAndConsume(ctx, n.Token, models.PurposeVote)
		s.Require().NoError(err)
		s.False(ok)

		ok, err = s.service.VerifyAndConsume(ctx, n.Token, models.PurposeChallenge)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("malformed and unknown tokens are false without error", func() {
		for _, tok := range []string{"", "short", "purpose:injection", string(make([]byte, 43))} {
			ok, err := s.service.VerifyAndConsume(ctx, tok, models.PurposeVote)
			s.NoError(err)
			s.False(ok)
		}
	})

	s.Run("expired tokens are false", func() {
		svc := New(s.store, time.Nanosecond)
		n, err := svc.Generate(ctx, models.PurposeVote)
		s.Require().NoError(err)
		time.Sleep(time.Millisecond)

		ok, err := svc.VerifyAndConsume(ctx, n.Token, models.PurposeVote)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	svc := New(store.NewInMemory(), time.Minute)
	ctx := context.Background()
	n, err := svc.Generate(ctx, models.PurposeVote)
	require.NoError(t, err)

	const workers = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := svc.VerifyAndConsume(ctx, n.Token, models.PurposeVote)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

type failingStore struct{ err error }

func (f failingStore) Put(context.Context, string, time.Duration) error { return f.err }
func (f failingStore) Consume(context.Context, string) (bool, error) { return false, f.err }

func TestStoreFailuresSurfaceAsStorageError(t *testing.T) {
	svc := New(failingStore{err: errors.New("connection refused")}, time.Minute)
	ctx := context.Background()

	_, err := svc.Generate(ctx, models.PurposeVote)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStorage))

	token := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	_, err = svc.VerifyAndConsume(ctx, token, models.PurposeVote)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStorage))
}

func TestStuckEntropySourceIsDetected(t *testing.T) {
	svc := New(store.NewInMemory(), time.Minute, WithRandom(bytes.NewReader(make([]byte, 256))))
	ctx := context.Background()

	_, err := svc.Generate(ctx, models.PurposeVote)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, models.PurposeVote)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestStoreTimeoutOption(t *testing.T) {
	assert.Equal(t, 2*time.Second, New(failingStore{}, time.Minute).StoreTimeout())
	assert.Equal(t, 5*time.Second, New(failingStore{}, time.Minute, WithStoreTimeout(5*time.Second)).StoreTimeout())
	assert.Equal(t, 2*time.Second, New(failingStore{}, time.Minute, WithStoreTimeout(0)).StoreTimeout(), "non-positive keeps the default")
}
