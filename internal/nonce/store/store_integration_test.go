//go:build integration

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"anonpoll/pkg/testutil/containers"
)

type AtomicStoreSuite struct {
	suite.Suite
	stores map[string]interface {
		Put(ctx context.Context, key string, ttl time.Duration) error
		Consume(ctx context.Context, key string) (bool, error)
	}
}

func TestAtomicStoreSuite(t *testing.T) {
	suite.Run(t, new(AtomicStoreSuite))
}

func (s *AtomicStoreSuite) SetupSuite() {
	rc := containers.GetManager().GetRedis(s.T())
	pg := containers.GetManager().GetPostgres(s.T())
	s.stores = map[string]interface {
		Put(ctx context.Context, key string, ttl time.Duration) error
		Consume(ctx context.Context, key string) (bool, error)
	}{
		"redis":    NewRedis(rc.Client),
		"postgres": NewPostgres(pg.DB),
	}
}

func (s *AtomicStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	for name, st := range s.stores {
		s.Run(name, func() {
			key := "vote:" + name + "-race"
			s.Require().NoError(st.Put(ctx, key, time.Minute))

			var wins atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					ok, err := st.Consume(ctx, key)
					s.NoError(err)
					if ok {
						wins.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()
			s.Equal(int32(1), wins.Load())
		})
	}
}

func (s *AtomicStoreSuite) TestExpiry() {
	ctx := context.Background()
	for name, st := range s.stores {
		s.Run(name, func() {
			key := "vote:" + name + "-expiry"
			s.Require().NoError(st.Put(ctx, key, 50*time.Millisecond))
			time.Sleep(1100 * time.Millisecond)

			ok, err := st.Consume(ctx, key)
			s.Require().NoError(err)
			s.False(ok)
		})
	}
}
