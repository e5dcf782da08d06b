package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"impactledger/internal/ratelimit/models"
)

var testLimit = models.Limit{Requests: 10, Window: time.Minute}

type InMemoryBucketStoreSuite struct {
	suite.Suite
	store *InMemoryBucketStore
	clock time.Time
	ctx   context.Context
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.clock = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	s.store = NewInMemoryBucketStore()
	s.store.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func (s *InMemoryBucketStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		result, err := s.store.Allow(s.ctx, "write:principal:first", testLimit)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(10, result.Limit)
		s.Equal(9, result.Remaining)
	})

	s.Run("request over limit denied with retry hint", func() {
		for range testLimit.Requests {
			result, err := s.store.Allow(s.ctx, "write:principal:over", testLimit)
			s.Require().NoError(err)
			s.True(result.Allowed)
		}
		result, err := s.store.Allow(s.ctx, "write:principal:over", testLimit)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(60, result.RetryAfter)
	})

	s.Run("window slides", func() {
		for range testLimit.Requests {
			_, err := s.store.Allow(s.ctx, "write:principal:slide", testLimit)
			s.Require().NoError(err)
		}
		s.clock = s.clock.Add(testLimit.Window + time.Second)
		result, err := s.store.Allow(s.ctx, "write:principal:slide", testLimit)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(9, result.Remaining)
	})
}

func (s *InMemoryBucketStoreSuite) TestKeysAreIndependent() {
	for range testLimit.Requests {
		_, err := s.store.Allow(s.ctx, "write:ip:10.0.0.1", testLimit)
		s.Require().NoError(err)
	}
	result, err := s.store.Allow(s.ctx, "write:ip:10.0.0.2", testLimit)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestReset() {
	for range testLimit.Requests {
		_, err := s.store.Allow(s.ctx, "read:principal:reset", testLimit)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Reset(s.ctx, "read:principal:reset"))
	result, err := s.store.Allow(s.ctx, "read:principal:reset", testLimit)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestConcurrentRequestsNeverExceedLimit() {
	const goroutines = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(s.ctx, "write:principal:race", testLimit)
			if err == nil && result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(testLimit.Requests, allowed)
}
