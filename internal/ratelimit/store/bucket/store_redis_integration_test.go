//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"impactledger/internal/ratelimit/models"
	"impactledger/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisBucketStore
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().Redis(s.T())
	s.store = NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBucketStoreSuite) TestSharedWindow() {
	ctx := context.Background()
	limit := models.Limit{Requests: 3, Window: time.Minute}

	for i := range 3 {
		result, err := s.store.Allow(ctx, "write:principal:0xdonor", limit)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2-i, result.Remaining)
	}

	other := NewRedisBucketStore(s.redis.Client)
	result, err := other.Allow(ctx, "write:principal:0xdonor", limit)
	s.Require().NoError(err)
	s.False(result.Allowed, "a second replica sees the same window")
	s.Positive(result.RetryAfter)

	s.Require().NoError(s.store.Reset(ctx, "write:principal:0xdonor"))
	result, err = other.Allow(ctx, "write:principal:0xdonor", limit)
	s.Require().NoError(err)
	s.True(result.Allowed)
}
