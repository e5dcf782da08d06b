//go:build integration

package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"impactledger/internal/oracle/mocks"
	"impactledger/pkg/domain"
	"impactledger/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().Redis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestSecondLookupHitsCache() {
	ctrl := gomock.NewController(s.T())
	source := mocks.NewMockRateSource(ctrl)
	source.EXPECT().Rate(gomock.Any(), domain.Currency("EUR")).Return(decimal.RequireFromString("1.08"), nil).Times(1)

	cache := NewRedisCache(s.redis.Client, source, time.Minute)
	for i := 0; i < 2; i++ {
		rate, err := cache.Rate(context.Background(), "EUR")
		s.Require().NoError(err)
		s.True(rate.Equal(decimal.RequireFromString("1.08")))
	}

	ttl, err := s.redis.Client.TTL(context.Background(), rateKeyPrefix+"EUR").Result()
	require.NoError(s.T(), err)
	s.Greater(ttl, time.Duration(0))
}
