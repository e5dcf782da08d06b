package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now time.Time
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *BreakerSuite) feed(opts ...Option) *Breaker {
	opts = append(opts, WithClock(func() time.Time { return s.now }))
	return New("oracle-feed", opts...)
}

func (s *BreakerSuite) failN(b *Breaker, n int) {
	for range n {
		b.RecordFailure()
	}
}

func (s *BreakerSuite) TestStartsClosed() {
	b := s.feed()
	s.Equal("oracle-feed", b.Name())
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())
}

func (s *BreakerSuite) TestOpensOnTheThresholdFailure() {
	b := s.feed(WithFailureThreshold(3))

	s.failN(b, 2)
	s.False(b.IsOpen(), "below threshold")

	fallback, change := b.RecordFailure()
	s.True(fallback)
	s.True(change.Opened)
	s.False(b.Allow())

	fallback, change = b.RecordFailure()
	s.True(fallback)
	s.False(change.Opened, "already open")
}

func (s *BreakerSuite) TestFailuresMustBeConsecutive() {
	b := s.feed(WithFailureThreshold(3))

	s.failN(b, 2)
	b.RecordSuccess()
	s.failN(b, 2)
	s.False(b.IsOpen())

	b.RecordFailure()
	s.True(b.IsOpen())
}

func (s *BreakerSuite) TestClosesAfterConsecutiveSuccesses() {
	b := s.feed(WithFailureThreshold(1), WithSuccessThreshold(3))
	b.RecordFailure()

	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordSuccess()
	s.True(b.IsOpen(), "a failure restarts the success count")

	primary, change := b.RecordSuccess()
	s.True(primary)
	s.True(change.Closed)
	s.Equal(StateClosed, b.State())
}

func (s *BreakerSuite) TestProbeAfterCooldown() {
	b := s.feed(WithFailureThreshold(1), WithCooldown(30*time.Second))
	b.RecordFailure()

	s.now = s.now.Add(29 * time.Second)
	s.Equal(StateOpen, b.State())
	s.False(b.Allow())

	s.now = s.now.Add(time.Second)
	s.Equal(StateHalfOpen, b.State())
	s.True(b.Allow())

	b.RecordFailure()
	s.False(b.Allow(), "failed probe restarts the cooldown")
}

func (s *BreakerSuite) TestReset() {
	b := s.feed(WithFailureThreshold(1))
	b.RecordFailure()

	b.Reset()
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())
}
