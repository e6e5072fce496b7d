package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type LimiterSuite struct {
	suite.Suite
	limiter *Limiter
	clock   time.Time
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) SetupTest() {
	s.clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.limiter = New()
	s.limiter.now = func() time.Time { return s.clock }
}

func (s *LimiterSuite) advance(d time.Duration) {
	s.clock = s.clock.Add(d)
}

func (s *LimiterSuite) TestFirstRequestAllowed() {
	result := s.limiter.CheckLimit("203.0.113.1")
	s.True(result.Allowed)
	s.Zero(result.RetryAfter)
}

func (s *LimiterSuite) TestBurstCeiling() {
	// Ten deliveries in the same instant all pass; the eleventh hits the
	// burst ceiling with a positive retry hint.
	for i := 0; i < DefaultBurstLimit; i++ {
		result := s.limiter.CheckLimit("203.0.113.1")
		s.True(result.Allowed, "request %d should be admitted", i+1)
	}

	result := s.limiter.CheckLimit("203.0.113.1")
	s.False(result.Allowed)
	s.Positive(result.RetryAfter)
}

func (s *LimiterSuite) TestWindowReset() {
	for i := 0; i < DefaultBurstLimit; i++ {
		s.limiter.CheckLimit("203.0.113.1")
	}
	s.False(s.limiter.CheckLimit("203.0.113.1").Allowed)

	s.advance(DefaultWindow)

	result := s.limiter.CheckLimit("203.0.113.1")
	s.True(result.Allowed, "new window should admit again")
}

func (s *LimiterSuite) TestSustainedAverageCeiling() {
	// Paced requests below the burst ceiling still get suppressed once
	// the average rate exceeds the sustained ceiling. At 100ms spacing the
	// fourth request sees three admitted in 300ms, far above 2/sec.
	for i := 0; i < 3; i++ {
		result := s.limiter.CheckLimit("203.0.113.1")
		s.True(result.Allowed, "request %d should be admitted", i+1)
		s.advance(100 * time.Millisecond)
	}

	result := s.limiter.CheckLimit("203.0.113.1")
	s.False(result.Allowed)
	s.Positive(result.RetryAfter)
}

func (s *LimiterSuite) TestSlowTrafficNeverLimited() {
	// One request per window stays comfortably under both ceilings.
	for i := 0; i < 20; i++ {
		result := s.limiter.CheckLimit("203.0.113.1")
		s.True(result.Allowed)
		s.advance(DefaultWindow)
	}
}

func (s *LimiterSuite) TestSourcesIndependent() {
	for i := 0; i < DefaultBurstLimit; i++ {
		s.limiter.CheckLimit("203.0.113.1")
	}
	s.False(s.limiter.CheckLimit("203.0.113.1").Allowed)

	result := s.limiter.CheckLimit("198.51.100.7")
	s.True(result.Allowed, "a different source has its own window")
}

func (s *LimiterSuite) TestSweepRemovesIdleSources() {
	s.limiter.CheckLimit("203.0.113.1")
	s.limiter.CheckLimit("198.51.100.7")
	s.Equal(2, s.limiter.TrackedSources())

	s.advance(DefaultIdleTTL + time.Second)
	s.limiter.CheckLimit("198.51.100.8")

	removed := s.limiter.Sweep()
	s.Equal(2, removed)
	s.Equal(1, s.limiter.TrackedSources())
}
