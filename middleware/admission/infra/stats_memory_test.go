package infra

import (
	"context"
	"testing"

	"admission-gateway/middleware/admission/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByVerdictRouteAndReason(t *testing.T) {
	s := NewMemoryStatsStore()
	ctx := context.Background()

	events := []domain.StatsEvent{
		{Key: "10.0.0.1", Verdict: domain.VerdictForward, Method: "GET", Path: "/"},
		{Key: "10.0.0.1", Verdict: domain.VerdictForward, Method: "GET", Path: "/"},
		{Key: "10.0.0.2", Verdict: domain.VerdictForbidden, Reason: domain.ReasonEndpoint, Method: "GET", Path: "/.env"},
		{Key: "10.0.0.1", Verdict: domain.VerdictRateLimited, Reason: domain.ReasonRateLimit, Method: "GET", Path: "/"},
	}
	for _, ev := range events {
		require.NoError(t, s.Record(ctx, ev))
	}

	assert.Equal(t, Counters{Forwarded: 2, Forbidden: 1, RateLimited: 1}, s.Total())
	assert.Equal(t, Counters{Forwarded: 2, RateLimited: 1}, s.ByRoute()["GET /"])
	assert.Equal(t, map[domain.Reason]int64{
		domain.ReasonEndpoint:  1,
		domain.ReasonRateLimit: 1,
	}, s.ByReason())
	assert.Empty(t, s.ByKey(), "keys are not tracked by default")
}

func TestMemoryStatsStore_TrackKeys(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "10.0.0.1", Verdict: domain.VerdictForward})
	_ = s.Record(ctx, domain.StatsEvent{Key: "10.0.0.1", Verdict: domain.VerdictForbidden, Reason: domain.ReasonBlocked})

	assert.Equal(t, Counters{Forwarded: 1, Forbidden: 1}, s.ByKey()["10.0.0.1"])
}

func TestMemoryStatsStore_SnapshotsAreCopies(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Verdict: domain.VerdictForward, Method: "GET", Path: "/"})

	routes := s.ByRoute()
	routes["GET /"] = Counters{Forwarded: 99}

	assert.Equal(t, int64(1), s.ByRoute()["GET /"].Forwarded)
}
