package infra

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStatsStore_RecordsHashes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("gw:stats:"), WithStatsTrackKeys(true))
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 30, 15, 0, time.UTC)

	require.NoError(t, s.Record(ctx, domain.StatsEvent{
		Key: "10.0.0.1", Verdict: domain.VerdictForward, Method: "GET", Path: "/", At: at,
	}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{
		Key: "10.0.0.1", Verdict: domain.VerdictRateLimited, Reason: domain.ReasonRateLimit, Method: "GET", Path: "/", At: at,
	}))

	assert.Equal(t, "1", mr.HGet("gw:stats:total", "forward"))
	assert.Equal(t, "1", mr.HGet("gw:stats:total", "rate_limited"))
	assert.Equal(t, "1", mr.HGet("gw:stats:minute:202403011030", "forward"))
	assert.Equal(t, "1", mr.HGet("gw:stats:route", "GET /:rate_limited"))
	assert.Equal(t, "1", mr.HGet("gw:stats:reason", "rate_limit"))
	assert.Equal(t, "1", mr.HGet("gw:stats:key:10.0.0.1", "forward"))

	assert.Equal(t, 24*time.Hour, mr.TTL("gw:stats:minute:202403011030"))
	assert.Equal(t, time.Duration(0), mr.TTL("gw:stats:total"))
}

func TestRedisStatsStore_BucketNoneAndNoKeys(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsBucket("none"))

	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Key: "10.0.0.1", Verdict: domain.VerdictForbidden}))

	assert.Equal(t, "1", mr.HGet("admission:stats:total", "forbidden"))
	for _, k := range mr.Keys() {
		assert.NotContains(t, k, ":minute:")
		assert.NotContains(t, k, ":key:")
	}
}

func TestRedisStatsStore_NilClientIsNoop(t *testing.T) {
	s := NewRedisStatsStore(nil)
	assert.NoError(t, s.Record(context.Background(), domain.StatsEvent{Verdict: domain.VerdictForward}))
}
