package infra

import (
	"context"
	"testing"

	"admission-gateway/middleware/admission/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisPersister_KeyPrefix(t *testing.T) {
	_, rdb := newTestRedis(t)

	assert.Equal(t, "admission:blocklist", NewRedisPersister(rdb).Key())
	assert.Equal(t, "edge:blocklist", NewRedisPersister(rdb, WithBlocklistKeyPrefix("edge:")).Key())
}

func TestRedisPersister_SaveAndLoad(t *testing.T) {
	mr, rdb := newTestRedis(t)
	p := NewRedisPersister(rdb)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, []domain.BlockEntry{
		{Address: "10.0.0.1", Family: domain.FamilyIPv4},
		{Address: "2001:db8::1", Family: domain.FamilyIPv6},
	}))

	members, err := mr.Members("admission:blocklist")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"IPv4|10.0.0.1", "IPv6|2001:db8::1"}, members)

	got, err := p.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.BlockEntry{
		{Address: "10.0.0.1", Family: domain.FamilyIPv4},
		{Address: "2001:db8::1", Family: domain.FamilyIPv6},
	}, got)
}

func TestRedisPersister_SaveEmptyClearsSet(t *testing.T) {
	mr, rdb := newTestRedis(t)
	p := NewRedisPersister(rdb)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, []domain.BlockEntry{{Address: "10.0.0.1", Family: domain.FamilyIPv4}}))
	require.NoError(t, p.Save(ctx, nil))

	assert.False(t, mr.Exists("admission:blocklist"))
	got, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisPersister_LoadSkipsMalformedMembers(t *testing.T) {
	mr, rdb := newTestRedis(t)
	_, err := mr.SAdd("admission:blocklist", "IPv4|10.0.0.1", "garbage", "IPv4|")
	require.NoError(t, err)

	got, err := NewRedisPersister(rdb).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.BlockEntry{{Address: "10.0.0.1", Family: domain.FamilyIPv4}}, got)
}

func TestRedisPersister_LoadErrorWhenServerDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	b := OpenBlocklist(context.Background(), NewRedisPersister(rdb))
	assert.Equal(t, 0, b.Len())
}
