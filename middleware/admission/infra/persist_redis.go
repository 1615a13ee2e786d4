package infra

import (
	"context"
	"fmt"
	"strings"

	"admission-gateway/middleware/admission/domain"

	"github.com/redis/go-redis/v9"
)

// RedisPersister guarda a blocklist num SET "<prefix>:blocklist" com membros
// "<family>|<address>".
type RedisPersister struct {
	rdb *redis.Client
	key string
}

var _ domain.Persister = (*RedisPersister)(nil)

type RedisPersisterOption func(*RedisPersister)

func WithBlocklistKeyPrefix(prefix string) RedisPersisterOption {
	return func(p *RedisPersister) {
		p.key = strings.Trim(prefix, ":") + ":blocklist"
	}
}

func NewRedisPersister(rdb *redis.Client, opts ...RedisPersisterOption) *RedisPersister {
	p := &RedisPersister{rdb: rdb, key: "admission:blocklist"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RedisPersister) Key() string { return p.key }

func (p *RedisPersister) Load(ctx context.Context) ([]domain.BlockEntry, error) {
	members, err := p.rdb.SMembers(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load redis blocklist: %w", err)
	}
	out := make([]domain.BlockEntry, 0, len(members))
	for _, m := range members {
		family, addr, ok := strings.Cut(m, "|")
		if !ok || addr == "" {
			continue
		}
		out = append(out, domain.BlockEntry{Address: addr, Family: domain.Family(family)})
	}
	return out, nil
}

// Save substitui o SET inteiro numa transação MULTI/EXEC.
func (p *RedisPersister) Save(ctx context.Context, entries []domain.BlockEntry) error {
	members := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		members = append(members, string(e.Family)+"|"+e.Address)
	}

	pipe := p.rdb.TxPipeline()
	pipe.Del(ctx, p.key)
	if len(members) > 0 {
		pipe.SAdd(ctx, p.key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save redis blocklist: %w", err)
	}
	return nil
}

// Close não fecha o client: ele é compartilhado com outros componentes.
func (p *RedisPersister) Close() error { return nil }
