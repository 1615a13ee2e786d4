package infra

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
)

// Blocklist é o conjunto persistido de pares (endereço, família) bloqueados.
//
// O conjunto em memória é a fonte da verdade durante a vida do processo,
// mesmo quando Save falha. Entradas nunca expiram.
type Blocklist struct {
	mu      sync.RWMutex
	entries map[domain.BlockEntry]struct{}

	// saveMu serializa escritas no persister.
	saveMu    sync.Mutex
	persister domain.Persister
	log       *zap.Logger

	// seeds são mesclados depois de todas as opções aplicadas.
	seeds []string
}

type BlocklistOption func(*Blocklist)

func WithBlocklistLogger(log *zap.Logger) BlocklistOption {
	return func(b *Blocklist) { b.log = log }
}

// WithSeedAddresses mescla endereços estáticos no conjunto.
// Endereços inválidos são ignorados com warning.
func WithSeedAddresses(addrs ...string) BlocklistOption {
	return func(b *Blocklist) { b.seeds = append(b.seeds, addrs...) }
}

func (b *Blocklist) applyOptions(opts []BlocklistOption) {
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	for _, a := range b.seeds {
		id := domain.ParseIdentity(a)
		if id.IsUnknown() {
			b.log.Warn("ignoring invalid seed address", zap.String("address", a))
			continue
		}
		b.entries[entryOf(id)] = struct{}{}
	}
	b.seeds = nil
}

// NewBlocklist cria uma blocklist vazia. persister pode ser nil (somente memória).
func NewBlocklist(persister domain.Persister, opts ...BlocklistOption) *Blocklist {
	b := &Blocklist{
		entries:   make(map[domain.BlockEntry]struct{}),
		persister: persister,
		log:       zap.NewNop(),
	}
	b.applyOptions(opts)
	return b
}

// OpenBlocklist carrega o estado anterior do persister e aplica as opções.
//
// Falha de leitura vira warning: a lista começa vazia (ou parcial) e o
// processo segue.
func OpenBlocklist(ctx context.Context, persister domain.Persister, opts ...BlocklistOption) *Blocklist {
	b := NewBlocklist(persister, opts...)
	if persister == nil {
		return b
	}

	loaded, err := persister.Load(ctx)
	if err != nil {
		b.log.Warn("blocklist load failed, continuing with partial set", zap.Error(err))
	}
	b.mu.Lock()
	for _, e := range loaded {
		id := domain.ParseIdentity(e.Address)
		if id.IsUnknown() {
			b.log.Warn("skipping invalid persisted entry", zap.String("address", e.Address))
			continue
		}
		b.entries[entryOf(id)] = struct{}{}
	}
	n := len(b.entries)
	b.mu.Unlock()

	b.log.Info("blocklist loaded", zap.Int("entries", n))
	return b
}

func entryOf(id domain.Identity) domain.BlockEntry {
	return domain.BlockEntry{Address: id.Address, Family: id.Family}
}

// Check diz se a identidade está bloqueada. Leitura pura.
func (b *Blocklist) Check(id domain.Identity) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[entryOf(id)]
	return ok
}

// Add insere a identidade. Retorna true se a entrada é nova; duplicadas são no-op.
func (b *Blocklist) Add(id domain.Identity) bool {
	e := entryOf(id)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[e]; ok {
		return false
	}
	b.entries[e] = struct{}{}
	return true
}

// Entries retorna uma cópia ordenada do conjunto.
func (b *Blocklist) Entries() []domain.BlockEntry {
	b.mu.RLock()
	out := make([]domain.BlockEntry, 0, len(b.entries))
	for e := range b.entries {
		out = append(out, e)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		return out[i].Address < out[j].Address
	})
	return out
}

func (b *Blocklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Save grava o conjunto atual no persister.
//
// O snapshot é tirado depois de adquirir saveMu, então a última escrita
// sempre contém tudo que foi adicionado antes dela.
func (b *Blocklist) Save(ctx context.Context) error {
	if b.persister == nil {
		return nil
	}

	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	entries := b.Entries()
	if err := b.persister.Save(ctx, entries); err != nil {
		return fmt.Errorf("save blocklist (%d entries): %w", len(entries), err)
	}
	return nil
}

// Close libera o persister.
func (b *Blocklist) Close() error {
	if b.persister == nil {
		return nil
	}
	return b.persister.Close()
}
