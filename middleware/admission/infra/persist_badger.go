package infra

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"admission-gateway/middleware/admission/domain"

	"github.com/dgraph-io/badger/v4"
)

var badgerPrefix = []byte("blocklist/")

// BadgerPersister guarda cada entrada como uma chave "blocklist/<family>|<address>"
// num banco badger embutido.
type BadgerPersister struct {
	db *badger.DB
}

var _ domain.Persister = (*BadgerPersister)(nil)

// NewBadgerPersister abre (ou cria) o banco em dir. dir vazio abre em memória.
func NewBadgerPersister(dir string) (*BadgerPersister, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger blocklist: %w", err)
	}
	return &BadgerPersister{db: db}, nil
}

func badgerKey(e domain.BlockEntry) []byte {
	return append(append([]byte{}, badgerPrefix...), string(e.Family)+"|"+e.Address...)
}

func parseBadgerKey(key []byte) (domain.BlockEntry, bool) {
	rest := bytes.TrimPrefix(key, badgerPrefix)
	family, addr, ok := strings.Cut(string(rest), "|")
	if !ok || addr == "" {
		return domain.BlockEntry{}, false
	}
	return domain.BlockEntry{Address: addr, Family: domain.Family(family)}, true
}

func (p *BadgerPersister) Load(ctx context.Context) ([]domain.BlockEntry, error) {
	var out []domain.BlockEntry
	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if e, ok := parseBadgerKey(it.Item().KeyCopy(nil)); ok {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load badger blocklist: %w", err)
	}
	return out, nil
}

// Save substitui o conjunto salvo por entries numa única transação.
func (p *BadgerPersister) Save(ctx context.Context, entries []domain.BlockEntry) error {
	want := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		want[string(badgerKey(e))] = struct{}{}
	}

	err := p.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if _, ok := want[string(k)]; ok {
				delete(want, string(k))
				continue
			}
			stale = append(stale, k)
		}
		it.Close()

		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for k := range want {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := txn.Set([]byte(k), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save badger blocklist: %w", err)
	}
	return nil
}

func (p *BadgerPersister) Close() error {
	return p.db.Close()
}
