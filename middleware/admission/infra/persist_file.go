package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"admission-gateway/middleware/admission/domain"
)

// FilePersister guarda a blocklist como um array JSON de {address, family}.
//
// A escrita vai para um arquivo temporário no mesmo diretório e depois é
// renomeada, então um leitor nunca vê um arquivo pela metade.
type FilePersister struct {
	path string
}

var _ domain.Persister = (*FilePersister)(nil)

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) Path() string { return p.path }

// Load retorna o conjunto salvo. Arquivo inexistente é um conjunto vazio.
func (p *FilePersister) Load(_ context.Context) ([]domain.BlockEntry, error) {
	raw, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blocklist %s: %w", p.path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var entries []domain.BlockEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode blocklist %s: %w", p.path, err)
	}
	return entries, nil
}

func (p *FilePersister) Save(ctx context.Context, entries []domain.BlockEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.BlockEntry{}
	}

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode blocklist: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create blocklist dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp blocklist: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp blocklist: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp blocklist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp blocklist: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("rename blocklist: %w", err)
	}
	return nil
}

func (p *FilePersister) Close() error { return nil }
