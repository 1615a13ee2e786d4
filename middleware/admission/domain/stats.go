package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão de admissão.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis).
type StatsEvent struct {
	Key     string
	Verdict Verdict
	Reason  Reason

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas da admissão.
//
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
