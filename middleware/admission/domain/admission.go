package domain

// Camada de domínio da admissão.
//
// Tipos e contratos sem dependência de net/http.

import (
	"context"
	"net/textproto"
	"strings"
	"time"
)

// Family é a família de endereço de um cliente.
type Family string

const (
	FamilyIPv4    Family = "IPv4"
	FamilyIPv6    Family = "IPv6"
	FamilyUnknown Family = "unknown"
)

// Identity é o endereço canônico do cliente mais a família.
// Derivada uma vez por request; nunca é persistida sozinha.
type Identity struct {
	Address string
	Family  Family
}

// UnknownIdentity é o sentinela para endereços ausentes ou malformados.
var UnknownIdentity = Identity{Address: "unknown", Family: FamilyUnknown}

func (id Identity) IsUnknown() bool {
	return id.Family == FamilyUnknown
}

// Key é a chave usada no mapa de janelas do rate limiter.
func (id Identity) Key() string {
	return string(id.Family) + "|" + id.Address
}

func (id Identity) String() string { return id.Address }

// RequestMeta é o que a camada de transporte expõe para a decisão.
// Header tem o mesmo formato (e canonicalização) de http.Header.
type RequestMeta struct {
	PeerAddr   string
	PeerFamily Family
	Method     string
	Path       string
	Header     map[string][]string
}

// HeaderValue retorna o primeiro valor do header, sem espaços nas bordas.
func (m RequestMeta) HeaderValue(name string) string {
	if m.Header == nil {
		return ""
	}
	vs := m.Header[textproto.CanonicalMIMEHeaderKey(name)]
	if len(vs) == 0 {
		return ""
	}
	return strings.TrimSpace(vs[0])
}

// RateRecord representa a janela fixa atual de um cliente.
// Count >= 1 enquanto o registro existir.
type RateRecord struct {
	Count       int
	WindowStart time.Time
}

// RateResult é o resultado de uma transição do rate limiter.
type RateResult struct {
	Allowed     bool
	Count       int
	Limit       int
	WindowStart time.Time
	ResetAt     time.Time
}

// BlockEntry é um par (endereço, família) bloqueado.
type BlockEntry struct {
	Address string `json:"address" yaml:"address"`
	Family  Family `json:"family" yaml:"family"`
}

func (e BlockEntry) Identity() Identity {
	return Identity{Address: e.Address, Family: e.Family}
}

// Verdict é a decisão final do pipeline.
type Verdict int

const (
	VerdictForward Verdict = iota
	VerdictForbidden
	VerdictRateLimited
)

func (v Verdict) String() string {
	switch v {
	case VerdictForward:
		return "forward"
	case VerdictForbidden:
		return "forbidden"
	case VerdictRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Reason explica qual filtro decidiu.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonEndpoint  Reason = "forbidden_endpoint"
	ReasonBlocked   Reason = "blocklisted"
	ReasonRateLimit Reason = "rate_limit"
)

type Decision struct {
	Verdict  Verdict
	Reason   Reason
	Identity Identity
	// Rate é preenchido apenas quando o rate limiter foi consultado.
	Rate *RateResult
	// NewlyBlocked indica que esta request inseriu a identidade na blocklist.
	NewlyBlocked bool
}

func (d Decision) Allowed() bool { return d.Verdict == VerdictForward }

// Clock é a fonte de tempo injetável para toda a matemática de janela.
type Clock func() time.Time

// Persister guarda o conjunto da blocklist em armazenamento durável.
//
// Save deve gravar exatamente o conjunto recebido (round-trip exato).
type Persister interface {
	Load(ctx context.Context) ([]BlockEntry, error)
	Save(ctx context.Context, entries []BlockEntry) error
	Close() error
}

// BlockSet é o contrato da blocklist usado pelo pipeline.
type BlockSet interface {
	Check(id Identity) bool
	// Add retorna true quando a identidade não estava no conjunto.
	Add(id Identity) bool
	Save(ctx context.Context) error
}

// WindowCounter é o contrato do rate limiter de janela fixa.
type WindowCounter interface {
	Hit(key string) RateResult
}
