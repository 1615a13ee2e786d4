package application

import (
	"strings"

	"admission-gateway/middleware/admission/domain"
)

const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
)

// Normalize resolve a identidade canônica do cliente.
//
// Ordem (primeira fonte presente vence): primeiro IP do X-Forwarded-For
// (cliente original da cadeia de proxies), X-Real-IP, endereço do socket.
// Spoofing de header é tolerado; valor malformado vira domain.UnknownIdentity.
func Normalize(meta domain.RequestMeta) domain.Identity {
	return domain.ParseIdentity(rawAddress(meta))
}

func rawAddress(meta domain.RequestMeta) string {
	if xff := meta.HeaderValue(HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := meta.HeaderValue(HeaderRealIP); realIP != "" {
		return realIP
	}
	return meta.PeerAddr
}
