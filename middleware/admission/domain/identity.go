package domain

import (
	"net"
	"net/netip"
	"strings"
)

// ParseIdentity canonicaliza um endereço (com ou sem porta).
//
// Endereços IPv4 mapeados em IPv6 (::ffff:a.b.c.d) viram IPv4, então as duas
// formas geram a mesma identidade. Qualquer valor que não seja um literal
// IPv4/IPv6 válido vira UnknownIdentity.
func ParseIdentity(raw string) Identity {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UnknownIdentity
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		// "host:port" ou "[v6]:port"
		host, _, splitErr := net.SplitHostPort(raw)
		if splitErr != nil {
			host = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
		}
		addr, err = netip.ParseAddr(host)
		if err != nil {
			return UnknownIdentity
		}
	}

	addr = addr.Unmap().WithZone("")
	switch {
	case addr.Is4():
		return Identity{Address: addr.String(), Family: FamilyIPv4}
	case addr.Is6():
		return Identity{Address: addr.String(), Family: FamilyIPv6}
	default:
		return UnknownIdentity
	}
}
