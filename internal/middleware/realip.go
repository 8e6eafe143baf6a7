package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RealIPMiddleware replaces r.RemoteAddr with the client address reported by
// X-Forwarded-For or X-Real-IP, but only when the direct peer is one of the
// trusted proxies. Requests from anyone else keep their socket address, so a
// client cannot pick the IP that login throttling and audit logs see.
type RealIPMiddleware struct {
	trusted []netip.Prefix
}

func NewRealIPMiddleware(trusted []netip.Prefix) *RealIPMiddleware {
	return &RealIPMiddleware{trusted: trusted}
}

func (m *RealIPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip, ok := m.clientIP(r); ok {
			r.RemoteAddr = ip
		}
		next.ServeHTTP(w, r)
	})
}

func (m *RealIPMiddleware) clientIP(r *http.Request) (string, bool) {
	if len(m.trusted) == 0 {
		return "", false
	}
	peer, ok := parseAddr(r.RemoteAddr)
	if !ok || !m.isTrusted(peer) {
		return "", false
	}

	// Walk right to left: the rightmost hop not owned by us is the client.
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return "", false
			}
			addr = addr.Unmap()
			if !m.isTrusted(addr) {
				return addr.String(), true
			}
		}
	}

	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
		if addr, err := netip.ParseAddr(xrip); err == nil {
			return addr.Unmap().String(), true
		}
	}
	return "", false
}

func (m *RealIPMiddleware) isTrusted(addr netip.Addr) bool {
	for _, p := range m.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseAddr(remoteAddr string) (netip.Addr, bool) {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
