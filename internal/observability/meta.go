package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientMeta is the request-scoped identity metadata attached to ws
// connections and emitted events.
type ClientMeta struct {
	RequestID string
	DeviceID  string
	IP        string
}

// ClientMetaFromRequest reads the proxy-facing headers in one pass.
func ClientMetaFromRequest(r *http.Request) ClientMeta {
	return ClientMeta{
		RequestID: r.Header.Get("X-Request-Id"),
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        clientIP(r),
	}
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
