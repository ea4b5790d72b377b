package web

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc derives the rate limit key for a request
type KeyFunc func(r *http.Request) string

// ClientAddressKey keys requests by remote host. With trustXFF the first
// X-Forwarded-For hop is used instead, which is only safe behind a proxy that
// overwrites the header.
func ClientAddressKey(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}
