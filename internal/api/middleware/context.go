package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const clientKeyKey contextKey = "client_key"

// ClientHeader lets a caller behind a shared address identify itself for
// rate limiting.
const ClientHeader = "X-Client-ID"

// Identify stores the caller's rate-limit identity in the request context:
// the X-Client-ID header when present, otherwise the remote IP.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(ClientHeader))
		if key == "" {
			key = remoteIP(r.RemoteAddr)
		}
		if key != "" {
			r = r.WithContext(SetClientKey(r.Context(), key))
		}
		next.ServeHTTP(w, r)
	})
}

func SetClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyKey, key)
}

func GetClientKey(r *http.Request) (string, bool) {
	key, ok := r.Context().Value(clientKeyKey).(string)
	return key, ok
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
