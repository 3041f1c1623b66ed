package common

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type ctxKey string

const clientIDKey ctxKey = "client/id"

// ClientIDHeader lets trusted callers identify themselves for rate limiting.
const ClientIDHeader = "X-Client-ID"

// WithClientID stores the caller identity on the provided context.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey, id)
}

// ClientID extracts the caller identity from the context if present.
func ClientID(ctx context.Context) (string, bool) {
	v := ctx.Value(clientIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// ClientIdentity resolves the caller identity: the context value first, then
// the X-Client-ID header, then the client IP.
func ClientIdentity(r *http.Request) string {
	if r == nil {
		return ""
	}
	if id, ok := ClientID(r.Context()); ok {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return "client:" + id
	}
	return "ip:" + ClientIP(r)
}

// ClientIP attempts to determine the real client IP address from the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		parts := strings.Split(ip, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
		return strings.TrimSpace(ip)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
