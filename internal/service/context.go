package service

import "context"

type contextKey string

const remoteAddrKey contextKey = "remote_addr"

// WithRemoteAddr attaches the client address to the context so it can be
// carried into audit events without widening the operation signatures.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}

// RemoteAddrFromContext returns the attached client address, or "".
func RemoteAddrFromContext(ctx context.Context) string {
	if addr, ok := ctx.Value(remoteAddrKey).(string); ok {
		return addr
	}
	return ""
}
