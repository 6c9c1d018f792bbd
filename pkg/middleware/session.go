// Package middleware provides shared context helpers used by every
// service's HTTP layer (engine, gateway, orchestrator, tool server).
package middleware

import "context"

type contextKey string

const sessionKey contextKey = "session_id"

// GetSessionID extracts the session_id associated with the current
// request. Returns "" if no session is set (health checks, RPC calls
// that don't carry a packet).
func GetSessionID(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey).(string); ok {
		return v
	}
	return ""
}

// SetSessionID stores the session_id in the context. No router in this
// module installs a middleware that calls it.
func SetSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}
