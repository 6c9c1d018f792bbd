package middleware

import (
	"context"

	"github.com/synapsefold/cognition-core/pkg/contracts"
)

const identityKey contextKey = "identity"

// SetIdentity stores the authenticated caller Identity in the context.
// Set by the service-account auth middleware on inter-service calls
// (gateway to engine, orchestrator to engine, engine to tool server).
func SetIdentity(ctx context.Context, identity *contracts.Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity retrieves the authenticated Identity from the context.
// Returns nil for unauthenticated requests (e.g. /health).
func GetIdentity(ctx context.Context) *contracts.Identity {
	if v, ok := ctx.Value(identityKey).(*contracts.Identity); ok {
		return v
	}
	return nil
}
