// Package auth provides the inter-service authentication provider chain:
// API-key validation for external callers and HMAC-signed service-account
// tokens for service-to-service calls. Grounded on the teacher's
// internal/auth/chain.go provider-chain idiom.
package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/pkg/contracts"
)

// ProviderChain walks registered providers in order until one returns an
// Identity. Contract: (identity, nil) stops the walk authenticated; (nil,
// nil) tries the next provider; (nil, err) rejects immediately.
type ProviderChain struct {
	mu        sync.RWMutex
	providers []contracts.AuthProvider
}

// NewProviderChain creates an empty auth provider chain.
func NewProviderChain() *ProviderChain {
	return &ProviderChain{}
}

// Name identifies the chain itself as a contracts.AuthProvider, so a
// *ProviderChain can be passed anywhere a single provider is expected
// (e.g. as a service's top-level AuthChain).
func (c *ProviderChain) Name() string { return "chain" }

// Register adds a provider to the end of the chain.
func (c *ProviderChain) Register(provider contracts.AuthProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, provider)
	log.Info().Str("provider", provider.Name()).Msg("auth provider registered")
}

// Authenticate walks the chain, returning the first matching identity.
func (c *ProviderChain) Authenticate(ctx context.Context, bearerToken string) (*contracts.Identity, error) {
	c.mu.RLock()
	providers := make([]contracts.AuthProvider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for _, p := range providers {
		identity, err := p.Authenticate(ctx, bearerToken)
		if err != nil {
			log.Debug().Str("provider", p.Name()).Err(err).Msg("auth provider rejected request")
			return nil, err
		}
		if identity != nil {
			return identity, nil
		}
	}
	return nil, nil
}

// Names returns every registered provider's name, for diagnostics.
func (c *ProviderChain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}
