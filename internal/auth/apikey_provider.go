package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/synapsefold/cognition-core/pkg/contracts"
)

// APIKeyProvider validates gateway-facing API keys. Config:
// COGCORE_API_KEYS env var, comma-separated.
type APIKeyProvider struct {
	mu      sync.RWMutex
	keys    map[string]bool
	enabled bool
}

// NewAPIKeyProvider builds an API-key provider from the environment.
func NewAPIKeyProvider() *APIKeyProvider {
	p := &APIKeyProvider{keys: make(map[string]bool)}
	keysEnv := os.Getenv("COGCORE_API_KEYS")
	for _, key := range strings.Split(keysEnv, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			p.keys[key] = true
			p.enabled = true
		}
	}
	return p
}

func (p *APIKeyProvider) Name() string { return "apikey" }

// Authenticate validates bearerToken against the configured key set.
// Returns (nil, nil) when the provider isn't enabled or no token is
// present, letting the next provider in the chain try.
func (p *APIKeyProvider) Authenticate(_ context.Context, bearerToken string) (*contracts.Identity, error) {
	if !p.enabled || bearerToken == "" {
		return nil, nil
	}
	if !p.validateKey(bearerToken) {
		return nil, fmt.Errorf("invalid API key")
	}
	keyHash := fmt.Sprintf("%x", sha256.Sum256([]byte(bearerToken)))
	return &contracts.Identity{Subject: "apikey:" + keyHash[:16], Service: "gateway"}, nil
}

func (p *APIKeyProvider) validateKey(candidate string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for key := range p.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// AddKey registers a new API key at runtime.
func (p *APIKeyProvider) AddKey(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[key] = true
	p.enabled = true
}
