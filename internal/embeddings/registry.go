// Package embeddings provides the embedding driver registry and the
// concrete drivers that back the model pool's "sentence-transformer"/"api"
// embedder kind (spec §4.2), used by the semantic probe, RAG enrichment,
// and knowledge-ingestion near-duplicate check.
package embeddings

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/pkg/contracts"
)

// Registry holds named embedding drivers. Thread-safe.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]contracts.EmbeddingDriver
	primary string
}

// NewRegistry creates an empty embedding registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]contracts.EmbeddingDriver)}
}

// Register adds a driver under the given name. The first driver registered
// becomes the primary (used by the semantic probe when no name is given).
func (r *Registry) Register(name string, driver contracts.EmbeddingDriver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = driver
	if r.primary == "" {
		r.primary = name
	}
	log.Info().Str("name", name).Str("kind", driver.Kind()).Int("dims", driver.Dimensions()).Msg("embedding driver registered")
}

// Get returns the driver by name, or error if not found.
func (r *Registry) Get(name string) (contracts.EmbeddingDriver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("embedding driver not found: %s", name)
	}
	return d, nil
}

// Primary returns the default embedding driver, or an error if none is
// registered — semantic probe / intent classification treat this as the
// "embedder available" check (spec §4.1 step 4).
func (r *Registry) Primary() (contracts.EmbeddingDriver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.primary == "" {
		return nil, fmt.Errorf("no embedding driver registered")
	}
	return r.drivers[r.primary], nil
}

// Available reports whether any embedding driver is usable, for the
// intent-detection preference order (spec §4.1 step 4: "when the embedder
// is available").
func (r *Registry) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary != ""
}

// List returns all registered driver names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}

// EmbedOne is a convenience wrapper for the common single-text case (probe
// phrases, intent queries).
func EmbedOne(ctx context.Context, d contracts.EmbeddingDriver, text string) ([]float64, error) {
	vecs, err := d.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed: empty result")
	}
	return vecs[0], nil
}
