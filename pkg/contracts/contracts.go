// Package contracts defines the interface boundary between the engine's
// internal packages and the concrete drivers that back them (model
// backends, vector indices, notification channels, tool executors).
// Mirrors the teacher's pkg/contracts layering so drivers can be swapped
// (e.g. a different embedding provider, a Postgres-backed store) without
// touching the packages that consume them.
package contracts

import (
	"context"
	"time"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// Identity is the authenticated caller for an inter-service request.
type Identity struct {
	Subject     string    `json:"subject"`
	Service     string    `json:"service"` // "gateway", "orchestrator", "engine", "tool-server"
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// AuthProvider authenticates an inbound request. Contract: (identity, nil)
// means authenticated and stop; (nil, nil) means try the next provider;
// (nil, err) means reject immediately. Mirrors the teacher's auth chain.
type AuthProvider interface {
	Name() string
	Authenticate(ctx context.Context, bearerToken string) (*Identity, error)
}

// ModelBackendDriver is the closed-variant-set interface every model
// backend kind implements (spec §9). Stream is optional capability,
// checked via a type assertion against StreamingModelBackendDriver.
type ModelBackendDriver interface {
	Kind() models.BackendKind
	EnsureLoaded(ctx context.Context, cfg models.ModelConfig) error
	ChatCompletion(ctx context.Context, cfg models.ModelConfig, req *models.RouteRequest) (*models.RouteResponse, error)
	Shutdown(ctx context.Context, cfg models.ModelConfig) error
}

// StreamingModelBackendDriver is an optional capability: backends that can
// stream tokens implement this in addition to ModelBackendDriver.
type StreamingModelBackendDriver interface {
	ModelBackendDriver
	StreamChatCompletion(ctx context.Context, cfg models.ModelConfig, req *models.RouteRequest, onChunk func(models.StreamChunk) error) error
}

// EmbeddingDriver produces vector embeddings for text.
type EmbeddingDriver interface {
	Kind() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorIndex is the small embedded library described in spec §9: a flat
// cosine store, one per session, with the embedding model injected.
type VectorIndex interface {
	Add(ctx context.Context, id string, vec []float64, meta map[string]string) error
	Query(ctx context.Context, vec []float64, topK int) ([]VectorHit, error)
	Count(ctx context.Context) (int, error)
}

// VectorHit is one scored result from a VectorIndex query.
type VectorHit struct {
	ID    string
	Score float64
	Meta  map[string]string
}

// NotificationDispatcher surfaces orchestrator/engine events to logs,
// dashboards, and (optionally) self-narrated checkpoint observations.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, event string, fields map[string]interface{})
}

// ToolExecutor invokes a registered tool by name, either dispatched
// locally or relayed to the Tool Server as a JSON-RPC call.
type ToolExecutor interface {
	Execute(ctx context.Context, tool string, params map[string]interface{}) (*models.ExecutionResult, error)
}
