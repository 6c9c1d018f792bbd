// Package genbackend is a thin stand-in for the generation backend (spec
// §1, §2: "Hosts the heavy generation model; exposes a standard completion
// interface and a sleep/wake endpoint pair"). Model-runtime internals are
// an explicit Non-goal of this spec; this package implements exactly the
// external contract the orchestrator and model pool depend on — an
// OpenAI-style chat-completion endpoint (matching
// internal/modelpool.HTTPBackendDriver's request/response shape) and a
// health check the orchestrator's watchdog and container-handoff polling
// drive against. Grounded on internal/toolserver/server.go's small
// single-purpose Server + New(cfg) shape, narrowed to one synthetic model.
package genbackend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// Config configures the stub's canned completion behavior.
type Config struct {
	ModelID      string
	ResponseText string
	Latency      time.Duration
}

// Server holds the generation backend stub's state: whether the runtime
// has been asked to stand down (container-level stop/start is handled by
// the orchestrator outside this process, but the stub still tracks a
// logical "loaded" flag for /health so a test harness can flip it).
type Server struct {
	cfg Config

	mu     sync.RWMutex
	loaded bool
}

// New constructs a generation backend stub, defaulting to a loaded state
// as if the container had just started (the orchestrator's `docker start`
// step has already happened by the time this process runs).
func New(cfg Config) *Server {
	if cfg.ModelID == "" {
		cfg.ModelID = "generation-primary"
	}
	if cfg.ResponseText == "" {
		cfg.ResponseText = "This is a placeholder completion from the generation backend."
	}
	return &Server{cfg: cfg, loaded: true}
}

// Healthy reports the stub's logical load state for /health.
func (s *Server) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// SetLoaded flips the logical load state, exercised by tests standing in
// for the orchestrator's container stop/start cycle.
func (s *Server) SetLoaded(loaded bool) {
	s.mu.Lock()
	s.loaded = loaded
	s.mu.Unlock()
}

// Complete answers a chat-completion request with a fixed reply, deriving
// the token counts from the length of the last message (whatever its role)
// and of the reply, divided by four, so callers see plausible, if
// synthetic, usage figures.
func (s *Server) Complete(ctx context.Context, req models.RouteRequest) (*models.RouteResponse, error) {
	if !s.Healthy() {
		return nil, fmt.Errorf("genbackend: model not loaded")
	}
	if s.cfg.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.Latency):
		}
	}
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	return &models.RouteResponse{
		Model:            s.cfg.ModelID,
		Content:          s.cfg.ResponseText,
		PromptTokens:     len(prompt) / 4,
		CompletionTokens: len(s.cfg.ResponseText) / 4,
	}, nil
}
