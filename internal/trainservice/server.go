// Package trainservice is a thin stand-in for the training/indexing
// service (spec §1, §2). Training-loop internals are an explicit
// Non-goal; this package implements only the handoff-readiness contract
// the orchestrator drives during GPU handoff (spec §4.5): it receives
// `/study/gpu-ready` once the generation backend container has stopped
// and VRAM has dropped, and `/study/gpu-release` once it should hand the
// GPU back. Grounded on internal/orchestrator/state.go's mutex-guarded
// state-machine shape, narrowed to the two states this stub actually
// needs to track.
package trainservice

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the training service's own notion of GPU possession, reported
// for diagnostics but never itself consulted by the orchestrator (which
// is the system of record per spec §3.3).
type State string

const (
	StateIdle     State = "idle"
	StateTraining State = "training"
)

// Server tracks whether the training service currently believes it holds
// the GPU, and a fake "cache clear" duration standing in for the real
// training process's teardown work (spec §4.5 Study->Core step 1: "train
// process calls its equivalent of cache-clear").
type Server struct {
	mu              sync.Mutex
	state           State
	cacheClearDelay time.Duration
}

// New constructs a training service stub starting idle (no GPU held) —
// the orchestrator only ever hands off into STUDY after an explicit
// core-to-study transition.
func New(cacheClearDelay time.Duration) *Server {
	return &Server{state: StateIdle, cacheClearDelay: cacheClearDelay}
}

// State reports the stub's current possession state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GPUReady handles the orchestrator's handoff notification that the GPU
// is now available to the training process (spec §4.5 Core->Study step
// 5). Training session-vectors writes are gated on this signal (spec §5:
// "training waits for its handoff signal before writing").
func (s *Server) GPUReady(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateTraining
	s.mu.Unlock()
	log.Info().Msg("trainservice: gpu ready, training may resume")
	return nil
}

// GPURelease handles the orchestrator's request to hand the GPU back
// (spec §4.5 Study->Core step 1). Blocks for cacheClearDelay to model the
// real training process's allocator teardown before acknowledging.
func (s *Server) GPURelease(ctx context.Context) error {
	if s.cacheClearDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cacheClearDelay):
		}
	}
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	log.Info().Msg("trainservice: gpu released, cache cleared")
	return nil
}
