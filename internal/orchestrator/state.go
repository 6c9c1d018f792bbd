// Package orchestrator implements the cross-service orchestrator (spec
// §4.5, §4.6, §6.3): the GPU ownership state machine, the Core<->Study
// container handoff sequence, the health watchdog, and one-way HA session
// sync. Grounded on the teacher's internal/process/{docker,manager}.go
// container-lifecycle idiom for handoff, and internal/notify/service.go
// for the watchdog's warning dispatch.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/internal/telemetry"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// StateMachine owns the GPU ownership state (spec §3.3), serializing every
// transition through mu so "no two handoffs run concurrently" (spec §5)
// holds even under concurrent HTTP handlers.
type StateMachine struct {
	mu    sync.Mutex
	store store.GPUStateStore
}

// NewStateMachine constructs a StateMachine backed by s. The initial state
// is read lazily from the store (UNCLAIMED if nothing has been persisted).
func NewStateMachine(s store.GPUStateStore) *StateMachine {
	return &StateMachine{store: s}
}

// Status returns the current GPU status snapshot for the /status and
// /gpu/status endpoints.
func (m *StateMachine) Status(ctx context.Context) (*models.GPUStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.GetGPUStatus(ctx)
}

// Transition attempts to move the state machine to next, returning an
// error if the edge is illegal (spec §8 testable property 5: "no state is
// entered without its required precondition"). Callers are responsible
// for having already satisfied the precondition (VRAM probe, health
// check) before calling Transition.
func (m *StateMachine) Transition(ctx context.Context, next models.GPUState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(ctx, next)
}

func (m *StateMachine) transitionLocked(ctx context.Context, next models.GPUState) error {
	current, err := m.store.GetGPUStatus(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: read gpu status: %w", err)
	}
	if current.Owner == "" {
		current.Owner = models.GPUUnclaimed
	}
	if !current.Owner.CanTransitionTo(next) {
		return &ErrStateConflict{From: current.Owner, To: next}
	}
	current.Owner = next
	if err := m.store.SetGPUStatus(ctx, current); err != nil {
		return fmt.Errorf("orchestrator: persist gpu status: %w", err)
	}
	telemetry.GPUOwnerState.Set(gpuStateOrdinal(next))
	log.Info().Str("state", string(next)).Msg("orchestrator: gpu ownership transitioned")
	return nil
}

// Lock acquires the state machine's mutex for the duration of a multi-step
// handoff so no concurrent caller observes or mutates state mid-sequence.
// The returned function must be called to release it.
func (m *StateMachine) Lock() func() {
	m.mu.Lock()
	return m.mu.Unlock
}

// ErrStateConflict is returned when a transition is attempted against an
// illegal current state (spec §7: "attempting to acquire GPU while state
// != CORE; returns 409 conflict").
type ErrStateConflict struct {
	From models.GPUState
	To   models.GPUState
}

func (e *ErrStateConflict) Error() string {
	return fmt.Sprintf("illegal gpu transition %s -> %s", e.From, e.To)
}

func gpuStateOrdinal(s models.GPUState) float64 {
	switch s {
	case models.GPUCore:
		return 0
	case models.GPUStudy:
		return 1
	case models.GPUHandingOffToStudy:
		return 2
	case models.GPUHandingOffToCore:
		return 3
	case models.GPUUnclaimed:
		return 4
	case models.GPUError:
		return 5
	default:
		return -1
	}
}
