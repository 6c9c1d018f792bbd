// Package sleepwake implements the cognition engine's sleep/wake lifecycle
// (spec §4.4): AWAKE -> ENTERING_SLEEP -> SLEEPING -> WAKING -> AWAKE,
// non-reentrant and mutex-guarded. Grounded on the teacher's
// internal/notify/service.go event-dispatch idiom for the orchestrator
// notification step, composed with internal/checkpoint and
// internal/council for the write/read-notes legs of each transition.
package sleepwake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/internal/checkpoint"
	"github.com/synapsefold/cognition-core/internal/council"
	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/pkg/contracts"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// GPUController is the narrow model-pool dependency the sleep/wake manager
// needs, satisfied by *modelpool.Pool.
type GPUController interface {
	ReleaseGPU(ctx context.Context) error
	ReclaimGPU(ctx context.Context) error
}

// OrchestratorClient notifies the orchestrator of GPU release and
// requests reclaim, and lets the manager poll until the generation
// backend is healthy again (spec §4.4 WAKING step 1).
type OrchestratorClient interface {
	NotifyGPURelease(ctx context.Context) error
	RequestGPUReclaim(ctx context.Context) error
	WaitGenerationHealthy(ctx context.Context, timeout time.Duration) error
}

// PendingQueue holds packets enqueued while SLEEPING, processed once
// WAKING completes (spec §4.4 WAKING step 3).
type PendingQueue interface {
	Enqueue(packet *models.CognitionPacket)
	Drain() []*models.CognitionPacket
}

// Manager owns the sleep/wake state machine for one cognition engine
// instance. Non-reentrant: EnterSleep/Wake hold mu for their entire
// transition body, matching the spec's "guarded by a mutex" requirement.
type Manager struct {
	mu    sync.Mutex
	state models.SleepState

	sleptAt time.Time
	wokeAt  time.Time

	gpu          GPUController
	orchestrator OrchestratorClient
	store        store.Store
	notifier     contracts.NotificationDispatcher
	queue        PendingQueue

	// pendingNotes holds the council notes loaded by the most recent Wake,
	// awaiting injection into the next turn's prompt assembly (spec §4.3
	// "wake integration"). Consumed exactly once by ConsumeWakeNotes, the
	// same read-once discipline council notes already get on disk.
	pendingNotes []models.CouncilNote

	// WaitHealthyTimeout bounds how long WAKING waits for the generation
	// backend before giving up (spec §5 default: 120s).
	WaitHealthyTimeout time.Duration
}

// New constructs a Manager in the AWAKE state.
func New(gpu GPUController, orch OrchestratorClient, s store.Store, notifier contracts.NotificationDispatcher, queue PendingQueue) *Manager {
	return &Manager{
		state:              models.StateAwake,
		gpu:                gpu,
		orchestrator:       orch,
		store:              s,
		notifier:           notifier,
		queue:              queue,
		WaitHealthyTimeout: 120 * time.Second,
	}
}

// State returns the current sleep state and relevant timestamps, for the
// /sleep/status endpoint.
func (m *Manager) State() models.SleepStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.SleepStatus{State: m.state, SleptAt: m.sleptAt, WokeAt: m.wokeAt}
}

func (m *Manager) transition(next models.SleepState) error {
	if !m.state.CanTransitionTo(next) {
		return fmt.Errorf("sleepwake: illegal transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}

// EnterSleep runs the ENTERING_SLEEP sequence: drain the active request
// queue, write prime.md/lite.md checkpoints stamped with the sleep
// anchor, and notify the orchestrator to release the GPU. primeNarrative
// and liteNarrative are self-narrated summaries supplied by the caller
// (the pipeline's final-turn reflection, not a memory dump).
func (m *Manager) EnterSleep(ctx context.Context, primeNarrative, liteNarrative string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transition(models.StateEnteringSleep); err != nil {
		return err
	}

	anchor := time.Now().UTC()
	drained := m.queue.Drain()
	log.Info().Int("drained", len(drained)).Msg("sleepwake: drained active request queue")

	if err := checkpoint.WriteSleep(ctx, m.store, "prime", primeNarrative, anchor); err != nil {
		_ = m.transition(models.StateAwake) // abort mid-drain per spec's legal-edge table
		return err
	}
	if err := checkpoint.WriteSleep(ctx, m.store, "lite", liteNarrative, anchor); err != nil {
		_ = m.transition(models.StateAwake)
		return err
	}

	if err := m.orchestrator.NotifyGPURelease(ctx); err != nil {
		_ = m.transition(models.StateAwake)
		return fmt.Errorf("sleepwake: notify orchestrator gpu release: %w", err)
	}
	if err := m.gpu.ReleaseGPU(ctx); err != nil {
		log.Warn().Err(err).Msg("sleepwake: local gpu release reported an error, proceeding to sleep")
	}

	if err := m.transition(models.StateSleeping); err != nil {
		return err
	}
	m.sleptAt = anchor
	m.notifier.Dispatch(ctx, "sleep_entered", map[string]interface{}{"anchor": anchor})
	return nil
}

// Enqueue accepts a packet while SLEEPING, returning true if it was queued
// (false means the engine isn't asleep and the caller should process the
// packet normally).
func (m *Manager) Enqueue(packet *models.CognitionPacket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != models.StateSleeping {
		return false
	}
	m.queue.Enqueue(packet)
	return true
}

// IsSleeping reports whether the engine is currently in the SLEEPING
// state (used by the pipeline's sleep/wake gate, spec §4.1 step 5).
func (m *Manager) IsSleeping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == models.StateSleeping
}

// WakeResult carries what the wake sequence loaded, for packet injection.
type WakeResult struct {
	CouncilNotes []models.CouncilNote
	Prime        *models.CognitiveCheckpoint
	Lite         *models.CognitiveCheckpoint
	Requeued     []*models.CognitionPacket
}

// Wake runs the WAKING sequence: request GPU reclaim and wait for the
// generation backend to report healthy, load council notes and
// checkpoints, then drain and return the packets that queued up while
// asleep for normal reprocessing.
func (m *Manager) Wake(ctx context.Context) (*WakeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transition(models.StateWaking); err != nil {
		return nil, err
	}

	if err := m.orchestrator.RequestGPUReclaim(ctx); err != nil {
		return nil, fmt.Errorf("sleepwake: request gpu reclaim: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, m.WaitHealthyTimeout)
	defer cancel()
	if err := m.orchestrator.WaitGenerationHealthy(waitCtx, m.WaitHealthyTimeout); err != nil {
		return nil, fmt.Errorf("sleepwake: generation backend did not become healthy: %w", err)
	}
	if err := m.gpu.ReclaimGPU(ctx); err != nil {
		return nil, fmt.Errorf("sleepwake: local gpu reclaim: %w", err)
	}

	notes, err := council.CompleteWake(ctx, m.store)
	if err != nil {
		return nil, err
	}
	prime, err := checkpoint.Read(ctx, m.store, "prime")
	if err != nil {
		log.Warn().Err(err).Msg("sleepwake: no prime checkpoint to load on wake")
	}
	lite, err := checkpoint.Read(ctx, m.store, "lite")
	if err != nil {
		log.Warn().Err(err).Msg("sleepwake: no lite checkpoint to load on wake")
	}

	requeued := m.queue.Drain()

	if err := m.transition(models.StateAwake); err != nil {
		return nil, err
	}
	m.wokeAt = time.Now().UTC()
	m.pendingNotes = notes
	m.notifier.Dispatch(ctx, "wake_completed", map[string]interface{}{
		"notes_loaded":    len(notes),
		"requeued_packets": len(requeued),
	})

	return &WakeResult{CouncilNotes: notes, Prime: prime, Lite: lite, Requeued: requeued}, nil
}

// ConsumeWakeNotes returns the council notes loaded by the most recent
// Wake and clears them, so the next turn's prompt assembly picks them up
// exactly once (spec §4.3: "injects them as data_fields").
func (m *Manager) ConsumeWakeNotes() []models.CouncilNote {
	m.mu.Lock()
	defer m.mu.Unlock()
	notes := m.pendingNotes
	m.pendingNotes = nil
	return notes
}
