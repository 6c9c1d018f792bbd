// Package store provides the storage interface and implementations for
// cognition-core's persisted state (spec §6.4): sessions, cognitive
// checkpoints, council notes, the GPU ownership record, and delivered
// packet ids. The HA maintenance flag is not kept here; it lives in
// internal/maintenance. Mirrors the teacher's internal/store/store.go: a single
// composed Store interface over small per-entity sub-interfaces, backed by
// an in-memory implementation for tests/dev and an optional Postgres one.
package store

import (
	"context"
	"time"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// Store is the primary storage interface used by the cognition engine and
// the orchestrator. All handler code depends on this interface so tests can
// substitute the in-memory implementation for the Postgres one.
type Store interface {
	SessionStore
	CheckpointStore
	CouncilStore
	GPUStateStore
	PacketArchiveStore

	Ping(ctx context.Context) error
	Close() error
}

// SessionStore persists sessions (spec §3.4).
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]models.Session, error)
}

// CheckpointStore persists the prime.md/lite.md cognitive checkpoints
// (spec §3.5).
type CheckpointStore interface {
	WriteCheckpoint(ctx context.Context, ckpt *models.CognitiveCheckpoint) error
	ReadCheckpoint(ctx context.Context, model string) (*models.CognitiveCheckpoint, error)
}

// CouncilStore persists council notes keyed by timestamp, each either
// pending or archived (consumed). Both implementations keep them in the
// store itself (memory maps, or a Postgres table with an archived
// column); no per-note files are written.
type CouncilStore interface {
	WriteCouncilNote(ctx context.Context, note *models.CouncilNote) error
	ListPendingCouncilNotes(ctx context.Context, since time.Time) ([]models.CouncilNote, error)
	ArchiveCouncilNote(ctx context.Context, timestamp time.Time) error
	EvictExpiredCouncilNotes(ctx context.Context, ttl time.Duration) (int, error)
}

// GPUStateStore persists the orchestrator's GPU ownership state machine
// snapshot so it survives restarts (spec §3.3).
type GPUStateStore interface {
	GetGPUStatus(ctx context.Context) (*models.GPUStatus, error)
	SetGPUStatus(ctx context.Context, status *models.GPUStatus) error
}

// PacketArchiveStore records completed packet_ids for idempotent delivery
// (spec §8: "Re-POSTing the same completed packet to /output_router
// produces an idempotent delivery (dedup by packet_id)").
type PacketArchiveStore interface {
	MarkDelivered(ctx context.Context, packetID string) (alreadyDelivered bool, err error)
}

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
