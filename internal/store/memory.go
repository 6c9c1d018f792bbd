package store

import (
	"context"
	"sync"
	"time"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// MemoryStore is an in-memory Store implementation, the default backing
// when COGCORE_POSTGRES_URL is unset. Safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	sessions    map[string]*models.Session
	checkpoints map[string]*models.CognitiveCheckpoint // key: "prime"|"lite"
	pending     map[string]*models.CouncilNote         // key: RFC3339Nano timestamp
	archived    map[string]*models.CouncilNote
	gpuStatus   *models.GPUStatus
	delivered   map[string]bool
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*models.Session),
		checkpoints: make(map[string]*models.CognitiveCheckpoint),
		pending:     make(map[string]*models.CouncilNote),
		archived:    make(map[string]*models.CouncilNote),
		delivered:   make(map[string]bool),
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }
func (s *MemoryStore) Close() error                 { return nil }

// ── Sessions ────────────────────────────────────────────────

func (s *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "session", Key: id}
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return &ErrNotFound{Entity: "session", Key: session.ID}
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out, nil
}

// ── Checkpoints ─────────────────────────────────────────────

func (s *MemoryStore) WriteCheckpoint(_ context.Context, ckpt *models.CognitiveCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ckpt
	s.checkpoints[ckpt.Model] = &cp
	return nil
}

func (s *MemoryStore) ReadCheckpoint(_ context.Context, model string) (*models.CognitiveCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ckpt, ok := s.checkpoints[model]
	if !ok {
		return nil, &ErrNotFound{Entity: "checkpoint", Key: model}
	}
	cp := *ckpt
	return &cp, nil
}

// ── Council notes ───────────────────────────────────────────

func (s *MemoryStore) WriteCouncilNote(_ context.Context, note *models.CouncilNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *note
	s.pending[noteKey(note.Timestamp)] = &cp
	return nil
}

func (s *MemoryStore) ListPendingCouncilNotes(_ context.Context, since time.Time) ([]models.CouncilNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CouncilNote
	for _, n := range s.pending {
		if n.Timestamp.After(since) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *MemoryStore) ArchiveCouncilNote(_ context.Context, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := noteKey(timestamp)
	note, ok := s.pending[k]
	if !ok {
		return &ErrNotFound{Entity: "council_note", Key: k}
	}
	delete(s.pending, k)
	s.archived[k] = note
	return nil
}

func (s *MemoryStore) EvictExpiredCouncilNotes(_ context.Context, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	evicted := 0
	for k, n := range s.pending {
		if n.Timestamp.Before(cutoff) {
			delete(s.pending, k)
			evicted++
		}
	}
	return evicted, nil
}

func noteKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ── GPU state ───────────────────────────────────────────────

func (s *MemoryStore) GetGPUStatus(_ context.Context) (*models.GPUStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gpuStatus == nil {
		return &models.GPUStatus{Owner: models.GPUUnclaimed}, nil
	}
	cp := *s.gpuStatus
	return &cp, nil
}

func (s *MemoryStore) SetGPUStatus(_ context.Context, status *models.GPUStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *status
	s.gpuStatus = &cp
	return nil
}

// ── Packet idempotence ──────────────────────────────────────

func (s *MemoryStore) MarkDelivered(_ context.Context, packetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered[packetID] {
		return true, nil
	}
	s.delivered[packetID] = true
	return false, nil
}
