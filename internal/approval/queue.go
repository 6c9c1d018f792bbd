// Package approval implements the pending-approval queue fed by the
// tool-routing 403 path and the post-generation tiered safety gate (spec
// §4.1 steps 6 and 14, §7 "Safety/approval"). Grounded on the teacher's
// internal/workflow/engine.go human-gate idiom (durable + in-memory
// channel, checked on a short poll) generalized from one workflow step's
// gate into a standing queue of sensitive actions awaiting review.
package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// Queue holds pending ApprovalRecords in memory, keyed by GateKey so a
// duplicate enqueue (the same tool call flagged twice) updates in place
// rather than accumulating. Not persisted across restarts: a crash loses
// in-flight approvals, same as the teacher's in-memory gate channel, which
// is the spec's own "approval queue" — not a durable audit log.
type Queue struct {
	mu      sync.Mutex
	pending map[string]models.ApprovalRecord
}

// New constructs an empty approval queue.
func New() *Queue {
	return &Queue{pending: make(map[string]models.ApprovalRecord)}
}

// Enqueue adds or refreshes a pending approval. Satisfies
// pipeline.ApprovalSink.
func (q *Queue) Enqueue(_ context.Context, record models.ApprovalRecord) error {
	if record.GateKey == "" {
		record.GateKey = fmt.Sprintf("%s:%s", record.SessionID, record.Tool)
	}
	if record.Status == "" {
		record.Status = "waiting"
	}
	q.mu.Lock()
	q.pending[record.GateKey] = record
	q.mu.Unlock()
	log.Info().
		Str("gate_key", record.GateKey).
		Str("tool", record.Tool).
		Str("session_id", record.SessionID).
		Msg("approval: action pending review")
	return nil
}

// List returns every pending record awaiting a decision.
func (q *Queue) List() []models.ApprovalRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.ApprovalRecord, 0, len(q.pending))
	for _, r := range q.pending {
		if r.Status == "waiting" {
			out = append(out, r)
		}
	}
	return out
}

// Decide resolves a pending record as approved or rejected, removing it
// from the waiting set. Returns false if the key was not pending.
func (q *Queue) Decide(gateKey string, approve bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	record, ok := q.pending[gateKey]
	if !ok || record.Status != "waiting" {
		return false
	}
	if approve {
		record.Status = "approved"
	} else {
		record.Status = "rejected"
	}
	q.pending[gateKey] = record
	return true
}
