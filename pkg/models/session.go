package models

import "time"

// Message is one turn in a session's sliding-window history.
type Message struct {
	Role      string    `json:"role"` // system|user|assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ProbeCacheEntry remembers a previously-embedded probe phrase so the
// semantic probe (spec §4.1 step 2) doesn't re-embed it every turn.
type ProbeCacheEntry struct {
	Phrase    string    `json:"phrase"`
	EmbeddedAt time.Time `json:"embedded_at"`
	TurnIndex int       `json:"turn_index"`
}

// LoopDetectorState is the per-session carryover for the loop detector's
// warn-then-block escalation ladder (spec §4.1 step 12).
type LoopDetectorState struct {
	WarnActive      bool      `json:"warn_active"`
	ResetCount      int       `json:"reset_count"`
	LastPattern     string    `json:"last_pattern,omitempty"`
	LastTriggeredAt time.Time `json:"last_triggered_at,omitempty"`
	RecentToolCalls []string  `json:"recent_tool_calls,omitempty"`
	RecentOutputs   []string  `json:"recent_outputs,omitempty"`
	RecentErrors    []string  `json:"recent_errors,omitempty"`
}

// Session is identified by session_id (e.g. discord_dm_<user>, web_<uuid>,
// cli_<ts>). Persisted through store.Store, in memory or in Postgres;
// no sessions.json file is written.
type Session struct {
	ID          string            `json:"id"`
	Persona     string            `json:"persona"`
	History     []Message         `json:"history"`
	MaxHistory  int               `json:"max_history"`
	ProbeCache  []ProbeCacheEntry `json:"probe_cache,omitempty"`
	LoopState   LoopDetectorState `json:"loop_state"`
	VectorIndexPath string        `json:"vector_index_path"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// AppendMessage adds a message and trims the history to MaxHistory,
// preserving strict append-order (testable property #3 in spec §8).
func (s *Session) AppendMessage(m Message) {
	s.History = append(s.History, m)
	if s.MaxHistory > 0 && len(s.History) > s.MaxHistory {
		s.History = s.History[len(s.History)-s.MaxHistory:]
	}
	s.UpdatedAt = time.Now().UTC()
}

// CouncilNote is a structured Lite->Prime handoff artifact (spec §3.6).
// Stored through store.Store keyed by Timestamp (sub-second precision,
// so notes written in the same second do not collide) and archived on
// consumption; notes are not written as files under council/.
type CouncilNote struct {
	Timestamp      time.Time `json:"timestamp"`
	SessionID      string    `json:"session_id"`
	UserPrompt     string    `json:"user_prompt"`
	LiteQuickTake  string    `json:"lite_quick_take"`
	EscalationReason string  `json:"escalation_reason"`
	Confidence     float64   `json:"confidence"`
}

// CognitiveCheckpoint is the self-narrated summary persisted to
// prime.md/lite.md on sleep or graceful shutdown (spec §3.5). It is not
// a memory serialization — it's a terse third-person narrative.
type CognitiveCheckpoint struct {
	Model       string    `json:"model"` // "prime" or "lite"
	Narrative   string    `json:"narrative"`
	SleepAnchor time.Time `json:"sleep_anchor,omitempty"`
	WrittenAt   time.Time `json:"written_at"`
}
