// Package council implements the Lite <-> Prime council protocol (spec
// §4.3): response tagging, post-response complexity escalation, and the
// wake-time note replay that feeds council notes back to Prime as data
// fields. Grounded on the teacher's internal/notify/service.go event
// dispatch idiom, generalized from "notify a channel" to "write a durable
// handoff note another subsystem reads once."
package council

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// Tag prefixes every response with [Lite] or [Prime] per spec §4.3. Full
// reasoning detail stays in debug logs, never in the tagged user-facing
// text.
func Tag(model models.Role, content string) string {
	switch model {
	case models.RolePrime:
		return "[Prime] " + content
	case models.RoleLite:
		return "[Lite] " + content
	default:
		return content
	}
}

// ComplexityAssessment is the result of assess_complexity (spec §4.3).
type ComplexityAssessment struct {
	Escalate   bool
	Reason     string
	Confidence float64
}

var (
	emotionalPattern     = regexp.MustCompile(`(?i)\b(feel|feeling|sad|anxious|afraid|grief|lonely|overwhelmed|hopeless)\b`)
	philosophicalPattern = regexp.MustCompile(`(?i)\b(meaning of life|consciousness|free will|existence|morality|ethics|soul)\b`)
	systemInternalPattern = regexp.MustCompile(`(?i)\b(your (weights|architecture|training|prompt|source code)|how (are|were) you (built|trained|designed))\b`)
)

// LongPromptChars is the length threshold (in characters) above which a
// prompt is flagged as "long" for escalation purposes (spec §4.3).
const LongPromptChars = 600

// AssessComplexity classifies why a Lite-answered turn might warrant
// Prime's attention on next wake. Runs only when Lite answered while Prime
// was asleep (spec §4.3).
func AssessComplexity(prompt, response string) ComplexityAssessment {
	switch {
	case emotionalPattern.MatchString(prompt):
		return ComplexityAssessment{Escalate: true, Reason: "emotional", Confidence: 0.8}
	case philosophicalPattern.MatchString(prompt):
		return ComplexityAssessment{Escalate: true, Reason: "philosophical", Confidence: 0.75}
	case systemInternalPattern.MatchString(prompt):
		return ComplexityAssessment{Escalate: true, Reason: "system_internal", Confidence: 0.7}
	case len(prompt) > LongPromptChars:
		return ComplexityAssessment{Escalate: true, Reason: "long_prompt", Confidence: 0.6}
	default:
		return ComplexityAssessment{Escalate: false}
	}
}

// WriteEscalationNote persists a council note when AssessComplexity flags
// escalation (spec §4.1 step 17, §4.3). quickTake is a terse Lite summary,
// not the full response.
func WriteEscalationNote(ctx context.Context, s store.CouncilStore, sessionID, prompt, quickTake string, assessment ComplexityAssessment) error {
	if !assessment.Escalate {
		return nil
	}
	note := &models.CouncilNote{
		Timestamp:        time.Now().UTC(),
		SessionID:        sessionID,
		UserPrompt:       prompt,
		LiteQuickTake:    quickTake,
		EscalationReason: assessment.Reason,
		Confidence:       assessment.Confidence,
	}
	if err := s.WriteCouncilNote(ctx, note); err != nil {
		return fmt.Errorf("write_escalation_note: %w", err)
	}
	return nil
}

// QuickTake truncates a full response into a terse council-note summary.
func QuickTake(response string, maxLen int) string {
	trimmed := strings.TrimSpace(response)
	if len(trimmed) <= maxLen {
		return trimmed
	}
	return trimmed[:maxLen] + "..."
}

// CompleteWake reads the sleep-timestamp anchor from the prime checkpoint,
// loads every council note written since that anchor, and archives them —
// the "read exactly once" invariant from spec §5. Returns the archived
// notes; NotesAsDataFields turns them into packet data fields.
func CompleteWake(ctx context.Context, s store.Store) ([]models.CouncilNote, error) {
	ckpt, err := s.ReadCheckpoint(ctx, "prime")
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); !ok {
			return nil, fmt.Errorf("complete_wake: read checkpoint: %w", err)
		}
	}
	var since time.Time
	if ckpt != nil {
		since = ckpt.SleepAnchor
	}

	notes, err := s.ListPendingCouncilNotes(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("complete_wake: list pending notes: %w", err)
	}
	for _, n := range notes {
		if err := s.ArchiveCouncilNote(ctx, n.Timestamp); err != nil {
			return nil, fmt.Errorf("complete_wake: archive note %s: %w", n.Timestamp, err)
		}
	}
	return notes, nil
}

// NotesFromDataFields reconstructs council notes from a packet's
// council_note data fields, the inverse of NotesAsDataFields, so prompt
// assembly can read them back off the packet without depending on the
// wake result that originally produced them.
func NotesFromDataFields(fields []models.DataField) []models.CouncilNote {
	var notes []models.CouncilNote
	for _, f := range fields {
		if f.Type != "council_note" {
			continue
		}
		m, ok := f.Value.(map[string]interface{})
		if !ok {
			continue
		}
		var note models.CouncilNote
		if v, ok := m["user_prompt"].(string); ok {
			note.UserPrompt = v
		}
		if v, ok := m["lite_quick_take"].(string); ok {
			note.LiteQuickTake = v
		}
		if v, ok := m["escalation_reason"].(string); ok {
			note.EscalationReason = v
		}
		if v, ok := m["confidence"].(float64); ok {
			note.Confidence = v
		}
		notes = append(notes, note)
	}
	return notes
}

// NotesAsDataFields converts council notes into packet data fields for
// injection into the next turn's prompt assembly (spec §4.1 step 10).
func NotesAsDataFields(notes []models.CouncilNote) []models.DataField {
	var fields []models.DataField
	for _, n := range notes {
		fields = append(fields, models.DataField{
			Key: "council_note_" + n.Timestamp.Format(time.RFC3339Nano),
			Value: map[string]interface{}{
				"user_prompt":       n.UserPrompt,
				"lite_quick_take":   n.LiteQuickTake,
				"escalation_reason": n.EscalationReason,
				"confidence":        n.Confidence,
			},
			Type:   "council_note",
			Source: "council",
		})
	}
	return fields
}
