// Package checkpoint renders and parses the cognitive checkpoint
// narrative documents (prime.md/lite.md, spec §3.5, §4.4): a terse
// third-person self-summary with a "Sleep Started: <ISO>" anchor line
// that the wake sequence uses to bound which council notes are new.
// Grounded on the teacher's internal/notify/service.go narrative-building
// idiom (plain text event summaries), generalized to a persisted anchor
// document instead of a one-shot notification.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/pkg/models"
)

const anchorPrefix = "Sleep Started: "

// Render formats a CognitiveCheckpoint as the markdown narrative document
// written to disk/store. The anchor line is only emitted when
// SleepAnchor is set (i.e., this checkpoint accompanies a sleep
// transition, not a plain periodic save).
func Render(ckpt *models.CognitiveCheckpoint) string {
	var b strings.Builder
	if !ckpt.SleepAnchor.IsZero() {
		fmt.Fprintf(&b, "%s%s\n\n", anchorPrefix, ckpt.SleepAnchor.UTC().Format(time.RFC3339))
	}
	b.WriteString(ckpt.Narrative)
	b.WriteString("\n")
	return b.String()
}

// ParseAnchor extracts the sleep-started timestamp from a rendered
// checkpoint document, if present.
func ParseAnchor(doc string) (time.Time, bool) {
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(line, anchorPrefix) {
			ts, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(line, anchorPrefix)))
			if err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// WriteSleep persists a checkpoint stamped with the sleep-started anchor
// (spec §4.4 ENTERING_SLEEP step 2).
func WriteSleep(ctx context.Context, s store.CheckpointStore, model, narrative string, anchor time.Time) error {
	ckpt := &models.CognitiveCheckpoint{
		Model:       model,
		Narrative:   narrative,
		SleepAnchor: anchor,
		WrittenAt:   time.Now().UTC(),
	}
	if err := s.WriteCheckpoint(ctx, ckpt); err != nil {
		return fmt.Errorf("write_sleep_checkpoint %s: %w", model, err)
	}
	return nil
}

// Read loads a named checkpoint ("prime" or "lite").
func Read(ctx context.Context, s store.CheckpointStore, model string) (*models.CognitiveCheckpoint, error) {
	ckpt, err := s.ReadCheckpoint(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("read_checkpoint %s: %w", model, err)
	}
	return ckpt, nil
}

// AppendObservation appends a terse self-narrated line to an existing
// checkpoint's narrative without disturbing its sleep anchor, used by the
// orchestrator's health watchdog to record HA degraded/failed
// observations into prime.md (spec §4.6: "an optional self-narrated
// observation written to prime.md"). Creates the checkpoint if absent.
func AppendObservation(ctx context.Context, s store.CheckpointStore, model, observation string) error {
	existing, err := s.ReadCheckpoint(ctx, model)
	var anchor time.Time
	var narrative string
	if err == nil {
		anchor = existing.SleepAnchor
		narrative = existing.Narrative
	}
	if narrative != "" {
		narrative += "\n"
	}
	narrative += observation
	ckpt := &models.CognitiveCheckpoint{
		Model:       model,
		Narrative:   narrative,
		SleepAnchor: anchor,
		WrittenAt:   time.Now().UTC(),
	}
	if err := s.WriteCheckpoint(ctx, ckpt); err != nil {
		return fmt.Errorf("append_observation %s: %w", model, err)
	}
	return nil
}
