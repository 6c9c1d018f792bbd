// Package knowledge implements the knowledge-ingestion detection pipeline
// step (spec §4.1 step 9): explicit-save regex matching, an auto-detect
// heuristic for long-form content with entity density, near-duplicate
// checking via embedding similarity, and the write-and-embed / offer-to-
// save branches. Grounded on the teacher's internal/resolver/resolver.go
// regex-extraction idiom and internal/vectorstore cosine lookup.
package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/synapsefold/cognition-core/pkg/contracts"
)

var explicitSavePattern = regexp.MustCompile(`(?i)\b(remember (this|that)|save (this|that) (to|in) (my |the )?knowledge|add (this|that) to (my |the )?knowledge base)\b`)

// entityPattern is a coarse capitalized-sequence heuristic standing in
// for a real entity recognizer, consistent with the semantic probe's own
// pure-heuristic phrase extraction.
var entityPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]{2,}\b`)

// AutoDetectConfig tunes the long-form-content auto-detect heuristic.
type AutoDetectConfig struct {
	MinLength       int
	MinEntityDensity float64 // entities per 100 words
	ActiveKBSet     map[string]bool
}

// Decision is what the ingestion step decided for one utterance.
type Decision struct {
	ShouldIngest bool
	Explicit     bool // true = explicit save request, false = auto-detected candidate
	Category     string
}

// Detect classifies an utterance as an explicit save request, an
// auto-detected candidate, or neither.
func Detect(content string, activeKB string, cfg AutoDetectConfig) Decision {
	if explicitSavePattern.MatchString(content) {
		return Decision{ShouldIngest: true, Explicit: true, Category: categorize(content, activeKB)}
	}

	if cfg.ActiveKBSet != nil && !cfg.ActiveKBSet[activeKB] {
		return Decision{}
	}
	if len(content) < cfg.MinLength {
		return Decision{}
	}
	words := strings.Fields(content)
	if len(words) == 0 {
		return Decision{}
	}
	entities := entityPattern.FindAllString(content, -1)
	density := float64(len(entities)) / float64(len(words)) * 100
	if density >= cfg.MinEntityDensity {
		return Decision{ShouldIngest: true, Explicit: false, Category: categorize(content, activeKB)}
	}
	return Decision{}
}

func categorize(content, activeKB string) string {
	if activeKB != "" {
		return activeKB
	}
	return "general"
}

// NearDuplicateThreshold is the spec's dedup gate:
// embedding_query(content[:500]).top_hit.sim >= 0.85.
const NearDuplicateThreshold = 0.85

const nearDupPrefixLength = 500

// IsNearDuplicate queries index for the nearest existing document to
// content's first 500 characters and reports whether it clears the
// near-duplicate threshold.
func IsNearDuplicate(ctx context.Context, embed func(context.Context, string) ([]float64, error), index contracts.VectorIndex, content string) (bool, error) {
	prefix := content
	if len(prefix) > nearDupPrefixLength {
		prefix = prefix[:nearDupPrefixLength]
	}
	vec, err := embed(ctx, prefix)
	if err != nil {
		return false, fmt.Errorf("near_duplicate_check: embed: %w", err)
	}
	hits, err := index.Query(ctx, vec, 1)
	if err != nil {
		return false, fmt.Errorf("near_duplicate_check: query: %w", err)
	}
	if len(hits) == 0 {
		return false, nil
	}
	return hits[0].Score >= NearDuplicateThreshold, nil
}

// WriteAndEmbed persists content to the vector index under id with meta,
// for the explicit-save path (spec §4.1 step 9).
func WriteAndEmbed(ctx context.Context, embed func(context.Context, string) ([]float64, error), index contracts.VectorIndex, id, content string, meta map[string]string) error {
	vec, err := embed(ctx, content)
	if err != nil {
		return fmt.Errorf("write_and_embed: embed: %w", err)
	}
	if err := index.Add(ctx, id, vec, meta); err != nil {
		return fmt.Errorf("write_and_embed: add: %w", err)
	}
	return nil
}

// OfferToSaveHint is the system hint tagged onto a packet for the
// auto-detect path (spec §4.1 step 9: "tag the packet with a system hint
// to offer saving").
const OfferToSaveHint = "This looks like it could be worth saving to the knowledge base — offer to save it."
