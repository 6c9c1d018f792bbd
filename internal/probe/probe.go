// Package probe implements the semantic probe pipeline step (spec §4.1
// step 2): pure-heuristic phrase extraction from the user's prompt,
// per-phrase embedding + cosine lookup against known vector collections,
// and short-circuit skip rules for trivial inputs. Phrase extraction and
// the fan-out across collections are grounded on the teacher's
// internal/resolver/resolver.go regex-driven extraction idiom and
// internal/vectorstore cosine search; the per-phrase fan-out uses
// golang.org/x/sync/errgroup per SPEC_FULL's DOMAIN STACK binding.
package probe

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/synapsefold/cognition-core/pkg/contracts"
)

// Config tunes phrase extraction and lookup thresholds (mirrors
// config.SemanticProbeConfig; duplicated here as plain fields so this
// package has no dependency on internal/config).
type Config struct {
	SimilarityThreshold float64
	MaxPhrases          int
	TopKPerPhrase       int
	MinPhraseLength     int
}

// Hit is one scored match against a named vector collection.
type Hit struct {
	Collection string  `json:"collection"`
	Phrase     string  `json:"phrase"`
	DocID      string  `json:"doc_id"`
	Score      float64 `json:"score"`
}

// Result is the semantic_probe_result data field payload (spec §4.1
// step 2).
type Result struct {
	Phrases               []string `json:"phrases"`
	Hits                   []Hit    `json:"hits"`
	PrimaryCollection      string   `json:"primary_collection,omitempty"`
	SupplementalCollections []string `json:"supplemental_collections,omitempty"`
	DurationMillis         float64  `json:"duration_ms"`
}

// CollectionLookup resolves a named vector collection to a queryable
// index. In production this is backed by the per-session SessionIndex
// registry plus any shared knowledge-base collections.
type CollectionLookup func(collection string) (contracts.VectorIndex, bool)

var (
	capitalizedSeq = regexp.MustCompile(`\b([A-Z][a-zA-Z]*(?:'s)?(?:\s+[A-Z][a-zA-Z]*(?:'s)?)*)\b`)
	quotedString   = regexp.MustCompile(`"([^"]{3,})"|'([^']{3,})'`)
	domainNotation = regexp.MustCompile(`\b[a-zA-Z0-9_.-]+\.[a-zA-Z]{2,}(?:/[^\s]*)?\b`)
)

// reflexCommands are skipped outright (spec §4.1 step 2 short-circuit).
var reflexCommands = map[string]bool{"exit": true, "help": true, "status": true}

// ExtractPhrases pulls candidate phrases from prompt using pure heuristics:
// capitalized multi-word sequences (incl. possessives), quoted strings,
// rare words, and domain-notation patterns. Capped at maxPhrases, minimum
// length minLen.
func ExtractPhrases(prompt string, maxPhrases, minLen int) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(s string) {
		s = strings.TrimSpace(s)
		if len(s) < minLen || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}

	for _, m := range capitalizedSeq.FindAllString(prompt, -1) {
		add(m)
	}
	for _, m := range quotedString.FindAllStringSubmatch(prompt, -1) {
		if m[1] != "" {
			add(m[1])
		} else {
			add(m[2])
		}
	}
	for _, m := range domainNotation.FindAllString(prompt, -1) {
		add(m)
	}
	for _, w := range rareWords(prompt) {
		add(w)
	}

	if len(out) > maxPhrases {
		out = out[:maxPhrases]
	}
	return out
}

// rareWords returns words not in the stopword + top-N English set.
func rareWords(prompt string) []string {
	var out []string
	for _, w := range strings.Fields(prompt) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if len(w) < 4 {
			continue
		}
		lower := strings.ToLower(w)
		if stopwords[lower] || commonWords[lower] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// ShouldSkip implements the short-circuit skip rules: reflex commands,
// inputs under 3 words, duplicate of the previous turn.
func ShouldSkip(prompt, previousPrompt string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(prompt))
	if reflexCommands[trimmed] {
		return true
	}
	if len(strings.Fields(prompt)) < 3 {
		return true
	}
	if previousPrompt != "" && trimmed == strings.ToLower(strings.TrimSpace(previousPrompt)) {
		return true
	}
	return false
}

// Run extracts phrases and queries every collection known to lookup,
// grouping hits by collection and selecting the primary/supplemental
// split. Each uncached phrase is embedded in its own errgroup goroutine,
// which then queries the collections one after another; no concurrency
// limit or deadline is applied beyond ctx.
func Run(ctx context.Context, cfg Config, prompt string, embed func(context.Context, string) ([]float64, error), lookup CollectionLookup, collections []string, cache map[string]bool) (*Result, error) {
	start := time.Now()
	phrases := ExtractPhrases(prompt, cfg.MaxPhrases, cfg.MinPhraseLength)

	type phraseHit struct {
		phrase string
		hits   []Hit
	}
	results := make([]phraseHit, len(phrases))

	g, gctx := errgroup.WithContext(ctx)
	for i, phrase := range phrases {
		i, phrase := i, phrase
		if cache[strings.ToLower(phrase)] {
			continue
		}
		g.Go(func() error {
			vec, err := embed(gctx, phrase)
			if err != nil {
				return nil // probe failures are non-fatal (spec §4.1 failure semantics)
			}
			var hits []Hit
			for _, collection := range collections {
				idx, ok := lookup(collection)
				if !ok {
					continue
				}
				matches, err := idx.Query(gctx, vec, cfg.TopKPerPhrase)
				if err != nil {
					continue
				}
				for _, m := range matches {
					if m.Score < cfg.SimilarityThreshold {
						continue
					}
					hits = append(hits, Hit{Collection: collection, Phrase: phrase, DocID: m.ID, Score: m.Score})
				}
			}
			results[i] = phraseHit{phrase: phrase, hits: hits}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var allHits []Hit
	byCollection := make(map[string]float64)
	for _, r := range results {
		allHits = append(allHits, r.hits...)
		for _, h := range r.hits {
			byCollection[h.Collection] += h.Score
		}
	}

	primary, supplemental := splitCollections(byCollection)
	return &Result{
		Phrases:                 phrases,
		Hits:                    allHits,
		PrimaryCollection:       primary,
		SupplementalCollections: supplemental,
		DurationMillis:          float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

func splitCollections(byCollection map[string]float64) (string, []string) {
	if len(byCollection) == 0 {
		return "", nil
	}
	type scored struct {
		name  string
		score float64
	}
	var ranked []scored
	for name, score := range byCollection {
		ranked = append(ranked, scored{name, score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	primary := ranked[0].name
	var supplemental []string
	for _, r := range ranked[1:] {
		supplemental = append(supplemental, r.name)
	}
	return primary, supplemental
}
