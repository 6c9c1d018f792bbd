// Package observer implements the in-stream generation observer (spec
// §4.1 step 11): a rate-limited checker running concurrently with token
// streaming that composes rule-based citation verification, fast pattern
// checks, and an optional LLM-backed review, returning BLOCK or CAUTION
// signals. Grounded on the teacher's internal/guardrails/guardrails.go
// tiered evaluator, generalized from a pre-generation safety gate to an
// in-stream monitor with its own rate limiter.
package observer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// Verdict is the observer's decision for one invocation.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictCaution Verdict = "CAUTION"
	VerdictBlock   Verdict = "BLOCK"
)

// Finding is one observer check result, attached to Verdict reasoning.
type Finding struct {
	Check  string
	Detail string
}

// RateLimiter enforces the spec's invocation budget: at least 15s between
// checks, at most 6 per stream.
type RateLimiter struct {
	mu        sync.Mutex
	lastCheck time.Time
	count     int
	MinGap    time.Duration
	MaxCount  int
}

// NewRateLimiter constructs a limiter with the spec defaults.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{MinGap: 15 * time.Second, MaxCount: 6}
}

// Allow reports whether another observer invocation may run now, and
// records it if so.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count >= r.MaxCount {
		return false
	}
	if !r.lastCheck.IsZero() && now.Sub(r.lastCheck) < r.MinGap {
		return false
	}
	r.lastCheck = now
	r.count++
	return true
}

var citationPattern = regexp.MustCompile(`` + "`" + `([a-zA-Z0-9_./-]+\.[a-zA-Z0-9]+)` + "`" + `|\[([a-zA-Z0-9_./-]+\.[a-zA-Z0-9]+)\]`)

// VerifyCitations cross-references filenames cited in partial output
// against the packet's retrieved_documents, returning a CAUTION finding
// for any citation that doesn't match a known document.
func VerifyCitations(partial string, retrievedDocs []string) *Finding {
	known := make(map[string]bool, len(retrievedDocs))
	for _, d := range retrievedDocs {
		known[d] = true
	}
	for _, m := range citationPattern.FindAllStringSubmatch(partial, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if name != "" && !known[name] {
			return &Finding{Check: "citation_verification", Detail: fmt.Sprintf("cited %q not in retrieved documents", name)}
		}
	}
	return nil
}

// PatternChecks runs fast, cheap checks for token degeneration and phrase
// loops within the accumulated partial output.
func PatternChecks(partial string) *Finding {
	words := strings.Fields(partial)
	if len(words) >= 12 {
		counts := make(map[string]int)
		for i := 0; i+4 <= len(words); i++ {
			phrase := strings.Join(words[i:i+4], " ")
			counts[phrase]++
			if counts[phrase] >= 3 {
				return &Finding{Check: "pattern_check", Detail: "repeated phrase detected"}
			}
		}
	}
	if degenerated(partial) {
		return &Finding{Check: "pattern_check", Detail: "token degeneration detected"}
	}
	return nil
}

func degenerated(s string) bool {
	runes := []rune(s)
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= 15 {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// LLMReviewer is the optional LLM-backed review leg; a nil Reviewer on
// Observer downgrades to rule-only mode per spec §4.1 failure semantics
// ("Observer LLM errors downgrade to rule-only mode").
type LLMReviewer interface {
	Review(ctx context.Context, partial string) (Verdict, string, error)
}

// Observer composes the three checks under the rate limiter.
type Observer struct {
	Limiter  *RateLimiter
	Reviewer LLMReviewer
}

// New constructs an Observer with a fresh rate limiter. reviewer may be
// nil for rule-only mode.
func New(reviewer LLMReviewer) *Observer {
	return &Observer{Limiter: NewRateLimiter(), Reviewer: reviewer}
}

// Check runs the composed observer logic against partial output if the
// rate limiter allows it; returns VerdictPass with no findings when
// rate-limited (the stream is not held up waiting on the observer).
func (o *Observer) Check(ctx context.Context, partial string, retrievedDocs []string) (Verdict, []Finding) {
	if !o.Limiter.Allow(time.Now()) {
		return VerdictPass, nil
	}

	var findings []Finding
	if f := VerifyCitations(partial, retrievedDocs); f != nil {
		findings = append(findings, *f)
	}
	if f := PatternChecks(partial); f != nil {
		findings = append(findings, *f)
		return VerdictBlock, findings // degeneration/loops are an immediate stream-ending signal
	}

	if o.Reviewer != nil {
		verdict, detail, err := o.Reviewer.Review(ctx, partial)
		if err == nil && verdict != VerdictPass {
			findings = append(findings, Finding{Check: "llm_review", Detail: detail})
			return verdict, findings
		}
		// LLM review error: downgrade silently to rule-only result below.
	}

	if len(findings) > 0 {
		return VerdictCaution, findings
	}
	return VerdictPass, nil
}

// Annotate appends observer-flagged cautions to the user-facing response
// in brackets, per spec §7's propagation policy.
func Annotate(response string, findings []Finding) string {
	if len(findings) == 0 {
		return response
	}
	var notes []string
	for _, f := range findings {
		notes = append(notes, f.Detail)
	}
	return response + " [" + strings.Join(notes, "; ") + "]"
}

// AsReflectionEntry records an observer check in the packet's reflection
// log (spec §3.1 append-only reasoning trace).
func AsReflectionEntry(verdict Verdict, findings []Finding) models.ReflectionLogEntry {
	var parts []string
	for _, f := range findings {
		parts = append(parts, f.Detail)
	}
	confidence := 1.0
	if verdict == VerdictCaution {
		confidence = 0.5
	} else if verdict == VerdictBlock {
		confidence = 0.0
	}
	return models.ReflectionLogEntry{
		Step:       "observer",
		Summary:    strings.Join(parts, "; "),
		Confidence: confidence,
	}
}
