// Package loopdetect implements the five parallel loop detectors and
// their aggregator (spec §4.1 step 12): tool-call repetition, output
// similarity, state oscillation, error cycle, and token pattern, combined
// by a weighted-vote aggregator with a warn-then-block escalation ladder.
// Grounded on the teacher's internal/guardrails/guardrails.go tiered
// evaluator (ordered independent checks feeding one verdict), generalized
// from a single safety verdict to five independent voters plus a weighted
// composite.
package loopdetect

import (
	"strings"
)

// Signal is one detector's vote: a pattern name and a confidence in
// [0, 1].
type Signal struct {
	Detector   string
	Pattern    string
	Confidence float64
}

// ToolCallRepetition votes on exact 3+ repeats, A-B-A-B ping-pong, or 3+
// calls producing the same result.
func ToolCallRepetition(recentCalls []string, recentResults []string) *Signal {
	if n := exactRepeatRun(recentCalls, 3); n {
		return &Signal{Detector: "tool_call_repetition", Pattern: "exact_repeat", Confidence: 0.95}
	}
	if pingPong(recentCalls) {
		return &Signal{Detector: "tool_call_repetition", Pattern: "ping_pong", Confidence: 0.85}
	}
	if n := exactRepeatRun(recentResults, 3); n {
		return &Signal{Detector: "tool_call_repetition", Pattern: "same_result", Confidence: 0.8}
	}
	return nil
}

// OutputSimilarity votes on verbatim (Jaccard/n-gram near-1.0) or
// paraphrased (2+ occurrences above a lower threshold) repeated outputs.
func OutputSimilarity(recentOutputs []string) *Signal {
	if len(recentOutputs) < 2 {
		return nil
	}
	last := recentOutputs[len(recentOutputs)-1]
	paraphraseCount := 0
	for _, prev := range recentOutputs[:len(recentOutputs)-1] {
		score := jaccard(tokenize(last), tokenize(prev))
		if score >= 0.95 {
			return &Signal{Detector: "output_similarity", Pattern: "verbatim_repeat", Confidence: 0.95}
		}
		if score >= 0.85 {
			paraphraseCount++
		}
	}
	if paraphraseCount >= 2 {
		return &Signal{Detector: "output_similarity", Pattern: "paraphrase_repeat", Confidence: 0.8}
	}
	return nil
}

// StateOscillation votes when the engine's tool-execution status flaps
// between two values across the recent window (e.g. APPROVED/SKIPPED
// alternating every turn).
func StateOscillation(recentStates []string) *Signal {
	if pingPong(recentStates) {
		return &Signal{Detector: "state_oscillation", Pattern: "state_flap", Confidence: 0.75}
	}
	return nil
}

// ErrorCycle votes on the same error recurring 3+ times, or a
// whack-a-mole A->B->A error sequence.
func ErrorCycle(recentErrors []string) *Signal {
	if exactRepeatRun(recentErrors, 3) {
		return &Signal{Detector: "error_cycle", Pattern: "same_error", Confidence: 0.9}
	}
	if len(recentErrors) >= 3 {
		n := len(recentErrors)
		if recentErrors[n-1] == recentErrors[n-3] && recentErrors[n-1] != recentErrors[n-2] {
			return &Signal{Detector: "error_cycle", Pattern: "whack_a_mole", Confidence: 0.7}
		}
	}
	return nil
}

// TokenPattern votes on an identical phrase repeated 3+ times within one
// output, or character-level degeneration (one character repeated 20+
// times in a row).
func TokenPattern(output string) *Signal {
	if identicalPhraseRepeat(output, 3) {
		return &Signal{Detector: "token_pattern", Pattern: "identical_phrase", Confidence: 0.85}
	}
	if characterDegeneration(output) {
		return &Signal{Detector: "token_pattern", Pattern: "character_degeneration", Confidence: 0.9}
	}
	return nil
}

// ── shared helpers ──────────────────────────────────────────

func exactRepeatRun(items []string, n int) bool {
	if len(items) < n {
		return false
	}
	tail := items[len(items)-n:]
	for i := 1; i < len(tail); i++ {
		if tail[i] != tail[0] {
			return false
		}
	}
	return tail[0] != ""
}

func pingPong(items []string) bool {
	if len(items) < 4 {
		return false
	}
	tail := items[len(items)-4:]
	return tail[0] == tail[2] && tail[1] == tail[3] && tail[0] != tail[1] && tail[0] != ""
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter, union := 0, 0
	seen := make(map[string]bool)
	for w := range a {
		seen[w] = true
	}
	for w := range b {
		seen[w] = true
	}
	union = len(seen)
	for w := range a {
		if b[w] {
			inter++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// identicalPhraseRepeat detects a 3+ word phrase occurring minCount+ times.
func identicalPhraseRepeat(output string, minCount int) bool {
	words := strings.Fields(output)
	if len(words) < 9 {
		return false
	}
	counts := make(map[string]int)
	for i := 0; i+3 <= len(words); i++ {
		phrase := strings.Join(words[i:i+3], " ")
		counts[phrase]++
		if counts[phrase] >= minCount {
			return true
		}
	}
	return false
}

// characterDegeneration flags a run of 20 or more identical characters.
// Repeating multi-character units are not detected.
func characterDegeneration(output string) bool {
	if len(output) < 20 {
		return false
	}
	runeRun := 1
	runes := []rune(output)
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			runeRun++
			if runeRun >= 20 {
				return true
			}
		} else {
			runeRun = 1
		}
	}
	return false
}
