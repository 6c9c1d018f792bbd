// Package historyreview implements the pipeline's first step (spec §4.1
// step 1): rule-based regex filters that redact or annotate session
// history messages carrying fabrication signals, and compress
// user-correction/assistant-acknowledgment pairs into a single summary
// note. Grounded on the teacher's internal/guardrails/guardrails.go
// regex-rule evaluator, generalized from a pass/fail verdict to a
// per-message redaction/annotation decision.
package historyreview

import (
	"regexp"
	"strings"

	"github.com/synapsefold/cognition-core/pkg/models"
)

var (
	unverifiedFilePath = regexp.MustCompile(`(?:^|\s)(/[\w./-]+\.\w+)`)
	blockquoteCitation  = regexp.MustCompile(`(?m)^>\s*.+`)
)

// fabricatedDomains is the small denylist of domains known to produce
// fabricated citations; the spec's WEB_RESEARCH config carries the
// authoritative blocked-domain list, this is the fallback default.
var fabricatedDomains = []string{"example-fake-source.com", "totally-real-citations.net"}

// Signal is one detected fabrication indicator on a message.
type Signal string

const (
	SignalUnverifiedPath     Signal = "unverified_file_path"
	SignalBlockquoteCitation Signal = "blockquote_citation"
	SignalFabricatedDomain   Signal = "fabricated_domain_link"
)

// detectSignals returns every fabrication signal found in content. A
// file path reference only counts as unverified when pathWasVerified is
// false, i.e. no read_file/introspect_logs call happened in this turn —
// the caller passes that context in.
func detectSignals(content string, pathWasVerified bool) []Signal {
	var signals []Signal
	if m := unverifiedFilePath.FindStringSubmatch(content); m != nil && !pathWasVerified {
		signals = append(signals, SignalUnverifiedPath)
	}
	if blockquoteCitation.MatchString(content) {
		signals = append(signals, SignalBlockquoteCitation)
	}
	for _, domain := range fabricatedDomains {
		if strings.Contains(content, domain) {
			signals = append(signals, SignalFabricatedDomain)
			break
		}
	}
	return signals
}

// Action is what ReviewMessage decided to do with one message.
type Action string

const (
	ActionPass      Action = "pass"
	ActionAnnotate  Action = "annotate"
	ActionRedact    Action = "redact"
)

// ReviewMessage classifies a single history message: 2+ signals redacts
// fully, exactly 1 annotates, 0 passes through unchanged (spec §4.1 step
// 1 threshold rule).
func ReviewMessage(content string, pathWasVerified bool, violationThreshold int) (Action, []Signal) {
	signals := detectSignals(content, pathWasVerified)
	switch {
	case len(signals) >= violationThreshold:
		return ActionRedact, signals
	case len(signals) >= 1:
		return ActionAnnotate, signals
	default:
		return ActionPass, signals
	}
}

const redactedPlaceholder = "[message redacted: unverifiable citations]"

// Rewrite applies ReviewMessage across a session history, redacting or
// annotating messages as decided, and compressing correction/
// acknowledgment pairs. Non-fatal by design: a detection error never
// blocks the pipeline (spec §4.1 failure semantics — "History review
// failures are non-fatal, pass history through").
func Rewrite(history []models.Message, violationThreshold int) []models.Message {
	if violationThreshold <= 0 {
		violationThreshold = 2
	}
	compressed := compressCorrectionPairs(history)

	out := make([]models.Message, 0, len(compressed))
	for _, m := range compressed {
		if m.Role != "assistant" {
			out = append(out, m)
			continue
		}
		action, signals := ReviewMessage(m.Content, false, violationThreshold)
		switch action {
		case ActionRedact:
			out = append(out, models.Message{Role: m.Role, Content: redactedPlaceholder, Timestamp: m.Timestamp})
		case ActionAnnotate:
			out = append(out, models.Message{Role: m.Role, Content: m.Content + annotationSuffix(signals), Timestamp: m.Timestamp})
		default:
			out = append(out, m)
		}
	}
	return out
}

func annotationSuffix(signals []Signal) string {
	if len(signals) == 0 {
		return ""
	}
	return " [unverified: " + string(signals[0]) + "]"
}

var correctionPattern = regexp.MustCompile(`(?i)^(no,?\s|that'?s (wrong|not right|incorrect)|actually,?\s)`)
var acknowledgmentPattern = regexp.MustCompile(`(?i)^(you'?re right|apologies|sorry[,.]|correct(ed)?,)`)

// compressCorrectionPairs collapses a user-correction message immediately
// followed by an assistant-acknowledgment message into one summary note,
// preserving everything else verbatim.
func compressCorrectionPairs(history []models.Message) []models.Message {
	out := make([]models.Message, 0, len(history))
	i := 0
	for i < len(history) {
		if i+1 < len(history) &&
			history[i].Role == "user" && correctionPattern.MatchString(history[i].Content) &&
			history[i+1].Role == "assistant" && acknowledgmentPattern.MatchString(history[i+1].Content) {
			out = append(out, models.Message{
				Role:      "system",
				Content:   "[correction accepted: " + history[i].Content + "]",
				Timestamp: history[i+1].Timestamp,
			})
			i += 2
			continue
		}
		out = append(out, history[i])
		i++
	}
	return out
}
