// Package guardrails implements the tiered epistemic safety gate (spec
// §4.1 steps 14, §6.5 EPISTEMIC_GUARDRAILS): content_filter, pii, topic,
// length, regex, and prompt_injection checks applied to prompts and
// responses, plus the sidecar-action tiered gate (explicit allow +
// whitelist / safe-tools-set / else approval queue). Adapted from the
// teacher's internal/guardrails/guardrails.go evaluator, trimmed from its
// multi-tenant Guardrail-record model down to the single static rule set
// this spec's EPISTEMIC_GUARDRAILS config section describes.
package guardrails

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Kind is the closed set of guardrail check kinds.
type Kind string

const (
	KindContentFilter    Kind = "content_filter"
	KindPII              Kind = "pii"
	KindTopicRestriction Kind = "topic"
	KindMaxLength        Kind = "length"
	KindRegexFilter      Kind = "regex"
	KindPromptInjection  Kind = "prompt_injection"
)

// Rule is one configured guardrail check (spec §6.5 EPISTEMIC_GUARDRAILS).
type Rule struct {
	Kind          Kind
	BlockedWords  []string
	CaseSensitive bool
	PIIPatterns   []string // subset of builtInPIIPatterns keys; empty means all
	BlockedTopics []string
	AllowedTopics []string
	MaxCharacters int
	MaxWords      int
	RegexPattern  string
	BlockOnMatch  bool
	Sensitivity   string // "low"|"medium"|"high", prompt_injection only
}

// Result is one rule's evaluation outcome.
type Result struct {
	Passed  bool
	Kind    Kind
	Message string
}

// Evaluation is the composed result of every configured rule.
type Evaluation struct {
	Passed  bool
	Results []Result
}

// Evaluate runs every rule against text.
func Evaluate(rules []Rule, text string) Evaluation {
	eval := Evaluation{Passed: true}
	for _, r := range rules {
		res := evaluateOne(r, text)
		eval.Results = append(eval.Results, res)
		if !res.Passed {
			eval.Passed = false
		}
	}
	return eval
}

func evaluateOne(r Rule, text string) Result {
	switch r.Kind {
	case KindContentFilter:
		return evalContentFilter(r, text)
	case KindPII:
		return evalPII(r, text)
	case KindTopicRestriction:
		return evalTopicRestriction(r, text)
	case KindMaxLength:
		return evalMaxLength(r, text)
	case KindRegexFilter:
		return evalRegexFilter(r, text)
	case KindPromptInjection:
		return evalPromptInjection(r, text)
	default:
		return Result{Passed: true, Kind: r.Kind, Message: "unknown guardrail kind"}
	}
}

func evalContentFilter(r Rule, text string) Result {
	checkText := text
	if !r.CaseSensitive {
		checkText = strings.ToLower(text)
	}
	for _, word := range r.BlockedWords {
		checkWord := word
		if !r.CaseSensitive {
			checkWord = strings.ToLower(word)
		}
		if strings.Contains(checkText, checkWord) {
			return Result{Passed: false, Kind: r.Kind, Message: "blocked content detected"}
		}
	}
	return Result{Passed: true, Kind: r.Kind}
}

var builtInPIIPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"phone":       regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
}

func evalPII(r Rule, text string) Result {
	names := r.PIIPatterns
	if len(names) == 0 {
		for k := range builtInPIIPatterns {
			names = append(names, k)
		}
	}
	for _, name := range names {
		re, ok := builtInPIIPatterns[name]
		if ok && re.MatchString(text) {
			return Result{Passed: false, Kind: r.Kind, Message: "pii detected: " + name}
		}
	}
	return Result{Passed: true, Kind: r.Kind}
}

func evalTopicRestriction(r Rule, text string) Result {
	lower := strings.ToLower(text)
	for _, topic := range r.BlockedTopics {
		if strings.Contains(lower, strings.ToLower(topic)) {
			return Result{Passed: false, Kind: r.Kind, Message: "blocked topic: " + topic}
		}
	}
	if len(r.AllowedTopics) > 0 {
		for _, topic := range r.AllowedTopics {
			if strings.Contains(lower, strings.ToLower(topic)) {
				return Result{Passed: true, Kind: r.Kind}
			}
		}
		return Result{Passed: false, Kind: r.Kind, Message: "does not match any allowed topic"}
	}
	return Result{Passed: true, Kind: r.Kind}
}

func evalMaxLength(r Rule, text string) Result {
	if r.MaxCharacters > 0 && utf8.RuneCountInString(text) > r.MaxCharacters {
		return Result{Passed: false, Kind: r.Kind, Message: "exceeds maximum character limit"}
	}
	if r.MaxWords > 0 && len(strings.Fields(text)) > r.MaxWords {
		return Result{Passed: false, Kind: r.Kind, Message: "exceeds maximum word limit"}
	}
	return Result{Passed: true, Kind: r.Kind}
}

func evalRegexFilter(r Rule, text string) Result {
	if r.RegexPattern == "" {
		return Result{Passed: true, Kind: r.Kind}
	}
	re, err := regexp.Compile(r.RegexPattern)
	if err != nil {
		return Result{Passed: true, Kind: r.Kind, Message: "invalid regex: " + err.Error()}
	}
	matched := re.MatchString(text)
	if matched == r.BlockOnMatch {
		return Result{Passed: false, Kind: r.Kind, Message: "content matched blocked regex pattern"}
	}
	return Result{Passed: true, Kind: r.Kind}
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`),
	regexp.MustCompile(`(?i)new\s+instructions?:\s*`),
	regexp.MustCompile(`(?i)\bdo\s+anything\s+now\b`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
}

var highSensitivityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)override\s+(your|the|all)\s+`),
	regexp.MustCompile(`(?i)bypass\s+(your|the|all)\s+`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system\s+)?(prompt|instructions?)`),
}

func evalPromptInjection(r Rule, text string) Result {
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return Result{Passed: false, Kind: r.Kind, Message: "potential prompt injection detected"}
		}
	}
	if r.Sensitivity == "high" {
		for _, re := range highSensitivityPatterns {
			if re.MatchString(text) {
				return Result{Passed: false, Kind: r.Kind, Message: "potential prompt injection detected (high sensitivity)"}
			}
		}
	}
	return Result{Passed: true, Kind: r.Kind}
}
