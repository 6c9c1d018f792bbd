// Package promptassembly builds the layered system prompt for a turn
// (spec §4.1 step 10): identity -> persona -> safety directive ->
// tool-calling convention -> world state -> retrieved documents ->
// semantic probe context -> council notes -> epistemic honesty directive
// -> original prompt, plus an optional assistant-prefill message.
// Grounded on the teacher's internal/resolver/resolver.go template-var
// substitution idiom, generalized from ingredient substitution to
// ordered prompt-tier concatenation.
package promptassembly

import (
	"fmt"
	"strings"

	"github.com/synapsefold/cognition-core/internal/probe"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// Tier identifies one layer of the assembled prompt, in emission order.
type Tier int

const (
	TierIdentity Tier = iota
	TierPersona
	TierSafety
	TierToolConvention
	TierWorldState
	TierRetrievedDocs
	TierProbeContext
	TierCouncilNotes
	TierEpistemicDirective
	TierOriginalPrompt
)

// Input bundles everything a single turn's assembly needs.
type Input struct {
	Identity          string
	Persona           string
	SafetyDirective   string
	ToolCatalog        []string
	ToolExecuted      bool // suppresses the tool-calling convention tier
	WorldState        map[string]interface{}
	RetrievedDocs     []string // deduped filenames, already resolved by the caller
	Probe             *probe.Result
	CouncilNotes      []models.CouncilNote
	EpistemicDirective string
	OriginalPrompt    string
}

const epistemicDirectiveDefault = "Cite only documents you have actually retrieved this turn. If uncertain, say so plainly rather than inventing detail."

// Assemble renders the full system prompt plus the final user message.
// It does not add the assistant prefill; callers append that with
// AppendPrefill when a tool has executed.
func Assemble(in Input) (systemPrompt string, messages []models.ChatMessage) {
	var tiers []string

	if in.Identity != "" {
		tiers = append(tiers, in.Identity)
	}
	if in.Persona != "" {
		tiers = append(tiers, in.Persona)
	}
	if in.SafetyDirective != "" {
		tiers = append(tiers, in.SafetyDirective)
	}
	if !in.ToolExecuted && len(in.ToolCatalog) > 0 {
		tiers = append(tiers, toolConventionTier(in.ToolCatalog))
	}
	if len(in.WorldState) > 0 {
		tiers = append(tiers, worldStateTier(in.WorldState))
	}
	if len(in.RetrievedDocs) > 0 {
		tiers = append(tiers, retrievedDocsTier(in.RetrievedDocs))
	}
	if in.Probe != nil && len(in.Probe.Hits) > 0 {
		tiers = append(tiers, probeContextTier(in.Probe))
	}
	if len(in.CouncilNotes) > 0 {
		tiers = append(tiers, councilNotesTier(in.CouncilNotes))
	}
	directive := in.EpistemicDirective
	if directive == "" {
		directive = epistemicDirectiveDefault
	}
	tiers = append(tiers, directive)

	systemPrompt = strings.Join(tiers, "\n\n")
	messages = []models.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: in.OriginalPrompt},
	}
	return systemPrompt, messages
}

// AppendPrefill adds the "Based on the results," assistant prefill used
// to steer synthesis after a successful tool execution rather than
// letting the model echo the raw tool output.
func AppendPrefill(messages []models.ChatMessage) []models.ChatMessage {
	return append(messages, models.ChatMessage{Role: "assistant", Content: "Based on the results,"})
}

func toolConventionTier(catalog []string) string {
	return fmt.Sprintf("You may call one of these tools when needed: %s. State your tool choice as structured JSON when you decide to use one.", strings.Join(catalog, ", "))
}

func worldStateTier(state map[string]interface{}) string {
	var parts []string
	for k, v := range state {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return "Current world state: " + strings.Join(parts, ", ")
}

func retrievedDocsTier(docs []string) string {
	return "Retrieved documents available for citation: " + strings.Join(docs, ", ")
}

func probeContextTier(result *probe.Result) string {
	var b strings.Builder
	b.WriteString("Semantic probe surfaced related context")
	if result.PrimaryCollection != "" {
		fmt.Fprintf(&b, " (primary: %s", result.PrimaryCollection)
		if len(result.SupplementalCollections) > 0 {
			fmt.Fprintf(&b, ", supplemental: %s", strings.Join(result.SupplementalCollections, ", "))
		}
		b.WriteString(")")
	}
	b.WriteString(":")
	for _, h := range result.Hits {
		fmt.Fprintf(&b, "\n- [%s] %s (score %.2f)", h.Collection, h.DocID, h.Score)
	}
	return b.String()
}

func councilNotesTier(notes []models.CouncilNote) string {
	var b strings.Builder
	b.WriteString("Notes from a prior Lite response awaiting your review:")
	for _, n := range notes {
		fmt.Fprintf(&b, "\n- (%s, confidence %.2f) %s", n.EscalationReason, n.Confidence, n.LiteQuickTake)
	}
	return b.String()
}
