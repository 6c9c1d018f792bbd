// Package toolroute implements the tool-routing pipeline step (spec §4.1
// step 6): Lite-model tool selection with robust JSON parsing, Prime-model
// review, the composite-confidence approval gate, and local/relayed
// dispatch. Grounded on the teacher's internal/executor/executor.go
// agentic loop (render prompt -> call router -> execute tool_calls) and
// internal/resolver/resolver.go's regex-first-then-strict-parse idiom.
package toolroute

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// nonGreedyObject extracts the first {...} object non-greedily, tolerating
// leading/trailing prose around the JSON the Lite model emits.
var nonGreedyObject = regexp.MustCompile(`(?s)\{.*?\}`)

// rawSelection is the strict JSON shape the Lite model is prompted to
// emit: {selected_tool|null, params, reasoning, confidence, alternatives[]}.
type rawSelection struct {
	SelectedTool *string                `json:"selected_tool"`
	Params       map[string]interface{} `json:"params"`
	Reasoning    string                 `json:"reasoning"`
	Confidence   float64                `json:"confidence"`
	Alternatives []rawAlternative       `json:"alternatives"`
}

type rawAlternative struct {
	Tool       string  `json:"tool"`
	Confidence float64 `json:"confidence"`
}

// ChatCompleter is the narrow model-pool dependency this package needs.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, role models.Role, req *models.RouteRequest) (*models.RouteResponse, error)
}

// Select prompts the Lite model at low temperature to produce a tool
// selection, then robustly parses the result. A malformed or absent
// selection is treated as "no tool selected" per spec §7's schema/parse
// error policy — never a pipeline failure.
func Select(ctx context.Context, pool ChatCompleter, prompt string, catalog []string) (*models.ToolSelection, []models.ToolSelection, error) {
	sysPrompt := fmt.Sprintf(
		"Given the user request and the available tools %v, respond with ONLY a JSON object: "+
			`{"selected_tool": <name or null>, "params": {...}, "reasoning": "...", "confidence": 0.0-1.0, "alternatives": [{"tool": "...", "confidence": 0.0}]}`,
		catalog,
	)
	resp, err := pool.ChatCompletion(ctx, models.RoleLite, &models.RouteRequest{
		Messages: []models.ChatMessage{
			{Role: "system", Content: sysPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.15,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("tool selector completion: %w", err)
	}

	raw, ok := parseSelection(resp.Content)
	if !ok || raw.SelectedTool == nil || *raw.SelectedTool == "" {
		return nil, nil, nil // no tool selected — continue pipeline
	}

	selection := &models.ToolSelection{
		Name:                *raw.SelectedTool,
		Params:              raw.Params,
		SelectionReasoning:  raw.Reasoning,
		SelectionConfidence: raw.Confidence,
	}
	var alternatives []models.ToolSelection
	for _, a := range raw.Alternatives {
		alternatives = append(alternatives, models.ToolSelection{Name: a.Tool, SelectionConfidence: a.Confidence})
	}
	return selection, alternatives, nil
}

// parseSelection applies non-greedy regex extraction then a strict JSON
// parse. Returns ok=false on any malformation rather than erroring.
func parseSelection(text string) (*rawSelection, bool) {
	candidate := nonGreedyObject.FindString(text)
	if candidate == "" {
		return nil, false
	}
	var raw rawSelection
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, false
	}
	return &raw, true
}

// reviewResponse is the strict JSON shape the Prime review step emits.
type reviewResponse struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Review asks the Prime model, at moderate temperature, to approve or
// reject a tool selection (spec §4.1 step 6).
func Review(ctx context.Context, pool ChatCompleter, prompt string, selection *models.ToolSelection) (approved bool, confidence float64, reasoning string, err error) {
	sysPrompt := "Review this proposed tool call for safety and relevance. " +
		`Respond with ONLY JSON: {"approved": true|false, "confidence": 0.0-1.0, "reasoning": "..."}`
	userMsg := fmt.Sprintf("Request: %s\nProposed tool: %s\nParams: %v\nSelection reasoning: %s",
		prompt, selection.Name, selection.Params, selection.SelectionReasoning)

	resp, err := pool.ChatCompletion(ctx, models.RolePrime, &models.RouteRequest{
		Messages: []models.ChatMessage{
			{Role: "system", Content: sysPrompt},
			{Role: "user", Content: userMsg},
		},
		Temperature: 0.3,
		MaxTokens:   256,
	})
	if err != nil {
		return false, 0, "", fmt.Errorf("tool review completion: %w", err)
	}

	candidate := nonGreedyObject.FindString(resp.Content)
	if candidate == "" {
		return false, 0, "malformed review response", nil
	}
	var rr reviewResponse
	if err := json.Unmarshal([]byte(candidate), &rr); err != nil {
		return false, 0, "malformed review response", nil
	}
	return rr.Approved, rr.Confidence, rr.Reasoning, nil
}

// CompositeConfidence combines selection and review confidence into the
// gate value compared against the 0.70 approval threshold (spec §4.1
// step 6).
func CompositeConfidence(selectionConfidence, reviewConfidence float64) float64 {
	return (selectionConfidence + reviewConfidence) / 2
}

// ApprovalThreshold is the composite-confidence gate (spec §4.1 step 6).
const ApprovalThreshold = 0.70
