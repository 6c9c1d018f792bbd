package guardrails

import "github.com/synapsefold/cognition-core/pkg/models"

// GateDecision is the tiered safety-gate outcome for one sidecar action
// (spec §4.1 step 14).
type GateDecision string

const (
	GatePass            GateDecision = "pass"
	GateApprovalQueued  GateDecision = "approval_queued"
)

// SafetyGate evaluates a sidecar action against governance allowlists and
// the safe-tools set, in tier order: (a) explicit governance allow +
// whitelist ID, (b) membership in the safe-tools set (read-only,
// memory/fragment operations), (c) otherwise route to the approval queue.
type SafetyGate struct {
	GovernanceAllowlist map[string]bool // whitelist ID -> allowed
	SafeTools           map[string]bool
}

// NewSafetyGate constructs a gate from the SAFE_SIDECAR_TOOLS config list
// and an optional governance allowlist.
func NewSafetyGate(safeTools []string, governanceAllowlist []string) *SafetyGate {
	g := &SafetyGate{GovernanceAllowlist: make(map[string]bool), SafeTools: make(map[string]bool)}
	for _, id := range governanceAllowlist {
		g.GovernanceAllowlist[id] = true
	}
	for _, t := range safeTools {
		g.SafeTools[t] = true
	}
	return g
}

// Evaluate returns GatePass when the action clears tier (a) or (b);
// otherwise GateApprovalQueued.
func (g *SafetyGate) Evaluate(action models.SidecarAction, governanceWhitelistID string) GateDecision {
	if governanceWhitelistID != "" && g.GovernanceAllowlist[governanceWhitelistID] {
		return GatePass
	}
	if g.SafeTools[action.Tool] {
		return GatePass
	}
	return GateApprovalQueued
}
