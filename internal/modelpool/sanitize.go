package modelpool

import "github.com/synapsefold/cognition-core/pkg/models"

// SanitizeMessages enforces spec §4.2's cloud-backend message hygiene:
// any role other than system/user/assistant becomes "user", content is
// already a string in Go and is passed through untrimmed, empty
// non-system messages are dropped, and at least one user message is
// enforced by appending an empty-prompt placeholder if none exists.
func SanitizeMessages(req *models.RouteRequest) {
	out := make([]models.ChatMessage, 0, len(req.Messages))
	hasUser := false
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			m.Role = "user"
		}
		if m.Content == "" && m.Role != "system" {
			continue
		}
		if m.Role == "user" {
			hasUser = true
		}
		out = append(out, m)
	}
	if !hasUser {
		out = append(out, models.ChatMessage{Role: "user", Content: ""})
	}
	req.Messages = out
}
