package modelpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// CloudDriver implements contracts.ModelBackendDriver for the "api" backend
// kind: cloud chat-completion providers (Groq, OpenAI, Gemini) that all
// speak an OpenAI-compatible /chat/completions contract when given the
// right base URL, uniformly behind one driver rather than one SDK per
// provider — keeping the teacher's "one interface across every cloud
// vendor" idiom (see DESIGN.md sibling-repo note on beeper-ai-bridge's
// openai-go).
type CloudDriver struct {
	client *http.Client
}

// NewCloudDriver constructs the shared cloud backend driver.
func NewCloudDriver() *CloudDriver {
	return &CloudDriver{client: &http.Client{Timeout: 120 * time.Second}}
}

func (d *CloudDriver) Kind() models.BackendKind { return models.BackendAPI }

// EnsureLoaded is a no-op: cloud backends have nothing to lazily load.
func (d *CloudDriver) EnsureLoaded(_ context.Context, _ models.ModelConfig) error { return nil }

func (d *CloudDriver) ChatCompletion(ctx context.Context, cfg models.ModelConfig, req *models.RouteRequest) (*models.RouteResponse, error) {
	req.Clamp()
	body, err := json.Marshal(chatCompletionRequest{
		Model:       firstNonEmpty(cfg.ModelID, cfg.Name),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal cloud request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cloud completion request to %s: %w", cfg.Name, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloud completion %s returned %d: %s", cfg.Name, resp.StatusCode, string(raw))
	}
	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal cloud completion %s: %w", cfg.Name, err)
	}
	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}
	return &models.RouteResponse{
		Content:          content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		DurationMillis:   float64(time.Since(start).Milliseconds()),
	}, nil
}

func (d *CloudDriver) Shutdown(_ context.Context, _ models.ModelConfig) error { return nil }
