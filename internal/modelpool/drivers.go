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

// HTTPBackendDriver implements contracts.ModelBackendDriver for the
// "local" (llama.cpp/gguf server), "vllm", and "hf" (transformers serving)
// backend kinds, which all speak a similar OpenAI-style chat-completion
// HTTP contract differing only in endpoint conventions. One driver struct
// per kind keeps the closed-variant dispatch explicit (spec §9) rather
// than collapsing them behind config alone.
type HTTPBackendDriver struct {
	kind   models.BackendKind
	client *http.Client
}

// NewHTTPBackendDriver constructs a driver for one of local/vllm/hf.
func NewHTTPBackendDriver(kind models.BackendKind) *HTTPBackendDriver {
	return &HTTPBackendDriver{kind: kind, client: &http.Client{Timeout: 120 * time.Second}}
}

func (d *HTTPBackendDriver) Kind() models.BackendKind { return d.kind }

// EnsureLoaded pings the backend's /health endpoint; local/vllm/hf runtimes
// are assumed to be started out-of-band (by the orchestrator's container
// lifecycle for vllm, or a sidecar process for local/hf).
func (d *HTTPBackendDriver) EnsureLoaded(ctx context.Context, cfg models.ModelConfig) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("%s backend %s: no endpoint configured", d.kind, cfg.Name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check %s: %w", cfg.Endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check %s returned %d", cfg.Endpoint, resp.StatusCode)
	}
	return nil
}

type chatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	TopP        float64              `json:"top_p"`
	MaxTokens   int                  `json:"max_tokens"`
	Stream      bool                 `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ChatCompletion posts to the backend's /v1/chat/completions endpoint.
func (d *HTTPBackendDriver) ChatCompletion(ctx context.Context, cfg models.ModelConfig, req *models.RouteRequest) (*models.RouteResponse, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       firstNonEmpty(cfg.ModelID, cfg.Name),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s completion request: %w", d.kind, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s completion returned %d: %s", d.kind, resp.StatusCode, string(raw))
	}
	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal %s completion: %w", d.kind, err)
	}
	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}
	return &models.RouteResponse{
		Content:          content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// StreamChatCompletion consumes a newline-delimited SSE-style stream of
// JSON chunks and invokes onChunk for each delta.
func (d *HTTPBackendDriver) StreamChatCompletion(ctx context.Context, cfg models.ModelConfig, req *models.RouteRequest, onChunk func(models.StreamChunk) error) error {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       firstNonEmpty(cfg.ModelID, cfg.Name),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s stream request: %w", d.kind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s stream returned %d: %s", d.kind, resp.StatusCode, string(raw))
	}

	dec := json.NewDecoder(resp.Body)
	for dec.More() {
		var chunk chatCompletionResponse
		if err := dec.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("decode %s stream chunk: %w", d.kind, err)
		}
		delta := ""
		if len(chunk.Choices) > 0 {
			delta = chunk.Choices[0].Delta.Content
		}
		if err := onChunk(models.StreamChunk{Delta: delta}); err != nil {
			return err
		}
	}
	return onChunk(models.StreamChunk{Done: true})
}

// Shutdown is a no-op at the driver layer for local/hf; for vllm, the
// orchestrator drives the actual container stop through its
// DockerContainerDriver (internal/orchestrator/dockerdriver.go), not this
// driver (spec §4.5: "container-level stop/start is used instead of
// in-process sleep/wake").
func (d *HTTPBackendDriver) Shutdown(_ context.Context, _ models.ModelConfig) error { return nil }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
