package genbackend

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	apimw "github.com/synapsefold/cognition-core/internal/api/middleware"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// NewRouter builds the generation backend stub's chi router: /health for
// the orchestrator watchdog and handoff health poll (spec §4.5 step 3:
// "poll health (<=120s, 3s interval)"), and /v1/chat/completions for the
// model pool's HTTPBackendDriver (spec §6, vllm backend kind).
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(apimw.Logger)
	r.Use(apimw.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/v1/chat/completions", s.handleCompletions)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.Healthy() {
		status = "error"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
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
	Choices []chatCompletionChoice `json:"choices"`
	Usage   chatCompletionUsage    `json:"usage"`
}

type chatCompletionChoice struct {
	Message chatCompletionDelta `json:"message"`
	Delta   chatCompletionDelta `json:"delta"`
}

type chatCompletionDelta struct {
	Content string `json:"content"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// handleCompletions answers both the non-streaming and streaming shapes
// internal/modelpool.HTTPBackendDriver speaks. Streaming here means
// writing a single chunk object whose delta carries the whole reply,
// matching the driver's json.Decoder-over-the-body read loop rather than
// true SSE framing ("data: " prefixes). No separate done chunk is sent;
// the driver signals completion itself once the body is exhausted.
func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed completion request"})
		return
	}

	resp, err := s.Complete(r.Context(), models.RouteRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	if !req.Stream {
		writeJSON(w, http.StatusOK, chatCompletionResponse{
			Choices: []chatCompletionChoice{{Message: chatCompletionDelta{Content: resp.Content}}},
			Usage:   chatCompletionUsage{PromptTokens: resp.PromptTokens, CompletionTokens: resp.CompletionTokens},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	_ = enc.Encode(chatCompletionResponse{Choices: []chatCompletionChoice{{Delta: chatCompletionDelta{Content: resp.Content}}}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
