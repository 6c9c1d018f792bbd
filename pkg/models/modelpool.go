package models

import "time"

// BackendKind is the closed set of model-backend variants (spec §9:
// "Dynamic dispatch on backend ... a closed variant set").
type BackendKind string

const (
	BackendLocal               BackendKind = "local"
	BackendVLLM                BackendKind = "vllm"
	BackendHF                  BackendKind = "hf"
	BackendAPI                 BackendKind = "api"
	BackendSentenceTransformer BackendKind = "sentence-transformer"
)

// ModelStatus tracks a pool entry's lifecycle.
type ModelStatus string

const (
	ModelUnloaded    ModelStatus = "unloaded"
	ModelLoading     ModelStatus = "loading"
	ModelIdle        ModelStatus = "idle"
	ModelBusy        ModelStatus = "busy"
	ModelGPUReleased ModelStatus = "gpu_released"
	ModelFailed      ModelStatus = "failed"
)

// ModelConfig is one entry in the MODEL_CONFIGS section of the JSON
// constants file (spec §6.5).
type ModelConfig struct {
	Name      string      `json:"name"`
	Backend   BackendKind `json:"backend"`
	Endpoint  string      `json:"endpoint,omitempty"`
	APIKey    string      `json:"api_key,omitempty"`
	ModelID   string      `json:"model_id,omitempty"` // upstream model identifier
	GPUBacked bool        `json:"gpu_backed"`
}

// Role is an alias name resolved through the model pool's alias chain
// (e.g. "prime" -> "gpu_prime").
type Role string

const (
	RolePrime Role = "prime"
	RoleLite  Role = "lite"
)

// ChatMessage is a single chat-completion message, sanitized per spec §4.2:
// role must be one of system/user/assistant, content coerced to string,
// empty non-system messages dropped, at least one user message enforced.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RouteRequest is sent to the model pool for a chat completion.
type RouteRequest struct {
	Role        Role          `json:"role"`
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// Clamp enforces spec §4.2's cloud-backend parameter clamps.
func (r *RouteRequest) Clamp() {
	if r.Temperature < 0 {
		r.Temperature = 0
	} else if r.Temperature > 2 {
		r.Temperature = 2
	}
	if r.TopP < 0 {
		r.TopP = 0
	} else if r.TopP > 1 {
		r.TopP = 1
	}
	if r.MaxTokens < 1 {
		r.MaxTokens = 1
	} else if r.MaxTokens > 32768 {
		r.MaxTokens = 32768
	}
}

// RouteResponse is the result of a chat completion.
type RouteResponse struct {
	Model            string  `json:"model"`
	Content          string  `json:"content"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	DurationMillis   float64 `json:"duration_ms"`
}

// StreamChunk is one token/delta from a streaming completion.
type StreamChunk struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
}

// CostSummary tracks per-session or per-deployment spend, mirrored from
// the teacher's per-kitchen CostSummary shape.
type CostSummary struct {
	TotalCostUSD float64            `json:"total_cost_usd"`
	TotalTokens  int                `json:"total_tokens"`
	ByModel      map[string]float64 `json:"by_model,omitempty"`
}

// PoolEntry is the model pool's bookkeeping record for one loaded model.
type PoolEntry struct {
	Config      ModelConfig `json:"config"`
	Status      ModelStatus `json:"status"`
	LoadedAt    time.Time   `json:"loaded_at,omitempty"`
	LastUsedAt  time.Time   `json:"last_used_at,omitempty"`
	StashedAlias string     `json:"stashed_alias,omitempty"` // set by release_gpu for reclaim_gpu to restore
}
