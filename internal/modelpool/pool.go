// Package modelpool implements the Lite/Prime model pool described in
// spec §4.2: a map name -> backend handle, a role alias chain (prime ->
// gpu_prime, with configured fallbacks), idempotent lazy loading, and the
// release_gpu/reclaim_gpu pair the orchestrator drives during GPU handoff.
// Structurally grounded on the teacher's internal/router/router.go
// (provider registry + fallback chain) generalized from "per-request
// provider choice" to "per-role backend resolution with GPU lifecycle".
package modelpool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/synapsefold/cognition-core/internal/telemetry"
	"github.com/synapsefold/cognition-core/pkg/contracts"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// Pool owns the set of loaded models, the alias chain used to resolve a
// Role to a concrete model name, and the fallback chain tried on
// unavailability.
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*models.PoolEntry
	drivers map[models.BackendKind]contracts.ModelBackendDriver

	// aliases maps a role name to the concrete model name it currently
	// resolves to, e.g. "prime" -> "gpu_prime".
	aliases map[models.Role]string

	// fallbackChain is the ordered list of model names tried, in order,
	// when the alias target is unavailable (spec §4.2:
	// "prime -> gpu_prime -> groq_fallback -> oracle_openai").
	fallbackChain map[models.Role][]string

	loadGroup singleflight.Group
}

// New constructs an empty pool. Call RegisterDriver for each backend kind
// and Configure to seed the alias/fallback chains before first use.
func New() *Pool {
	return &Pool{
		entries:       make(map[string]*models.PoolEntry),
		drivers:       make(map[models.BackendKind]contracts.ModelBackendDriver),
		aliases:       make(map[models.Role]string),
		fallbackChain: make(map[models.Role][]string),
	}
}

// RegisterDriver wires a backend-kind implementation (local/vllm/hf/api/
// sentence-transformer) into the pool.
func (p *Pool) RegisterDriver(driver contracts.ModelBackendDriver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drivers[driver.Kind()] = driver
}

// Configure registers one model's static configuration; a name that is
// already configured keeps its existing entry. Roles are bound to models
// separately, with SetAlias.
func (p *Pool) Configure(name string, cfg models.ModelConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[name]; !ok {
		p.entries[name] = &models.PoolEntry{Config: cfg, Status: models.ModelUnloaded}
	}
}

// SetAlias binds a role to a concrete model name.
func (p *Pool) SetAlias(role models.Role, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.aliases[role] = name
}

// SetFallbackChain sets the ordered fallback list tried when role's alias
// target can't be loaded/acquired.
func (p *Pool) SetFallbackChain(role models.Role, chain []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallbackChain[role] = chain
}

// EnsureLoaded lazily loads name if not already loaded. Idempotent:
// concurrent calls for the same cold model are deduplicated via
// singleflight so two turns on different sessions never double-load one
// model (spec §9 concurrency note).
func (p *Pool) EnsureLoaded(ctx context.Context, name string) error {
	p.mu.RLock()
	entry, ok := p.entries[name]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ensure_model_loaded: unknown model %s", name)
	}
	if entry.Status == models.ModelIdle || entry.Status == models.ModelBusy {
		return nil
	}

	_, err, _ := p.loadGroup.Do(name, func() (interface{}, error) {
		p.mu.Lock()
		entry := p.entries[name]
		if entry.Status == models.ModelIdle || entry.Status == models.ModelBusy {
			p.mu.Unlock()
			return nil, nil
		}
		entry.Status = models.ModelLoading
		cfg := entry.Config
		p.mu.Unlock()

		driver, ok := p.drivers[cfg.Backend]
		if !ok {
			p.markFailed(name)
			return nil, fmt.Errorf("ensure_model_loaded: no driver registered for backend %s", cfg.Backend)
		}
		if err := driver.EnsureLoaded(ctx, cfg); err != nil {
			p.markFailed(name)
			return nil, fmt.Errorf("ensure_model_loaded %s: %w", name, err)
		}

		p.mu.Lock()
		entry.Status = models.ModelIdle
		entry.LoadedAt = time.Now().UTC()
		p.mu.Unlock()
		log.Info().Str("model", name).Str("backend", string(cfg.Backend)).Msg("model loaded")
		return nil, nil
	})
	return err
}

func (p *Pool) markFailed(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[name]; ok {
		e.Status = models.ModelFailed
	}
}

// AcquireForRole resolves role through the alias chain, falling back
// through the configured chain on unavailability, and marks the winning
// entry busy. Returns the resolved model name and its config.
func (p *Pool) AcquireForRole(ctx context.Context, role models.Role) (string, models.ModelConfig, error) {
	p.mu.RLock()
	candidates := make([]string, 0, 4)
	if alias, ok := p.aliases[role]; ok {
		candidates = append(candidates, alias)
	}
	candidates = append(candidates, p.fallbackChain[role]...)
	p.mu.RUnlock()

	var lastErr error
	for _, name := range candidates {
		if err := p.EnsureLoaded(ctx, name); err != nil {
			lastErr = err
			log.Warn().Str("model", name).Err(err).Msg("acquire_for_role: candidate unavailable, falling back")
			continue
		}
		p.mu.Lock()
		entry := p.entries[name]
		entry.Status = models.ModelBusy
		entry.LastUsedAt = time.Now().UTC()
		cfg := entry.Config
		p.mu.Unlock()
		return name, cfg, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("acquire_for_role: no candidates configured for role %s", role)
	}
	return "", models.ModelConfig{}, fmt.Errorf("acquire_for_role %s: exhausted fallback chain: %w", role, lastErr)
}

// Release marks name idle again.
func (p *Pool) Release(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[name]; ok && e.Status == models.ModelBusy {
		e.Status = models.ModelIdle
	}
}

// ReleaseGPU identifies loaded (idle or busy) GPU-backed entries, stashes
// the alias each one served so ReclaimGPU can restore it, calls its
// driver's Shutdown, and marks it gpu_released. Called by the sleep/wake
// manager on ENTERING_SLEEP and by the cognition engine's
// POST /gpu/release handler.
func (p *Pool) ReleaseGPU(ctx context.Context) error {
	p.mu.Lock()
	type toRelease struct {
		name  string
		cfg   models.ModelConfig
		alias string
	}
	var targets []toRelease
	for name, e := range p.entries {
		if !e.Config.GPUBacked {
			continue
		}
		if e.Status != models.ModelIdle && e.Status != models.ModelBusy {
			continue
		}
		alias := ""
		for role, aliasTarget := range p.aliases {
			if aliasTarget == name {
				alias = string(role)
			}
		}
		targets = append(targets, toRelease{name: name, cfg: e.Config, alias: alias})
	}
	p.mu.Unlock()

	for _, t := range targets {
		driver, ok := p.drivers[t.cfg.Backend]
		if !ok {
			continue
		}
		if err := driver.Shutdown(ctx, t.cfg); err != nil {
			log.Warn().Str("model", t.name).Err(err).Msg("release_gpu: shutdown failed, marking released anyway")
		}
		p.mu.Lock()
		if e, ok := p.entries[t.name]; ok {
			e.Status = models.ModelGPUReleased
			e.StashedAlias = t.alias
		}
		p.mu.Unlock()
		log.Info().Str("model", t.name).Str("stashed_alias", t.alias).Msg("gpu model released")
	}
	return nil
}

// ReclaimGPU reloads every previously gpu_released entry and restores its
// stashed alias. Called on WAKING after the orchestrator confirms the
// generation backend container is healthy.
func (p *Pool) ReclaimGPU(ctx context.Context) error {
	p.mu.Lock()
	var toReload []string
	for name, e := range p.entries {
		if e.Status == models.ModelGPUReleased {
			toReload = append(toReload, name)
		}
	}
	p.mu.Unlock()

	for _, name := range toReload {
		if err := p.EnsureLoaded(ctx, name); err != nil {
			return fmt.Errorf("reclaim_gpu %s: %w", name, err)
		}
		p.mu.Lock()
		e := p.entries[name]
		if e.StashedAlias != "" {
			p.aliases[models.Role(e.StashedAlias)] = name
		}
		e.StashedAlias = ""
		p.mu.Unlock()
		log.Info().Str("model", name).Msg("gpu model reclaimed")
	}
	return nil
}

// GPUModelsLoaded lists currently loaded (idle or busy) GPU-backed model
// names, for the /gpu/status endpoint.
func (p *Pool) GPUModelsLoaded() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for name, e := range p.entries {
		if e.Config.GPUBacked && (e.Status == models.ModelIdle || e.Status == models.ModelBusy) {
			out = append(out, name)
		}
	}
	return out
}

// GPUReleased reports whether any GPU-backed entry currently sits in the
// gpu_released state, i.e. whether a prior ReleaseGPU has not yet been
// matched by a ReclaimGPU.
func (p *Pool) GPUReleased() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		if e.Config.GPUBacked && e.Status == models.ModelGPUReleased {
			return true
		}
	}
	return false
}

// recordCompletionMetrics publishes the Prometheus counters/histograms for
// a finished chat completion.
func recordCompletionMetrics(model string, role models.Role, resp *models.RouteResponse) {
	telemetry.ModelCompletionSeconds.WithLabelValues(model, string(role)).Observe(resp.DurationMillis / 1000)
	telemetry.ModelTokensTotal.WithLabelValues(model, "prompt").Add(float64(resp.PromptTokens))
	telemetry.ModelTokensTotal.WithLabelValues(model, "completion").Add(float64(resp.CompletionTokens))
}

// ChatCompletion acquires role, dispatches to its backend driver, records
// metrics, and releases the entry.
func (p *Pool) ChatCompletion(ctx context.Context, role models.Role, req *models.RouteRequest) (*models.RouteResponse, error) {
	req.Clamp()
	SanitizeMessages(req)

	name, cfg, err := p.AcquireForRole(ctx, role)
	if err != nil {
		return nil, err
	}
	defer p.Release(name)

	driver, ok := p.drivers[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("chat_completion: no driver for backend %s", cfg.Backend)
	}
	start := time.Now()
	resp, err := driver.ChatCompletion(ctx, cfg, req)
	if err != nil {
		return nil, fmt.Errorf("chat_completion %s: %w", name, err)
	}
	resp.DurationMillis = float64(time.Since(start).Milliseconds())
	resp.Model = name
	recordCompletionMetrics(name, role, resp)
	return resp, nil
}

// StreamChatCompletion is the streaming counterpart used by the
// generation+observer pipeline step (spec §4.1 step 11). It returns the
// accumulated generated text, not the resolved model name — callers that
// need the model name have it already (they passed in the role and can
// read it off the packet/metrics), but the returned string is what
// becomes the turn's actual response candidate.
func (p *Pool) StreamChatCompletion(ctx context.Context, role models.Role, req *models.RouteRequest, onChunk func(models.StreamChunk) error) (string, error) {
	req.Clamp()
	SanitizeMessages(req)
	req.Stream = true

	name, cfg, err := p.AcquireForRole(ctx, role)
	if err != nil {
		return "", err
	}
	defer p.Release(name)

	driver, ok := p.drivers[cfg.Backend]
	if !ok {
		return "", fmt.Errorf("stream_chat_completion: no driver for backend %s", cfg.Backend)
	}
	streamer, ok := driver.(contracts.StreamingModelBackendDriver)
	if !ok {
		resp, err := driver.ChatCompletion(ctx, cfg, req)
		if err != nil {
			return "", err
		}
		if err := onChunk(models.StreamChunk{Delta: resp.Content, Done: true}); err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	var buf strings.Builder
	wrapped := func(chunk models.StreamChunk) error {
		buf.WriteString(chunk.Delta)
		return onChunk(chunk)
	}
	if err := streamer.StreamChatCompletion(ctx, cfg, req, wrapped); err != nil {
		return "", fmt.Errorf("stream_chat_completion %s: %w", name, err)
	}
	return buf.String(), nil
}
