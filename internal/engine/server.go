// Package engine is the cognition engine's composition root and HTTP
// surface (spec §1, §6.1): it wires the model pool, store, sleep/wake
// manager, tool router, safety gate, loop detector, and every other
// per-turn dependency into a pipeline.Pipeline, then exposes
// /process_packet, /health, /sleep/status, and the /gpu/* and
// /cognition/checkpoint endpoints the orchestrator and gateway call.
// Grounded on the teacher's pkg/server/server.go composition root,
// narrowed from "wire every control-plane subsystem" to "wire every
// cognition-turn dependency".
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/internal/approval"
	"github.com/synapsefold/cognition-core/internal/checkpoint"
	"github.com/synapsefold/cognition-core/internal/config"
	"github.com/synapsefold/cognition-core/internal/embeddings"
	"github.com/synapsefold/cognition-core/internal/guardrails"
	"github.com/synapsefold/cognition-core/internal/intent"
	"github.com/synapsefold/cognition-core/internal/loopdetect"
	"github.com/synapsefold/cognition-core/internal/modelpool"
	"github.com/synapsefold/cognition-core/internal/pipeline"
	"github.com/synapsefold/cognition-core/internal/sleepwake"
	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/internal/toolroute"
	"github.com/synapsefold/cognition-core/internal/vectorstore"
	"github.com/synapsefold/cognition-core/pkg/contracts"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// Server bundles every dependency the engine's HTTP handlers need, beyond
// what pipeline.Pipeline already owns.
type Server struct {
	Pipeline  *pipeline.Pipeline
	Pool      *modelpool.Pool
	Store     store.Store
	SleepWake *sleepwake.Manager
	Approvals *approval.Queue
	Config    *config.EngineConfig
	AuthChain contracts.AuthProvider

	// WaitPollInterval governs /gpu/wait's internal poll cadence.
	WaitPollInterval time.Duration
}

// Dependencies collects the infrastructure this composition root needs to
// build a Server: a store, a registered-and-configured model pool, and the
// peer clients the sleep/wake manager and pipeline call out to.
type Dependencies struct {
	Store            store.Store
	Pool             *modelpool.Pool
	EngineConfig     *config.EngineConfig
	VectorReg        *vectorstore.Registry
	EmbedReg         *embeddings.Registry
	ToolRouter       *toolroute.Router
	IntentClassifier *intent.EmbeddingClassifier
	Notifier         contracts.NotificationDispatcher
	Orchestrator     sleepwake.OrchestratorClient
	PendingQueue     sleepwake.PendingQueue
	OutputRouter     pipeline.OutputRouter
	ToolCatalog      []string
	AuthChain        contracts.AuthProvider
}

// New builds the engine's full dependency graph: a SafetyGate and
// loopdetect.Aggregator from config, a sleepwake.Manager wrapping the pool
// and orchestrator client, an approval.Queue, and the pipeline itself.
func New(deps Dependencies) (*Server, error) {
	if deps.Pool == nil || deps.Store == nil {
		return nil, fmt.Errorf("engine: Pool and Store are required")
	}
	cfg := deps.EngineConfig
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}

	safetyGate := guardrails.NewSafetyGate(cfg.SafeSidecarTool, nil)

	loopAgg, err := loopdetect.NewAggregator()
	if err != nil {
		return nil, fmt.Errorf("engine: build loop aggregator: %w", err)
	}

	approvals := approval.New()

	swManager := sleepwake.New(deps.Pool, deps.Orchestrator, deps.Store, deps.Notifier, deps.PendingQueue)

	pl := pipeline.New(pipeline.Dependencies{
		Pool:             deps.Pool,
		Store:            deps.Store,
		Config:           cfg,
		SleepWake:        swManager,
		VectorReg:        deps.VectorReg,
		EmbedReg:         deps.EmbedReg,
		ToolRouter:       deps.ToolRouter,
		SafetyGate:       safetyGate,
		LoopAgg:          loopAgg,
		IntentClassifier: deps.IntentClassifier,
		Notifier:         deps.Notifier,
		ApprovalSink:     approvals,
		OutputRouter:     deps.OutputRouter,
		ToolCatalog:      deps.ToolCatalog,
	})

	return &Server{
		Pipeline:         pl,
		Pool:             deps.Pool,
		Store:            deps.Store,
		SleepWake:        swManager,
		Approvals:        approvals,
		Config:           cfg,
		AuthChain:        deps.AuthChain,
		WaitPollInterval: 500 * time.Millisecond,
	}, nil
}

// Checkpoint synchronously persists prime.md and lite.md with the
// narratives passed in (prime.md stamped with the current time as its
// sleep anchor), used by
// POST /cognition/checkpoint outside of a sleep transition (e.g. operator-
// triggered, or the SIGTERM handler in cmd/cognition-engine per spec §4.8).
func (s *Server) Checkpoint(ctx context.Context, primeNarrative, liteNarrative string) error {
	now := time.Now().UTC()
	if err := checkpoint.WriteSleep(ctx, s.Store, "prime", primeNarrative, now); err != nil {
		return err
	}
	if err := checkpoint.WriteSleep(ctx, s.Store, "lite", liteNarrative, time.Time{}); err != nil {
		return err
	}
	log.Info().Msg("engine: checkpoint persisted")
	return nil
}

// gpuStatusFromPool builds the /gpu/status response from the pool's live
// state. The orchestrator is the system of record for GPU ownership
// (spec §3.3); this endpoint only reports the engine's own view of which
// of its models are currently GPU-backed and loaded.
func gpuStatusFromPool(pool *modelpool.Pool) models.GPUStatus {
	return models.GPUStatus{
		GPUReleased:     pool.GPUReleased(),
		GPUModelsLoaded: pool.GPUModelsLoaded(),
		UpdatedAt:       time.Now().UTC(),
	}
}
