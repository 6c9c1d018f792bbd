// Command cognition-engine runs the cognition engine: the per-turn
// pipeline, the Lite/Prime model pool, sleep/wake lifecycle, and the
// sensitive-action approval queue (spec §1, §4, §6.1). This is the
// hardest subsystem the spec describes and the only one of the six
// service binaries that owns a pipeline.Pipeline.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/internal/auth"
	"github.com/synapsefold/cognition-core/internal/config"
	"github.com/synapsefold/cognition-core/internal/embeddings"
	"github.com/synapsefold/cognition-core/internal/engine"
	"github.com/synapsefold/cognition-core/internal/gatewayclient"
	"github.com/synapsefold/cognition-core/internal/intent"
	"github.com/synapsefold/cognition-core/internal/modelpool"
	"github.com/synapsefold/cognition-core/internal/notify"
	"github.com/synapsefold/cognition-core/internal/orchestratorclient"
	"github.com/synapsefold/cognition-core/internal/sleepwake"
	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/internal/telemetry"
	"github.com/synapsefold/cognition-core/internal/toolroute"
	"github.com/synapsefold/cognition-core/internal/vectorstore"
	"github.com/synapsefold/cognition-core/pkg/contracts"
	"github.com/synapsefold/cognition-core/pkg/models"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load("cognition-engine", 8081)
	engineCfg, err := config.LoadEngineConfig(os.Getenv("COGCORE_ENGINE_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load engine constants file")
	}

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init telemetry")
	}
	defer shutdownTelemetry(ctx)

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	pool := buildModelPool(engineCfg)

	vectorReg := vectorstore.NewRegistry(cfg.SharedRoot + "/session_vectors")
	embedReg := embeddings.NewRegistry()
	registerEmbedDrivers(embedReg, engineCfg)

	serviceSecret := []byte(cfg.Auth.ServiceAccountSecret)
	relay := toolroute.NewRelayClient(cfg.Peers.ToolServerURL, func() string { return signedServiceToken(serviceSecret, "cognition-engine") })
	toolRouter, err := toolroute.NewRouter(relay)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build tool router")
	}

	orchClient := orchestratorclient.New(cfg.Peers.OrchestratorURL, cfg.Peers.GenBackendURL, serviceSecret)
	gwClient := gatewayclient.New(cfg.Peers.GatewayURL, serviceSecret)
	notifier := notify.NewService(cfg.Peers.GatewayURL+"/internal/notify", cfg.Auth.ServiceAccountSecret)

	authChain := auth.NewProviderChain()
	if cfg.Auth.ServiceAccountSecret != "" {
		authChain.Register(auth.NewServiceAccountProvider())
	}

	var catalog []string
	for name := range engineCfg.ModelConfigs {
		catalog = append(catalog, name)
	}

	srv, err := engine.New(engine.Dependencies{
		Store:        st,
		Pool:         pool,
		EngineConfig: engineCfg,
		VectorReg:    vectorReg,
		EmbedReg:     embedReg,
		ToolRouter:   toolRouter,
		IntentClassifier: &intent.EmbeddingClassifier{
			TopK:      engineCfg.EmbedIntent.TopK,
			Threshold: engineCfg.EmbedIntent.ConfidenceThreshold,
		},
		Notifier:     notifier,
		Orchestrator: orchClient,
		PendingQueue: sleepwake.NewMemoryQueue(),
		OutputRouter: gwClient,
		ToolCatalog:  catalog,
		AuthChain:    authChainOrNil(authChain),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine server")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine.NewRouter(srv),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// spec §4.8: the engine's SIGTERM handler synchronously writes
	// checkpoints and flushes the lite journal before exiting. PID 1 must
	// be this process (exec-form entrypoint in the Dockerfile) so SIGTERM
	// is not swallowed by a shell.
	idleConnsClosed := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("cognition-engine: shutting down, writing checkpoints")

		checkpointCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Checkpoint(checkpointCtx, "Shutdown: graceful stop requested.", "Shutdown: graceful stop requested."); err != nil {
			log.Error().Err(err).Msg("cognition-engine: checkpoint on shutdown failed")
		}

		shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("cognition-engine: http shutdown error")
		}
		close(idleConnsClosed)
	}()

	log.Info().Int("port", cfg.Port).Msg("cognition-engine: ready")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("cognition-engine: server failed")
	}
	<-idleConnsClosed
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.PostgresURL == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(ctx, cfg.PostgresURL)
}

// buildModelPool registers every backend driver kind and configures the
// pool's aliases/fallback chains from MODEL_CONFIGS (spec §4.2). Role
// aliases and fallback chains are deployment-specific conventions (e.g.
// "prime" -> "gpu_prime" -> "groq_fallback" -> "oracle_openai") set via
// COGCORE_PRIME_CHAIN/COGCORE_LITE_CHAIN so they don't have to be
// hardcoded into the binary.
func buildModelPool(cfg *config.EngineConfig) *modelpool.Pool {
	pool := modelpool.New()
	pool.RegisterDriver(modelpool.NewHTTPBackendDriver(models.BackendLocal))
	pool.RegisterDriver(modelpool.NewHTTPBackendDriver(models.BackendVLLM))
	pool.RegisterDriver(modelpool.NewHTTPBackendDriver(models.BackendHF))
	pool.RegisterDriver(modelpool.NewCloudDriver())

	for name, entry := range cfg.ModelConfigs {
		pool.Configure(name, models.ModelConfig{
			Name:      name,
			Backend:   models.BackendKind(entry.Backend),
			Endpoint:  entry.Endpoint,
			APIKey:    os.Getenv(entry.APIKeyEnv),
			ModelID:   entry.ModelID,
			GPUBacked: entry.GPUBacked,
		})
	}

	if chain := splitEnvList("COGCORE_PRIME_CHAIN"); len(chain) > 0 {
		pool.SetAlias(models.RolePrime, chain[0])
		pool.SetFallbackChain(models.RolePrime, chain)
	}
	if chain := splitEnvList("COGCORE_LITE_CHAIN"); len(chain) > 0 {
		pool.SetAlias(models.RoleLite, chain[0])
		pool.SetFallbackChain(models.RoleLite, chain)
	}
	return pool
}

func registerEmbedDrivers(reg *embeddings.Registry, cfg *config.EngineConfig) {
	for name, entry := range cfg.ModelConfigs {
		switch entry.Backend {
		case "sentence-transformer":
			reg.Register(name, embeddings.NewLocalDriver(entry.Endpoint, 384))
		case "api":
			if apiKey := os.Getenv(entry.APIKeyEnv); apiKey != "" {
				reg.Register(name, embeddings.NewOpenAIDriver(apiKey, entry.ModelID))
			}
		}
	}
}

func splitEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func authChainOrNil(chain *auth.ProviderChain) contracts.AuthProvider {
	if len(chain.Names()) == 0 {
		return nil
	}
	return chain
}

func signedServiceToken(secret []byte, service string) string {
	if len(secret) == 0 {
		return ""
	}
	token, err := auth.GenerateToken(secret, service, service, time.Hour)
	if err != nil {
		log.Warn().Err(err).Msg("cognition-engine: failed to sign outbound service token")
		return ""
	}
	return token
}
