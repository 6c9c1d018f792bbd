// Command orchestrator runs the cross-service orchestrator: the GPU
// ownership state machine, container-level handoff between the
// generation backend and the training service, the HA health watchdog,
// and one-way live -> candidate session sync (spec §1, §3.3, §4.5, §4.6,
// §6.3).
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
	"github.com/synapsefold/cognition-core/internal/maintenance"
	"github.com/synapsefold/cognition-core/internal/notify"
	"github.com/synapsefold/cognition-core/internal/orchestrator"
	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/internal/telemetry"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load("orchestrator", 8082)

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator: failed to init telemetry")
	}
	defer shutdownTelemetry(ctx)

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator: failed to open store")
	}
	defer st.Close()

	maintFlag := maintenance.New(cfg.SharedRoot)
	notifier := notify.NewService(cfg.Peers.GatewayURL+"/internal/notify", cfg.Auth.ServiceAccountSecret)

	stateMachine := orchestrator.NewStateMachine(st)
	containerDriver := orchestrator.NewDockerContainerDriver()
	vramProbe := orchestrator.NewStaticVRAMProbe()
	peerNotifier := orchestrator.NewHTTPPeerNotifier(cfg.Peers.EngineURL, cfg.Peers.TrainServiceURL, []byte(cfg.Auth.ServiceAccountSecret))

	handoff := orchestrator.NewHandoff(
		stateMachine,
		containerDriver,
		vramProbe,
		peerNotifier,
		notifier,
		os.Getenv("COGCORE_GENBACKEND_CONTAINER"),
		cfg.Peers.GenBackendURL,
	)

	watchdog := orchestrator.NewWatchdog([]orchestrator.ServicePair{
		{Name: "cognition-engine", LiveHealthURL: cfg.Peers.EngineURL + "/health", CandidateHealthURL: cfg.Peers.EngineFallbackURL + "/health"},
		{Name: "gateway", LiveHealthURL: cfg.Peers.GatewayURL + "/health"},
		{Name: "tool-server", LiveHealthURL: cfg.Peers.ToolServerURL + "/health"},
		{Name: "generation-backend", LiveHealthURL: cfg.Peers.GenBackendURL + "/health"},
		{Name: "training-service", LiveHealthURL: cfg.Peers.TrainServiceURL + "/health"},
	}, notifier, maintFlag)
	watchdog.LiveStore = st

	watchdogCtx, cancelWatchdog := context.WithCancel(context.Background())
	go watchdog.Run(watchdogCtx)

	authChain := auth.NewProviderChain()
	if cfg.Auth.ServiceAccountSecret != "" {
		authChain.Register(auth.NewServiceAccountProvider())
	}

	srv := &orchestrator.Server{
		Handoff:     handoff,
		State:       stateMachine,
		Watchdog:    watchdog,
		Maintenance: maintFlag,
	}
	if len(authChain.Names()) > 0 {
		srv.AuthChain = authChain
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      orchestrator.NewRouter(srv),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 130 * time.Second, // handoff wait-healthy is bounded at 120s (spec §5)
		IdleTimeout:  120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("orchestrator: shutting down")
		cancelWatchdog()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("orchestrator: http shutdown error")
		}
		close(idleConnsClosed)
	}()

	log.Info().Int("port", cfg.Port).Msg("orchestrator: ready")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("orchestrator: server failed")
	}
	<-idleConnsClosed
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.PostgresURL == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(ctx, cfg.PostgresURL)
}
