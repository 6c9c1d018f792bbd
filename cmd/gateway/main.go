// Command gateway runs the external ingress service: inbound message
// acceptance, retry-with-fallback calls to the cognition engine, the
// sleep-aware queue, and the /output_router delivery endpoint the engine
// posts completed packets back to (spec §1, §4.7, §6).
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
	"github.com/synapsefold/cognition-core/internal/gateway"
	"github.com/synapsefold/cognition-core/internal/maintenance"
	"github.com/synapsefold/cognition-core/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load("gateway", 8080)

	maintFlag := maintenance.New(cfg.SharedRoot)
	engineClient := gateway.NewEngineClient(cfg.Peers.EngineURL, cfg.Peers.EngineFallbackURL, maintFlag)
	poller := gateway.NewSleepAwarePoller(engineClient, cfg.Peers.EngineURL, nil)

	var archiveStore store.PacketArchiveStore
	if cfg.PostgresURL != "" {
		pgStore, err := store.NewPostgresStore(context.Background(), cfg.PostgresURL)
		if err != nil {
			log.Fatal().Err(err).Msg("gateway: failed to open store")
		}
		defer pgStore.Close()
		archiveStore = pgStore
	} else {
		archiveStore = store.NewMemoryStore()
	}

	authChain := auth.NewProviderChain()
	if cfg.Auth.ServiceAccountSecret != "" {
		authChain.Register(auth.NewServiceAccountProvider())
	}

	gwServer := &gateway.Server{
		Engine:     engineClient,
		Poller:     poller,
		Dispatcher: gateway.LoggingDispatcher{},
		Store:      archiveStore,
	}
	if len(authChain.Names()) > 0 {
		gwServer.AuthChain = authChain
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      gateway.NewRouter(gwServer),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("gateway: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("gateway: http shutdown error")
		}
		close(idleConnsClosed)
	}()

	log.Info().Int("port", cfg.Port).Msg("gateway: ready")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("gateway: server failed")
	}
	<-idleConnsClosed
}
