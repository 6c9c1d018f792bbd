// Command trainservice runs a stand-in for the training/indexing
// service: the handoff-readiness contract (`/study/gpu-ready`,
// `/study/gpu-release`) the orchestrator drives during GPU handoff (spec
// §1, §2, §4.5). The real training loop and indexing pipeline are out of
// scope.
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
	"github.com/synapsefold/cognition-core/internal/trainservice"
	"github.com/synapsefold/cognition-core/pkg/contracts"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load("training-service", 8085)

	srv := trainservice.New(2 * time.Second)

	authChain := auth.NewProviderChain()
	if cfg.Auth.ServiceAccountSecret != "" {
		authChain.Register(auth.NewServiceAccountProvider())
	}
	var authChainIface contracts.AuthProvider
	if len(authChain.Names()) > 0 {
		authChainIface = authChain
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      trainservice.NewRouter(srv, authChainIface),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("training-service: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("training-service: http shutdown error")
		}
		close(idleConnsClosed)
	}()

	log.Info().Int("port", cfg.Port).Msg("training-service: ready")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("training-service: server failed")
	}
	<-idleConnsClosed
}
