// Command genbackend runs a stand-in for the generation backend: an
// OpenAI-style chat-completion endpoint and a health check, the only
// parts of that service this spec's external interfaces depend on (spec
// §1, §2, §6). The real generation-model runtime is out of scope.
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

	"github.com/synapsefold/cognition-core/internal/config"
	"github.com/synapsefold/cognition-core/internal/genbackend"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load("generation-backend", 8084)

	srv := genbackend.New(genbackend.Config{
		ModelID:      os.Getenv("COGCORE_GENBACKEND_MODEL_ID"),
		ResponseText: os.Getenv("COGCORE_GENBACKEND_RESPONSE_TEXT"),
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      genbackend.NewRouter(srv),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("generation-backend: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("generation-backend: http shutdown error")
		}
		close(idleConnsClosed)
	}()

	log.Info().Int("port", cfg.Port).Msg("generation-backend: ready")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("generation-backend: server failed")
	}
	<-idleConnsClosed
}
