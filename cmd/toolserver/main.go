// Command toolserver runs the Tool Server: the single JSON-RPC 2.0 entry
// point executing capability calls on behalf of the cognition engine —
// allowlisted file I/O, a sandboxed shell, embedding query/ingest,
// domain-tiered web search/fetch, and read-only log introspection
// (spec §1, §6.2).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/internal/auth"
	"github.com/synapsefold/cognition-core/internal/config"
	"github.com/synapsefold/cognition-core/internal/embeddings"
	"github.com/synapsefold/cognition-core/internal/toolserver"
	"github.com/synapsefold/cognition-core/internal/vectorstore"
	"github.com/synapsefold/cognition-core/pkg/contracts"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load("tool-server", 8083)

	embedReg := embeddings.NewRegistry()
	if endpoint := os.Getenv("COGCORE_EMBED_ENDPOINT"); endpoint != "" {
		embedReg.Register("sentence-transformer", embeddings.NewLocalDriver(endpoint, 384))
	}
	var embedDriver contracts.EmbeddingDriver
	if embedReg.Available() {
		embedDriver, _ = embedReg.Primary()
	}

	vecReg := vectorstore.NewRegistry(cfg.SharedRoot + "/session_vectors")
	sharedIndex, err := vecReg.Get("tool-server-shared")
	if err != nil {
		log.Fatal().Err(err).Msg("tool-server: failed to open shared vector index")
	}

	toolCfg := toolserver.Config{
		FileRoots:         splitList(os.Getenv("COGCORE_FILE_ROOTS"), cfg.SharedRoot),
		ShellWhitelist:    toSet(splitList(os.Getenv("COGCORE_SHELL_WHITELIST"), "ls,cat,grep,echo")),
		ShellTimeout:      30 * time.Second,
		TrustedDomains:    toSet(splitList(os.Getenv("COGCORE_TRUSTED_DOMAINS"), "")),
		ReliableDomains:   toSet(splitList(os.Getenv("COGCORE_RELIABLE_DOMAINS"), "")),
		SearchProviderURL: os.Getenv("COGCORE_SEARCH_PROVIDER_URL"),
		LogDir:            os.Getenv("COGCORE_LOG_DIR"),
		Embedding:         embedDriver,
		Index:             sharedIndex,
	}

	toolSrv := toolserver.New(toolCfg)

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
		Handler:      toolserver.NewRouter(toolSrv, authChainIface),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("tool-server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("tool-server: http shutdown error")
		}
		close(idleConnsClosed)
	}()

	log.Info().Int("port", cfg.Port).Msg("tool-server: ready")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("tool-server: server failed")
	}
	<-idleConnsClosed
}

func splitList(v, fallback string) []string {
	if v == "" {
		v = fallback
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
