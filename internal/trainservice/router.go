package trainservice

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	apimw "github.com/synapsefold/cognition-core/internal/api/middleware"
	"github.com/synapsefold/cognition-core/pkg/contracts"
)

// NewRouter builds the training service stub's chi router (spec §6.3
// scope note: the orchestrator is the caller here, not a peer being
// called back, so AuthChain guards the two handoff endpoints the same
// way the other services guard their internal-only routes).
func NewRouter(s *Server, authChain contracts.AuthProvider) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(apimw.Logger)
	r.Use(apimw.Telemetry)
	if authChain != nil {
		r.Use(apimw.Auth(authChain))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/study/gpu-ready", s.handleGPUReady)
	r.Post("/study/gpu-release", s.handleGPURelease)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleGPUReady(w http.ResponseWriter, r *http.Request) {
	if err := s.GPUReady(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.State())})
}

func (s *Server) handleGPURelease(w http.ResponseWriter, r *http.Request) {
	if err := s.GPURelease(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.State())})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
