package orchestrator

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	apimw "github.com/synapsefold/cognition-core/internal/api/middleware"
	"github.com/synapsefold/cognition-core/internal/telemetry"
	"github.com/synapsefold/cognition-core/pkg/contracts"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// Server exposes the orchestrator's HTTP surface (spec §6.3).
type Server struct {
	Handoff     *Handoff
	State       *StateMachine
	Watchdog    *Watchdog
	Maintenance interface{ Set(bool) error; On() bool }
	AuthChain   contracts.AuthProvider
}

// NewRouter builds the chi router, mirroring the teacher's middleware
// chain order (RequestID -> RealIP -> Recoverer -> Compress -> Logger ->
// Telemetry -> optional Auth -> CORS) from internal/api/router.go.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(apimw.Logger)
	r.Use(apimw.Telemetry)
	if s.AuthChain != nil {
		r.Use(apimw.Auth(s.AuthChain))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", telemetry.Handler().ServeHTTP)
	r.Get("/status", s.handleStatus)
	r.Post("/maintenance", s.handleMaintenance)
	r.Post("/handoff/prime-to-study", s.handleHandoffToStudy)
	r.Post("/handoff/study-to-prime", s.handleHandoffToCore)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := s.State.Status(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	var services []models.ServiceTarget
	if s.Watchdog != nil {
		services = s.Watchdog.PollOnce(ctx)
	}
	writeJSON(w, http.StatusOK, models.OrchestratorStatus{
		GPUOwner: status.Owner,
		State:    status.Owner,
		Services: services,
	})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed maintenance body"})
		return
	}
	if s.Maintenance == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "maintenance flag not configured"})
		return
	}
	if err := s.Maintenance.Set(body.On); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"on": body.On})
}

func (s *Server) handleHandoffToStudy(w http.ResponseWriter, r *http.Request) {
	if err := s.Handoff.CoreToStudy(r.Context()); err != nil {
		writeHandoffErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(models.GPUStudy)})
}

func (s *Server) handleHandoffToCore(w http.ResponseWriter, r *http.Request) {
	if err := s.Handoff.StudyToCore(r.Context()); err != nil {
		writeHandoffErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(models.GPUCore)})
}

func writeHandoffErr(w http.ResponseWriter, err error) {
	if _, ok := err.(*ErrStateConflict); ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
