package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	apimw "github.com/synapsefold/cognition-core/internal/api/middleware"
	"github.com/synapsefold/cognition-core/internal/telemetry"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// NewRouter builds the cognition engine's chi router (spec §6.1), the
// same middleware chain order used by every other service binary in this
// repo (see DESIGN.md).
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
	r.Post("/process_packet", s.handleProcessPacket)
	r.Get("/sleep/status", s.handleSleepStatus)
	r.Get("/gpu/status", s.handleGPUStatus)
	r.Post("/gpu/release", s.handleGPURelease)
	r.Post("/gpu/reclaim", s.handleGPUReclaim)
	r.Post("/gpu/wait", s.handleGPUWait)
	r.Post("/cognition/checkpoint", s.handleCheckpoint)
	r.Get("/approvals", s.handleListApprovals)
	r.Post("/approvals/decide", s.handleDecideApproval)

	return r
}

// handleHealth reports healthy whenever the server has a model pool wired
// in, and "error" when it has none. It does not check whether a Lite
// model is configured, loaded or reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if s.Pool == nil {
		status = "error"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleProcessPacket(w http.ResponseWriter, r *http.Request) {
	var packet models.CognitionPacket
	if err := json.NewDecoder(r.Body).Decode(&packet); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed cognition packet"})
		return
	}
	if packet.Header.PacketID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing packet_id"})
		return
	}

	ctx := r.Context()
	result, err := s.Pipeline.Run(ctx, &packet)
	if err != nil {
		// Only a cancelled context reaches here (spec §4.1 Run doc); every
		// other failure is absorbed into response.candidate upstream.
		log.Error().Err(err).Str("packet_id", packet.Header.PacketID).Msg("engine: process_packet context error")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "I encountered an issue handling that."})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSleepStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.SleepWake.State())
}

func (s *Server) handleGPUStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gpuStatusFromPool(s.Pool))
}

func (s *Server) handleGPURelease(w http.ResponseWriter, r *http.Request) {
	if err := s.Pool.ReleaseGPU(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, gpuStatusFromPool(s.Pool))
}

func (s *Server) handleGPUReclaim(w http.ResponseWriter, r *http.Request) {
	if err := s.Pool.ReclaimGPU(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, gpuStatusFromPool(s.Pool))
}

// handleGPUWait blocks up to timeout_seconds (schema-enforced to [1,60],
// spec §5) polling the pool for the GPU having been reclaimed (i.e. no
// entry still sitting in gpu_released).
func (s *Server) handleGPUWait(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TimeoutSeconds int `json:"timeout_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed gpu/wait body"})
		return
	}
	if body.TimeoutSeconds < 1 {
		body.TimeoutSeconds = 1
	} else if body.TimeoutSeconds > 60 {
		body.TimeoutSeconds = 60
	}

	ctx, cancel := r.Context(), func() {}
	deadline := time.Now().Add(time.Duration(body.TimeoutSeconds) * time.Second)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	for {
		if !s.Pool.GPUReleased() {
			writeJSON(w, http.StatusOK, map[string]bool{"available": true})
			return
		}
		if time.Now().After(deadline) {
			writeJSON(w, http.StatusOK, map[string]bool{"available": false})
			return
		}
		select {
		case <-ctx.Done():
			writeJSON(w, http.StatusOK, map[string]bool{"available": false})
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pollInterval() time.Duration {
	if s.WaitPollInterval <= 0 {
		return 500 * time.Millisecond
	}
	return s.WaitPollInterval
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PrimeNarrative string `json:"prime_narrative"`
		LiteNarrative  string `json:"lite_narrative"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed checkpoint body"})
		return
	}
	if err := s.Checkpoint(r.Context(), body.PrimeNarrative, body.LiteNarrative); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "checkpointed"})
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Approvals.List())
}

func (s *Server) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GateKey string `json:"gate_key"`
		Approve bool   `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed approval decision"})
		return
	}
	if !s.Approvals.Decide(body.GateKey, body.Approve) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such pending approval"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "decided"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
