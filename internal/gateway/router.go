package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apimw "github.com/synapsefold/cognition-core/internal/api/middleware"
	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/pkg/contracts"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// DestinationDispatcher delivers a completed packet's response.candidate
// to its original source destination (Discord channel, web socket, CLI
// stdout...). The Discord bot surface and web/chat gateway UI are out of
// scope (spec §1); this interface is the narrow hook those external
// collaborators implement. The default LoggingDispatcher stands in for
// them, matching the spec's framing of these as "external collaborators
// with minimal interface contracts."
type DestinationDispatcher interface {
	Dispatch(packet *models.CognitionPacket) error
}

// LoggingDispatcher logs the delivery instead of reaching an external
// surface — the default when no real destination adapter is wired in.
type LoggingDispatcher struct{}

func (LoggingDispatcher) Dispatch(packet *models.CognitionPacket) error {
	log.Info().
		Str("packet_id", packet.Header.PacketID).
		Str("destination", packet.Header.OutputPrimary).
		Str("candidate_preview", preview(packet.Response.Candidate, 120)).
		Msg("gateway: dispatched response to destination")
	return nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Server exposes the gateway's HTTP surface: inbound message ingress and
// the /output_router endpoint the engine posts completed packets to.
type Server struct {
	Engine      *EngineClient
	Poller      *SleepAwarePoller
	Dispatcher  DestinationDispatcher
	Store       store.PacketArchiveStore
	AuthChain   contracts.AuthProvider
}

// NewRouter builds the chi router, same middleware chain order as every
// other service binary (spec-wide convention, see DESIGN.md).
func NewRouter(s *Server) http.Handler {
	if s.Dispatcher == nil {
		s.Dispatcher = LoggingDispatcher{}
	}
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
	r.Post("/message", s.handleInboundMessage)
	r.Post("/output_router", s.handleOutputRouter)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// inboundMessage is the minimal shape an upstream surface (chat UI, CLI,
// an external bot adapter) posts to construct a Cognition Packet.
type inboundMessage struct {
	SessionID     string `json:"session_id"`
	Persona       string `json:"persona"`
	Prompt        string `json:"prompt"`
	Destination   string `json:"destination"`
}

func (s *Server) handleInboundMessage(w http.ResponseWriter, r *http.Request) {
	var msg inboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed inbound message"})
		return
	}
	if msg.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty prompt"})
		return
	}

	packet := &models.CognitionPacket{
		Header: models.Header{
			PacketID:      uuid.NewString(),
			SessionID:     msg.SessionID,
			Persona:       msg.Persona,
			Origin:        models.OriginUser,
			OutputPrimary: msg.Destination,
			Version:       "1",
		},
		Content:   models.Content{OriginalPrompt: msg.Prompt},
		CreatedAt: time.Now().UTC(),
	}

	ctx := r.Context()
	state := s.Poller.WaitForAwake(ctx, msg.Destination)
	if state != models.StateAwake {
		log.Info().Str("session_id", msg.SessionID).Msg("gateway: engine still not awake after max wait, attempting anyway")
	}

	result, err := s.Engine.ProcessPacket(ctx, packet)
	if err != nil {
		log.Error().Err(err).Str("session_id", msg.SessionID).Msg("gateway: process_packet failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "I encountered an issue handling that."})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOutputRouter(w http.ResponseWriter, r *http.Request) {
	var packet models.CognitionPacket
	if err := json.NewDecoder(r.Body).Decode(&packet); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed packet"})
		return
	}

	ctx := r.Context()
	if s.Store != nil {
		alreadyDelivered, err := s.Store.MarkDelivered(ctx, packet.Header.PacketID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if alreadyDelivered {
			// spec §8: re-posting the same completed packet is an
			// idempotent delivery, not an error or a second dispatch.
			writeJSON(w, http.StatusOK, map[string]string{"status": "already_delivered"})
			return
		}
	}

	if !packet.HasResponse() {
		log.Warn().Str("packet_id", packet.Header.PacketID).Msg("gateway: output_router received packet with empty candidate, dropping")
		writeJSON(w, http.StatusOK, map[string]string{"status": "dropped_empty"})
		return
	}

	if err := s.Dispatcher.Dispatch(&packet); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
