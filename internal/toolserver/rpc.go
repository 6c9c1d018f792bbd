package toolserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	apimw "github.com/synapsefold/cognition-core/internal/api/middleware"
	"github.com/synapsefold/cognition-core/pkg/contracts"
	"github.com/synapsefold/cognition-core/pkg/models"
)

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// HandleJSONRPC processes a single JSON-RPC 2.0 request, the Tool
// Server's sole entry point (spec §6.2). tools/call is the only method a
// caller exercises in this module; ping is also answered, carried over
// from the teacher's discovery handshake. Any other method gets a -32601
// "method not found" error.
func (s *Server) HandleJSONRPC(ctx context.Context, req *models.RPCRequest) *models.RPCResponse {
	switch req.Method {
	case "ping":
		return &models.RPCResponse{Jsonrpc: "2.0", Result: map[string]string{"status": "pong"}, ID: req.ID}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return &models.RPCResponse{
			Jsonrpc: "2.0",
			Error:   &models.RPCError{Code: -32601, Message: "method not found", Data: req.Method},
			ID:      req.ID,
		}
	}
}

// sensitiveAndPending reports whether tool requires approval and the
// caller has not yet supplied the post-approval resubmission flag.
func sensitiveAndPending(tool string, args map[string]interface{}) bool {
	if !SensitiveTools[tool] {
		return false
	}
	allow, _ := args["_allow_pending"].(bool)
	return !allow
}

func (s *Server) handleToolsCall(ctx context.Context, req *models.RPCRequest) *models.RPCResponse {
	paramsRaw, err := json.Marshal(req.Params)
	if err != nil {
		return &models.RPCResponse{Jsonrpc: "2.0", Error: &models.RPCError{Code: -32602, Message: "invalid params"}, ID: req.ID}
	}
	var params toolCallParams
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return &models.RPCResponse{Jsonrpc: "2.0", Error: &models.RPCError{Code: -32602, Message: "invalid params", Data: err.Error()}, ID: req.ID}
	}

	handler, ok := s.handlers[params.Name]
	if !ok {
		return &models.RPCResponse{
			Jsonrpc: "2.0",
			Error:   &models.RPCError{Code: -32001, Message: "tool not found", Data: params.Name},
			ID:      req.ID,
		}
	}

	if sensitiveAndPending(params.Name, params.Arguments) {
		// Signaled to the HTTP layer via a sentinel error the handler
		// translates into a 403 carrying an ApprovalRecord.
		return &models.RPCResponse{
			Jsonrpc: "2.0",
			Error:   &models.RPCError{Code: approvalRequiredCode, Message: "approval required", Data: params.Name},
			ID:      req.ID,
		}
	}

	start := time.Now()
	result, err := handler(ctx, params.Arguments)
	duration := time.Since(start).Seconds()
	if err != nil {
		return &models.RPCResponse{
			Jsonrpc: "2.0",
			Result: models.ExecutionResult{
				Success:  false,
				Error:    err.Error(),
				Duration: duration,
			},
			ID: req.ID,
		}
	}
	return &models.RPCResponse{
		Jsonrpc: "2.0",
		Result: models.ExecutionResult{
			Success:  result.Success,
			Output:   result.Output,
			Duration: duration,
		},
		ID: req.ID,
	}
}

// approvalRequiredCode is a private JSON-RPC error code the HTTP layer
// recognizes to translate into a 403, mirroring the calling side's
// toolroute.ErrApprovalRequired contract.
const approvalRequiredCode = -32010

// NewRouter builds the Tool Server's HTTP surface: a single POST /rpc
// JSON-RPC entry point plus /health.
func NewRouter(s *Server, authChain contracts.AuthProvider) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(apimw.Logger)
	r.Use(apimw.Telemetry)
	if authChain != nil {
		r.Use(apimw.Auth(authChain))
	}
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"POST", "GET"}}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Post("/rpc", s.handleHTTP)
	return r
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.RPCResponse{
			Jsonrpc: "2.0",
			Error:   &models.RPCError{Code: -32700, Message: "parse error", Data: err.Error()},
		})
		return
	}

	resp := s.HandleJSONRPC(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if resp.Error != nil && resp.Error.Code == approvalRequiredCode {
		tool, _ := resp.Error.Data.(string)
		record := models.ApprovalRecord{
			GateKey: tool,
			Tool:    tool,
			Status:  "waiting",
			Reason:  "sensitive tool requires approval before first execution",
		}
		log.Info().Str("tool", tool).Msg("toolserver: rejecting sensitive tool call pending approval")
		writeJSON(w, http.StatusForbidden, record)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
