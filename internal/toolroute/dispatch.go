package toolroute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// ErrApprovalRequired signals that the Tool Server rejected an execution
// with HTTP 403 pending human approval; the caller should enqueue an
// ApprovalRecord and surface ToolAwaitingConfidence/USER_DENIED handling
// upstream (spec §4.1 step 6, §6.2).
type ErrApprovalRequired struct {
	Record models.ApprovalRecord
}

func (e *ErrApprovalRequired) Error() string {
	return fmt.Sprintf("tool %s requires approval: %s", e.Record.Tool, e.Record.Reason)
}

// LocalDispatcher executes a tool entirely in-process (e.g. embedding_query
// against the engine's own vector registry) without relaying to the Tool
// Server.
type LocalDispatcher func(ctx context.Context, tool string, params map[string]interface{}) (*models.ExecutionResult, error)

// RelayClient calls the Tool Server's JSON-RPC 2.0 endpoint (spec §6.2),
// grounded on the teacher's internal/mcpgw/gateway.go HandleJSONRPC
// dispatcher, viewed from the calling side.
type RelayClient struct {
	Endpoint   string
	HTTPClient *http.Client
	BearerFn   func() string
}

// NewRelayClient constructs a RelayClient with a default timeout.
func NewRelayClient(endpoint string, bearerFn func() string) *RelayClient {
	return &RelayClient{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BearerFn:   bearerFn,
	}
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Call relays a "tools/call" JSON-RPC request to the Tool Server. An HTTP
// 403 response is translated into ErrApprovalRequired rather than a bare
// transport error, so callers can route it into the approval queue.
func (c *RelayClient) Call(ctx context.Context, sessionID, tool string, params map[string]interface{}) (*models.ExecutionResult, error) {
	reqBody := models.RPCRequest{
		Jsonrpc: "2.0",
		Method:  "tools/call",
		Params:  toolCallParams{Name: tool, Arguments: params},
		ID:      uuid.NewString(),
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("relay call: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("relay call: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.BearerFn != nil {
		httpReq.Header.Set("Authorization", "Bearer "+c.BearerFn())
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("relay call %s: %w", tool, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		var record models.ApprovalRecord
		_ = json.NewDecoder(resp.Body).Decode(&record)
		record.Tool = tool
		record.Params = params
		record.SessionID = sessionID
		if record.Status == "" {
			record.Status = "waiting"
		}
		return nil, &ErrApprovalRequired{Record: record}
	}

	var rpcResp models.RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("relay call %s: decode response: %w", tool, err)
	}
	if rpcResp.Error != nil {
		return &models.ExecutionResult{Success: false, Error: rpcResp.Error.Message}, nil
	}

	resultBytes, err := json.Marshal(rpcResp.Result)
	if err != nil {
		return nil, fmt.Errorf("relay call %s: re-marshal result: %w", tool, err)
	}
	var execResult models.ExecutionResult
	if err := json.Unmarshal(resultBytes, &execResult); err != nil {
		return &models.ExecutionResult{Success: true, Output: string(resultBytes)}, nil
	}
	return &execResult, nil
}

// Router owns the local/relay dispatch split and the tool-execution state
// machine transitions around a single invocation.
type Router struct {
	LocalTools map[string]LocalDispatcher
	Relay      *RelayClient
	Gate       *Gate
}

// NewRouter constructs a Router with the default approval gate compiled.
func NewRouter(relay *RelayClient) (*Router, error) {
	gate, err := CompileGate(DefaultApprovalGate)
	if err != nil {
		return nil, err
	}
	return &Router{LocalTools: make(map[string]LocalDispatcher), Relay: relay, Gate: gate}, nil
}

// RegisterLocal wires a tool name to an in-process dispatcher, bypassing
// the Tool Server relay entirely.
func (r *Router) RegisterLocal(tool string, fn LocalDispatcher) {
	r.LocalTools[tool] = fn
}

// Execute advances routing through PENDING -> AWAITING_CONFIDENCE ->
// (APPROVED | SKIPPED) -> (EXECUTED | FAILED | USER_DENIED). Only the moves
// into AWAITING_CONFIDENCE and SKIPPED are checked with
// models.ToolExecutionStatus.CanTransitionTo; the other statuses are
// assigned directly, and a Tool Server approval-required response after
// APPROVED sets USER_DENIED and returns the ErrApprovalRequired.
// The Prime review and composite-confidence gate decide APPROVED vs
// SKIPPED; dispatch to a local tool or the Tool Server decides EXECUTED vs
// FAILED.
func (r *Router) Execute(ctx context.Context, pool ChatCompleter, sessionID, prompt string, routing *models.ToolRouting) error {
	if routing == nil || routing.SelectedTool == nil {
		return nil
	}
	if !routing.ExecutionStatus.CanTransitionTo(models.ToolAwaitingConfidence) {
		return fmt.Errorf("tool routing: illegal transition %s -> AWAITING_CONFIDENCE", routing.ExecutionStatus)
	}
	routing.ExecutionStatus = models.ToolAwaitingConfidence

	approved, reviewConfidence, reasoning, err := Review(ctx, pool, prompt, routing.SelectedTool)
	if err != nil {
		return err
	}
	routing.ReviewConfidence = reviewConfidence
	routing.ReviewReasoning = reasoning

	gateOK, err := r.Gate.Evaluate(routing.SelectedTool.SelectionConfidence, reviewConfidence, approved, ApprovalThreshold)
	if err != nil {
		return err
	}

	if !gateOK {
		if !routing.ExecutionStatus.CanTransitionTo(models.ToolSkipped) {
			return fmt.Errorf("tool routing: illegal transition %s -> SKIPPED", routing.ExecutionStatus)
		}
		routing.ExecutionStatus = models.ToolSkipped
		log.Debug().Str("tool", routing.SelectedTool.Name).Float64("composite",
			CompositeConfidence(routing.SelectedTool.SelectionConfidence, reviewConfidence)).Msg("tool routing skipped: gate not satisfied")
		return nil
	}

	routing.ExecutionStatus = models.ToolApproved

	result, dispatchErr := r.dispatch(ctx, sessionID, routing.SelectedTool.Name, routing.SelectedTool.Params)
	if dispatchErr != nil {
		if approvalErr, ok := dispatchErr.(*ErrApprovalRequired); ok {
			routing.ExecutionStatus = models.ToolUserDenied
			return approvalErr
		}
		routing.ExecutionStatus = models.ToolFailed
		routing.ExecutionResult = &models.ExecutionResult{Success: false, Error: dispatchErr.Error()}
		return nil
	}

	routing.ExecutionStatus = models.ToolExecuted
	routing.ExecutionResult = result
	return nil
}

// dispatch prefers a locally registered tool over relaying to the Tool
// Server, matching the spec's "local dispatch vs relay" split for
// low-latency introspective tools (e.g. embedding_query) versus
// sandboxed/filesystem-touching tools.
func (r *Router) dispatch(ctx context.Context, sessionID, tool string, params map[string]interface{}) (*models.ExecutionResult, error) {
	if fn, ok := r.LocalTools[tool]; ok {
		return fn(ctx, tool, params)
	}
	if r.Relay == nil {
		return nil, fmt.Errorf("dispatch %s: no local handler and no relay configured", tool)
	}
	return r.Relay.Call(ctx, sessionID, tool, params)
}
