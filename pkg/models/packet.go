// Package models defines the shared data types that flow between the
// gateway, cognition engine, orchestrator, and tool server.
package models

import "time"

// Origin describes who produced a packet.
type Origin string

const (
	OriginUser       Origin = "user"
	OriginSystem     Origin = "system"
	OriginAutonomous Origin = "autonomous"
)

// Intent is the closed set of detected user intents.
type Intent string

const (
	IntentChat           Intent = "chat"
	IntentRecite         Intent = "recite"
	IntentFileRead       Intent = "file_read"
	IntentFileWrite      Intent = "file_write"
	IntentShell          Intent = "shell"
	IntentSearch         Intent = "search"
	IntentKnowledgeSave  Intent = "knowledge_save"
	IntentKnowledgeUpdate Intent = "knowledge_update"
	IntentIntrospect     Intent = "introspect"
	IntentReflection     Intent = "reflection"
	IntentOther          Intent = "other"
)

// ToolExecutionStatus is the tool-execution state machine (spec §3.2).
type ToolExecutionStatus string

const (
	ToolPending             ToolExecutionStatus = "PENDING"
	ToolAwaitingConfidence  ToolExecutionStatus = "AWAITING_CONFIDENCE"
	ToolApproved            ToolExecutionStatus = "APPROVED"
	ToolExecuted            ToolExecutionStatus = "EXECUTED"
	ToolFailed              ToolExecutionStatus = "FAILED"
	ToolSkipped             ToolExecutionStatus = "SKIPPED"
	ToolUserDenied          ToolExecutionStatus = "USER_DENIED"
)

// CanTransitionTo enforces the legal edges of the tool-execution state
// machine. EXECUTED is terminal and sticky: nothing transitions out of it.
func (s ToolExecutionStatus) CanTransitionTo(next ToolExecutionStatus) bool {
	switch s {
	case ToolExecuted, ToolFailed, ToolSkipped, ToolUserDenied:
		return false
	case ToolPending:
		return next == ToolAwaitingConfidence || next == ToolSkipped
	case ToolAwaitingConfidence:
		return next == ToolApproved || next == ToolSkipped || next == ToolUserDenied
	case ToolApproved:
		return next == ToolExecuted || next == ToolFailed
	default:
		return false
	}
}

// DataField is an extensible, order-preserving slot on the packet for
// RAG hits, probe results, tool results, and system hints. Back-references
// (e.g. a reflection_log entry citing a sketchpad slot) are by Key lookup,
// never by pointer, to avoid graph cycles in the wire representation.
type DataField struct {
	Key    string      `json:"key"`
	Value  interface{} `json:"value"`
	Type   string      `json:"type"`
	Source string      `json:"source"`
}

// ReflectionLogEntry is one append-only step in the reasoning trace.
type ReflectionLogEntry struct {
	Step       string  `json:"step"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// ToolSelection is the structured output of the tool selector prompt.
type ToolSelection struct {
	Name                string                 `json:"name"`
	Params              map[string]interface{} `json:"params"`
	SelectionReasoning  string                 `json:"selection_reasoning"`
	SelectionConfidence float64                `json:"selection_confidence"`
}

// ExecutionResult captures the outcome of a tool invocation.
type ExecutionResult struct {
	Success  bool    `json:"success"`
	Output   string  `json:"output,omitempty"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration_seconds"`
}

// ToolRouting is the optional tool-execution sub-envelope on a packet.
type ToolRouting struct {
	NeedsTool         bool                `json:"needs_tool"`
	SelectedTool      *ToolSelection      `json:"selected_tool,omitempty"`
	AlternativeTools  []ToolSelection     `json:"alternative_tools,omitempty"`
	ReviewConfidence  float64             `json:"review_confidence"`
	ReviewReasoning   string              `json:"review_reasoning"`
	ExecutionStatus   ToolExecutionStatus `json:"execution_status"`
	ExecutionResult   *ExecutionResult    `json:"execution_result,omitempty"`
	ReinjectionCount  int                 `json:"reinjection_count"`
	MaxReinjections   int                 `json:"max_reinjections"`
}

// DefaultMaxReinjections is the spec default for tool_routing.max_reinjections.
const DefaultMaxReinjections = 3

// SidecarAction is a parsed post-generation EXECUTE directive.
type SidecarAction struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
	Raw    string                 `json:"raw"`
}

// Header carries packet identity and routing metadata. packet_id is set
// once on creation and must never be mutated afterward.
type Header struct {
	PacketID      string   `json:"packet_id"`
	SessionID     string   `json:"session_id"`
	Persona       string   `json:"persona"`
	Origin        Origin   `json:"origin"`
	OutputPrimary string   `json:"output_primary"`
	OutputFanOut  []string `json:"output_fan_out,omitempty"`
	Version       string   `json:"version"`
}

// Content holds the immutable prompt and the extensible data-field slot.
type Content struct {
	OriginalPrompt      string      `json:"original_prompt"`
	DataFields          []DataField `json:"data_fields,omitempty"`
	ChatHistoryRef      string      `json:"chat_history_reference,omitempty"`
}

// AppendDataField preserves insertion order, per the packet invariant.
func (c *Content) AppendDataField(f DataField) {
	c.DataFields = append(c.DataFields, f)
}

// IntentBlock is the packet's intent sub-envelope.
type IntentBlock struct {
	PrimaryGoal     string `json:"primary_goal"`
	DetectedIntent  Intent `json:"detected_intent"`
	ReadOnly        bool   `json:"read_only"`
}

// ContextBlock carries the filtered tool catalog and world-state snapshot.
type ContextBlock struct {
	AvailableTools    []string               `json:"available_tools,omitempty"`
	KnowledgeBaseName string                 `json:"knowledge_base_name,omitempty"`
	WorldStateSnapshot map[string]interface{} `json:"world_state_snapshot,omitempty"`
}

// ReasoningBlock holds the append-only reflection log and named sketchpad
// slots used as lookup targets for reflection_log back-references.
type ReasoningBlock struct {
	ReflectionLog []ReflectionLogEntry `json:"reflection_log,omitempty"`
	Sketchpad     map[string]string    `json:"sketchpad,omitempty"`
}

// ResponseBlock is the final user-visible output plus any sidecar actions.
type ResponseBlock struct {
	Candidate      string          `json:"candidate"`
	SidecarActions []SidecarAction `json:"sidecar_actions,omitempty"`
}

// MetricsBlock carries token counts, probe metrics, and step timings.
type MetricsBlock struct {
	PromptTokens     int                `json:"prompt_tokens"`
	CompletionTokens int                `json:"completion_tokens"`
	ProbeMillis      float64            `json:"probe_millis"`
	StepTimings      map[string]float64 `json:"step_timings,omitempty"`
}

// LoopStateBlock is the optional loop-detector carryover on the packet.
type LoopStateBlock struct {
	ResetCount        int      `json:"reset_count"`
	PreviousAttempts  []string `json:"previous_attempts,omitempty"`
}

// CognitionPacket is the central envelope exchanged between the gateway
// and the cognition engine, and mutated only by the engine pipeline.
type CognitionPacket struct {
	Header    Header          `json:"header"`
	Content   Content         `json:"content"`
	Intent    IntentBlock     `json:"intent"`
	Context   ContextBlock    `json:"context"`
	Reasoning ReasoningBlock  `json:"reasoning"`
	ToolRouting *ToolRouting  `json:"tool_routing,omitempty"`
	Response  ResponseBlock   `json:"response"`
	Metrics   MetricsBlock    `json:"metrics"`
	LoopState *LoopStateBlock `json:"loop_state,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasResponse reports whether the packet carries a non-empty candidate.
// Per the packet invariant, an engine must never emit the packet
// downstream while this is false.
func (p *CognitionPacket) HasResponse() bool {
	return p.Response.Candidate != ""
}
