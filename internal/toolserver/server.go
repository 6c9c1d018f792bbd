// Package toolserver implements the Tool Server: a single JSON-RPC 2.0
// entry point executing capability calls on behalf of the cognition
// engine — allowlisted file I/O, a sandboxed shell, embedding
// query/ingest, domain-tiered web search/fetch, and read-only log
// introspection (spec §6.2). Grounded on the teacher's
// internal/mcpgw/gateway.go HandleJSONRPC dispatcher, viewed from the
// serving side rather than the calling side internal/toolroute already
// covers.
package toolserver

import (
	"context"
	"time"

	"github.com/synapsefold/cognition-core/pkg/contracts"
)

// SensitiveTools names tools whose first invocation must be rejected
// with HTTP 403 pending human approval, unless the caller's params carry
// `_allow_pending: true` (spec §4.1 step 6: "route through an approval
// queue with _allow_pending=True").
var SensitiveTools = map[string]bool{
	"write_file": true,
	"run_shell":  true,
}

// Config collects every tunable the Tool Server's handlers need.
type Config struct {
	// FileRoots is the allowlist of directories read_file/write_file may
	// resolve into after realpath resolution.
	FileRoots []string

	// ShellWhitelist is the set of first-token commands run_shell permits
	// when shell=True.
	ShellWhitelist map[string]bool
	// ShellTimeout bounds run_shell's execution.
	ShellTimeout time.Duration

	// TrustedDomains and ReliableDomains are the two allowlist tiers
	// web_fetch may retrieve from; web_search ranks results by tier.
	TrustedDomains  map[string]bool
	ReliableDomains map[string]bool
	// SearchProviderURL is the backing search API web_search queries.
	SearchProviderURL string

	// LogDir is the root directory introspect_logs reads service logs
	// from (one file per service name).
	LogDir string

	Embedding contracts.EmbeddingDriver
	Index     contracts.VectorIndex
}

// Server holds the Tool Server's runtime state: configuration, rate
// limiters, and the registered tool handlers.
type Server struct {
	cfg Config

	webSearchLimiter *HourlyLimiter
	webFetchLimiter  *HourlyLimiter

	handlers map[string]ToolHandler
}

// ToolHandler executes one named tool against its JSON-RPC arguments.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (*ToolResult, error)

// ToolResult is the outcome of a tool handler, translated into the
// models.ExecutionResult shape by the RPC layer.
type ToolResult struct {
	Success bool
	Output  string
}

// New constructs a Server and registers every tool from spec §6.2.
func New(cfg Config) *Server {
	s := &Server{
		cfg:              cfg,
		webSearchLimiter: NewHourlyLimiter(20),
		webFetchLimiter:  NewHourlyLimiter(50),
		handlers:         make(map[string]ToolHandler),
	}
	s.handlers["read_file"] = s.readFile
	s.handlers["write_file"] = s.writeFile
	s.handlers["run_shell"] = s.runShell
	s.handlers["embedding_query"] = s.embeddingQuery
	s.handlers["embed_documents"] = s.embedDocuments
	s.handlers["web_search"] = s.webSearch
	s.handlers["web_fetch"] = s.webFetch
	s.handlers["introspect_logs"] = s.introspectLogs
	return s
}
