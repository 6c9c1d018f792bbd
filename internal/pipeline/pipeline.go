// Package pipeline implements the per-turn cognition pipeline (spec §4.1):
// eighteen ordered steps from history review through routing the completed
// packet back to the gateway, composing nearly every other internal
// package. Grounded on the teacher's internal/executor/executor.go agentic
// loop — render prompt, call the model router, act on its output, persist
// the trace — generalized from a single tool-use loop into a full
// cognitive turn with its own safety, loop-detection, and council stages.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/internal/config"
	"github.com/synapsefold/cognition-core/internal/council"
	"github.com/synapsefold/cognition-core/internal/embeddings"
	"github.com/synapsefold/cognition-core/internal/epistemic"
	"github.com/synapsefold/cognition-core/internal/guardrails"
	"github.com/synapsefold/cognition-core/internal/historyreview"
	"github.com/synapsefold/cognition-core/internal/intent"
	"github.com/synapsefold/cognition-core/internal/knowledge"
	"github.com/synapsefold/cognition-core/internal/loopdetect"
	"github.com/synapsefold/cognition-core/internal/modelpool"
	"github.com/synapsefold/cognition-core/internal/observer"
	"github.com/synapsefold/cognition-core/internal/probe"
	"github.com/synapsefold/cognition-core/internal/promptassembly"
	"github.com/synapsefold/cognition-core/internal/sleepwake"
	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/internal/toolroute"
	"github.com/synapsefold/cognition-core/internal/vectorstore"
	"github.com/synapsefold/cognition-core/pkg/contracts"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// ApprovalSink queues a sensitive action pending human review, fed by both
// the tool-routing 403 path and the post-generation safety gate.
type ApprovalSink interface {
	Enqueue(ctx context.Context, record models.ApprovalRecord) error
}

// OutputRouter delivers a completed packet to the gateway's output route
// (spec §4.1 step 18). Left nil in deployments where the synchronous HTTP
// response to /process_packet is the only delivery path.
type OutputRouter interface {
	Route(ctx context.Context, packet *models.CognitionPacket) error
}

// Dependencies bundles everything one cognition turn needs. Every field may
// be nil — a nil dependency degrades its pipeline step rather than failing
// the turn, matching spec §4.1's non-fatal failure semantics (a nil Pool
// yields a fallback reply instead of a generated one; a nil Store skips
// session load and persist).
type Dependencies struct {
	Pool             *modelpool.Pool
	Store            store.Store
	Config           *config.EngineConfig
	SleepWake        *sleepwake.Manager
	VectorReg        *vectorstore.Registry
	EmbedReg         *embeddings.Registry
	ToolRouter       *toolroute.Router
	SafetyGate       *guardrails.SafetyGate
	LoopAgg          *loopdetect.Aggregator
	IntentClassifier *intent.EmbeddingClassifier
	Notifier         contracts.NotificationDispatcher
	ApprovalSink     ApprovalSink
	OutputRouter     OutputRouter
	ToolCatalog      []string
	Identity         string
}

// Pipeline drives one packet through the full cognition turn.
type Pipeline struct {
	deps Dependencies
}

// New constructs a Pipeline from its dependencies.
func New(deps Dependencies) *Pipeline {
	if deps.Identity == "" {
		deps.Identity = "You are the cognition engine for this assistant, reasoning step by step and citing only what you have actually retrieved."
	}
	return &Pipeline{deps: deps}
}

const maxLoopHistory = 5

var executeDirective = regexp.MustCompile(`(?is)EXECUTE:\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*(\{.*?\})?`)

// Run threads packet through the eighteen pipeline steps, mutating it in
// place and returning it. Run only returns a non-nil error for conditions
// the caller must treat as a transport failure (a cancelled context); every
// other failure is absorbed into packet.Response.Candidate so the engine
// itself never crashes a turn (spec §4.1, §7).
func (p *Pipeline) Run(ctx context.Context, packet *models.CognitionPacket) (*models.CognitionPacket, error) {
	if ctx.Err() != nil {
		return packet, ctx.Err()
	}
	if packet.Content.OriginalPrompt == "" {
		packet.Response.Candidate = "I didn't receive any content to respond to."
		return packet, nil
	}
	cfg := p.deps.Config
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}

	sess, isNew, err := p.loadSession(ctx, packet.Header.SessionID)
	if err != nil {
		packet.Response.Candidate = "I couldn't load this conversation's history, so I'm starting fresh."
		sess = &models.Session{ID: packet.Header.SessionID, MaxHistory: 50, CreatedAt: time.Now().UTC()}
		isNew = true
	}

	// Step 1: history review.
	if cfg.HistoryReview.Enabled {
		sess.History = historyreview.Rewrite(sess.History, cfg.HistoryReview.ViolationThreshold)
	}
	var previousPrompt string
	for i := len(sess.History) - 1; i >= 0; i-- {
		if sess.History[i].Role == "user" {
			previousPrompt = sess.History[i].Content
			break
		}
	}

	prompt := packet.Content.OriginalPrompt
	fastPath := probe.ShouldSkip(prompt, previousPrompt)

	// Step 2: semantic probe.
	var probeResult *probe.Result
	if !fastPath && p.deps.EmbedReg != nil && p.deps.EmbedReg.Available() {
		probeResult, err = probe.Run(ctx, probe.Config{
			SimilarityThreshold: cfg.SemanticProbe.SimilarityThreshold,
			MaxPhrases:          cfg.SemanticProbe.MaxPhrases,
			TopKPerPhrase:       cfg.SemanticProbe.TopKPerPhrase,
			MinPhraseLength:     cfg.SemanticProbe.MinPhraseLength,
		}, prompt, p.embedOne, p.collectionLookup, p.collections(sess.ID, cfg), probeCache(sess))
		if err != nil {
			log.Warn().Err(err).Str("session", sess.ID).Msg("pipeline: semantic probe failed, continuing without it")
			probeResult = nil
		}
		if probeResult != nil {
			packet.Metrics.ProbeMillis = probeResult.DurationMillis
			packet.Content.AppendDataField(models.DataField{Key: "semantic_probe_result", Value: probeResult, Type: "probe", Source: "probe"})
		}
	}

	// Step 3: persona / knowledge-base selection.
	persona, kbName := selectPersonaKB(probeResult, prompt, cfg.KnowledgeBases)
	if persona != "" {
		packet.Header.Persona = persona
	}
	if kbName != "" {
		packet.Context.KnowledgeBaseName = kbName
	}

	// Step 4: intent detection cascade.
	var embedVec []float64
	if cfg.EmbedIntent.Enabled && p.deps.EmbedReg != nil && p.deps.EmbedReg.Available() {
		embedVec, _ = p.embedOne(ctx, prompt)
	}
	var intentLLM intent.ChatCompleter
	if p.deps.Pool != nil {
		intentLLM = p.deps.Pool
	}
	intentRes, err := intent.Detect(ctx, p.deps.IntentClassifier, embedVec, intentLLM, prompt)
	if err != nil {
		intentRes = intent.ClassifyWithKeywords(prompt)
	}
	packet.Intent = models.IntentBlock{PrimaryGoal: prompt, DetectedIntent: intentRes.Intent, ReadOnly: intentRes.ReadOnly}

	// Step 5: sleep/wake gate.
	if p.deps.SleepWake != nil && p.deps.SleepWake.IsSleeping() {
		if p.deps.SleepWake.Enqueue(packet) {
			packet.Response.Candidate = "Got it — give me a moment to finish waking up and I'll get back to you."
			p.triggerWake()
			p.persist(ctx, sess, packet, isNew)
			return packet, nil
		}
	}

	// Step 6: tool routing.
	if !intentRes.ReadOnly && p.deps.ToolRouter != nil {
		if blocked := p.routeTool(ctx, packet, sess, prompt); blocked {
			p.persist(ctx, sess, packet, isNew)
			return packet, nil
		}
	}

	// Step 7: council/model selection — Prime when reachable, Lite otherwise.
	// If the tool-routing review step above already borrowed Prime to judge
	// the selection and generation hasn't started yet, promote it straight
	// to final responder instead of re-probing reachability: the review
	// call already proved it's warm and reachable (spec §4.3
	// "Prime-during-reflection promotion").
	role := models.RolePrime
	liteAnswered := false
	borrow := council.ReflectionBorrow{
		PrimeBorrowed:  packet.ToolRouting != nil && packet.ToolRouting.ReviewReasoning != "",
		ReflectionDone: packet.ToolRouting != nil && packet.ToolRouting.ReviewReasoning != "",
	}
	if borrow.ShouldPromotePrime() {
		council.Promote(&role, "", nil)
	} else if p.deps.Pool != nil {
		name, _, acquireErr := p.deps.Pool.AcquireForRole(ctx, models.RolePrime)
		if acquireErr != nil {
			role = models.RoleLite
			liteAnswered = true
		} else {
			p.deps.Pool.Release(name)
		}
	}

	// Step 8: RAG enrichment, deduped by doc_id.
	retrievedDocs := dedupDocIDs(probeResult)
	if !fastPath && len(retrievedDocs) < 2 && p.deps.ToolRouter != nil {
		if doc, ok := p.queryEmbeddings(ctx, packet.Header.SessionID, prompt, kbName); ok {
			retrievedDocs = appendUnique(retrievedDocs, doc)
		}
	}

	// Step 9: knowledge ingestion detection.
	if !fastPath {
		p.handleKnowledgeIngestion(ctx, packet, prompt, kbName, cfg)
	}

	// Step 9a: council-notes wake integration. Notes loaded by the most
	// recent Wake sit in the sleep/wake manager until the next synchronous
	// turn — this is that turn, so pick them up, attach them to the packet
	// exactly once, and make them available to prompt assembly below
	// (spec §4.3 "wake integration").
	if p.deps.SleepWake != nil {
		if notes := p.deps.SleepWake.ConsumeWakeNotes(); len(notes) > 0 {
			for _, f := range council.NotesAsDataFields(notes) {
				packet.Content.AppendDataField(f)
			}
		}
	}
	councilNotes := council.NotesFromDataFields(packet.Content.DataFields)

	// Step 10: prompt assembly.
	toolExecuted := packet.ToolRouting != nil && packet.ToolRouting.ExecutionStatus == models.ToolExecuted
	sysPrompt, messages := promptassembly.Assemble(promptassembly.Input{
		Identity:       p.deps.Identity,
		Persona:        persona,
		ToolCatalog:    p.deps.ToolCatalog,
		ToolExecuted:   toolExecuted,
		WorldState:     packet.Context.WorldStateSnapshot,
		RetrievedDocs:  retrievedDocs,
		Probe:          probeResult,
		OriginalPrompt: prompt,
		CouncilNotes:   councilNotes,
	})
	_ = sysPrompt
	if toolExecuted {
		messages = promptassembly.AppendPrefill(messages)
	}

	// Step 11: generation with the in-stream observer.
	raw, cautionFindings, genErr := p.generate(ctx, packet, role, messages, retrievedDocs)
	if genErr != nil {
		packet.Response.Candidate = "I ran into a problem putting that response together. Could you try rephrasing, or ask again in a moment?"
		p.persist(ctx, sess, packet, isNew)
		return packet, nil
	}

	// Step 12: loop detection.
	p.detectLoops(packet, &sess.LoopState, raw)

	// Step 13: post-generation EXECUTE directive parsing.
	// Step 14: tiered safety gate on each sidecar action.
	p.parseSidecarActions(ctx, packet, raw)

	// Step 15: epistemic post-processing.
	cleaned, err := epistemic.Clean(ctx, raw, prompt, p.completer(role))
	if err != nil {
		cleaned = raw
	}
	if decision := p.applyEpistemicGuardrails(cleaned, cfg); decision != "" {
		cleaned = decision
	}
	cleaned = observer.Annotate(cleaned, cautionFindings)
	packet.Response.Candidate = council.Tag(role, cleaned)

	// Step 16: session persist.
	sess.Persona = persona
	p.persist(ctx, sess, packet, isNew)

	// Step 17: post-response escalation.
	if liteAnswered && p.deps.Store != nil {
		assessment := council.AssessComplexity(prompt, cleaned)
		quickTake := council.QuickTake(cleaned, 280)
		if err := council.WriteEscalationNote(ctx, p.deps.Store, packet.Header.SessionID, prompt, quickTake, assessment); err != nil {
			log.Warn().Err(err).Msg("pipeline: failed to write council escalation note")
		}
	}

	// Step 18: route the completed packet to the gateway.
	if p.deps.OutputRouter != nil {
		if err := p.deps.OutputRouter.Route(ctx, packet); err != nil {
			log.Warn().Err(err).Str("packet_id", packet.Header.PacketID).Msg("pipeline: output routing failed")
		}
	}

	return packet, nil
}

func (p *Pipeline) loadSession(ctx context.Context, sessionID string) (*models.Session, bool, error) {
	if p.deps.Store == nil {
		return &models.Session{ID: sessionID, MaxHistory: 50, CreatedAt: time.Now().UTC()}, true, nil
	}
	sess, err := p.deps.Store.GetSession(ctx, sessionID)
	if err == nil {
		return sess, false, nil
	}
	var notFound *store.ErrNotFound
	if errors.As(err, &notFound) {
		return &models.Session{ID: sessionID, MaxHistory: 50, CreatedAt: time.Now().UTC()}, true, nil
	}
	return nil, false, err
}

func (p *Pipeline) persist(ctx context.Context, sess *models.Session, packet *models.CognitionPacket, isNew bool) {
	if p.deps.Store == nil {
		return
	}
	sess.AppendMessage(models.Message{Role: "user", Content: packet.Content.OriginalPrompt, Timestamp: time.Now().UTC()})
	if packet.HasResponse() {
		sess.AppendMessage(models.Message{Role: "assistant", Content: packet.Response.Candidate, Timestamp: time.Now().UTC()})
	}
	var err error
	if isNew {
		err = p.deps.Store.CreateSession(ctx, sess)
	} else {
		err = p.deps.Store.UpdateSession(ctx, sess)
	}
	if err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("pipeline: failed to persist session")
	}
}

func (p *Pipeline) triggerWake() {
	if p.deps.SleepWake == nil {
		return
	}
	go func() {
		if _, err := p.deps.SleepWake.Wake(context.Background()); err != nil {
			log.Warn().Err(err).Msg("pipeline: wake trigger failed")
		}
	}()
}

// routeTool runs tool selection, Prime review, the composite-confidence
// gate, and dispatch. Returns blocked=true when the turn must short-circuit
// with an acknowledgment (approval queued) rather than proceed to
// generation.
func (p *Pipeline) routeTool(ctx context.Context, packet *models.CognitionPacket, sess *models.Session, prompt string) bool {
	selection, alternatives, err := toolroute.Select(ctx, p.deps.Pool, prompt, p.deps.ToolCatalog)
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: tool selection failed, continuing without a tool")
		return false
	}
	if selection == nil {
		return false
	}

	routing := &models.ToolRouting{
		NeedsTool:        true,
		SelectedTool:     selection,
		AlternativeTools: alternatives,
		ExecutionStatus:  models.ToolPending,
		MaxReinjections:  models.DefaultMaxReinjections,
	}
	packet.ToolRouting = routing

	if routing.ReinjectionCount > routing.MaxReinjections {
		routing.ExecutionStatus = models.ToolSkipped
		return false
	}

	err = p.deps.ToolRouter.Execute(ctx, p.deps.Pool, packet.Header.SessionID, prompt, routing)
	if err == nil {
		return false
	}

	var approvalErr *toolroute.ErrApprovalRequired
	if errors.As(err, &approvalErr) {
		if p.deps.ApprovalSink != nil {
			if enqErr := p.deps.ApprovalSink.Enqueue(ctx, approvalErr.Record); enqErr != nil {
				log.Warn().Err(enqErr).Msg("pipeline: failed to enqueue approval record")
			}
		}
		packet.Response.Candidate = fmt.Sprintf("That action (%s) needs your approval first — I've queued it for review.", approvalErr.Record.Tool)
		return true
	}

	log.Warn().Err(err).Str("tool", selection.Name).Msg("pipeline: tool execution reported an unexpected error")
	return false
}

// generate streams a response through the in-stream observer, returning
// the generated text alongside every CAUTION finding raised along the way
// so the caller can bracket them onto the user-facing response (spec §7).
func (p *Pipeline) generate(ctx context.Context, packet *models.CognitionPacket, role models.Role, messages []models.ChatMessage, retrievedDocs []string) (string, []observer.Finding, error) {
	if p.deps.Pool == nil {
		return "", nil, fmt.Errorf("pipeline: no model pool configured")
	}
	obs := observer.New(nil)
	var buf strings.Builder
	var cautionFindings []observer.Finding

	content, err := p.deps.Pool.StreamChatCompletion(ctx, role, &models.RouteRequest{
		Role:        role,
		Messages:    messages,
		Temperature: 0.7,
		TopP:        0.95,
		MaxTokens:   1536,
		Stream:      true,
	}, func(chunk models.StreamChunk) error {
		buf.WriteString(chunk.Delta)
		verdict, findings := obs.Check(ctx, buf.String(), retrievedDocs)
		switch verdict {
		case observer.VerdictBlock:
			packet.Reasoning.ReflectionLog = append(packet.Reasoning.ReflectionLog, observer.AsReflectionEntry(verdict, findings))
			return fmt.Errorf("observer: generation blocked mid-stream")
		case observer.VerdictCaution:
			packet.Reasoning.ReflectionLog = append(packet.Reasoning.ReflectionLog, observer.AsReflectionEntry(verdict, findings))
			cautionFindings = append(cautionFindings, findings...)
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return content, cautionFindings, nil
}

func (p *Pipeline) detectLoops(packet *models.CognitionPacket, state *models.LoopDetectorState, output string) {
	if p.deps.LoopAgg == nil {
		return
	}
	var toolCall, toolError string
	if packet.ToolRouting != nil && packet.ToolRouting.SelectedTool != nil {
		toolCall = packet.ToolRouting.SelectedTool.Name
	}
	if packet.ToolRouting != nil && packet.ToolRouting.ExecutionResult != nil && !packet.ToolRouting.ExecutionResult.Success {
		toolError = packet.ToolRouting.ExecutionResult.Error
	}
	state.RecentOutputs = appendTrim(state.RecentOutputs, output, maxLoopHistory)
	if toolCall != "" {
		state.RecentToolCalls = appendTrim(state.RecentToolCalls, toolCall, maxLoopHistory)
	}
	if toolError != "" {
		state.RecentErrors = appendTrim(state.RecentErrors, toolError, maxLoopHistory)
	}

	signals := []*loopdetect.Signal{
		loopdetect.ToolCallRepetition(state.RecentToolCalls, state.RecentErrors),
		loopdetect.OutputSimilarity(state.RecentOutputs),
		loopdetect.ErrorCycle(state.RecentErrors),
		loopdetect.TokenPattern(output),
	}
	verdict, err := p.deps.LoopAgg.Evaluate(signals)
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: loop aggregator evaluation failed")
		return
	}
	warn, hint := loopdetect.Advance(state, verdict)
	if warn {
		packet.Reasoning.ReflectionLog = append(packet.Reasoning.ReflectionLog, models.ReflectionLogEntry{
			Step:       "loop_detect",
			Summary:    "possible " + state.LastPattern + " pattern, warning only",
			Confidence: 0.5,
		})
	}
	if hint != nil {
		state.LastTriggeredAt = time.Now().UTC()
		packet.LoopState = &models.LoopStateBlock{ResetCount: state.ResetCount, PreviousAttempts: append([]string(nil), state.RecentOutputs...)}
		packet.Content.AppendDataField(models.DataField{Key: "loop_recovery_hint", Value: hint.Text, Type: "loop_hint", Source: "loopdetect"})
	}
}

func (p *Pipeline) parseSidecarActions(ctx context.Context, packet *models.CognitionPacket, response string) {
	matches := executeDirective.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return
	}
	seen := make(map[string]bool)
	for _, m := range matches {
		tool := m[1]
		if seen[tool] {
			continue // duplicate EXECUTE directive for an already-handled tool is dropped
		}
		seen[tool] = true

		var params map[string]interface{}
		if len(m) > 2 && m[2] != "" {
			_ = json.Unmarshal([]byte(m[2]), &params)
		}
		action := models.SidecarAction{Tool: tool, Params: params, Raw: strings.TrimSpace(m[0])}

		decision := guardrails.GateApprovalQueued
		if p.deps.SafetyGate != nil {
			decision = p.deps.SafetyGate.Evaluate(action, "")
		}
		if decision == guardrails.GatePass {
			packet.Response.SidecarActions = append(packet.Response.SidecarActions, action)
			continue
		}
		if p.deps.ApprovalSink != nil {
			record := models.ApprovalRecord{
				Tool:      tool,
				Params:    params,
				SessionID: packet.Header.SessionID,
				Status:    "waiting",
				Reason:    "sidecar action requires approval",
			}
			if err := p.deps.ApprovalSink.Enqueue(ctx, record); err != nil {
				log.Warn().Err(err).Str("tool", tool).Msg("pipeline: failed to enqueue sidecar approval")
			}
		}
	}
}

func (p *Pipeline) applyEpistemicGuardrails(text string, cfg *config.EngineConfig) string {
	if !cfg.Epistemic.Enabled || len(cfg.Epistemic.BlockedPatterns) == 0 {
		return ""
	}
	var rules []guardrails.Rule
	for _, pattern := range cfg.Epistemic.BlockedPatterns {
		rules = append(rules, guardrails.Rule{Kind: guardrails.KindRegexFilter, RegexPattern: pattern, BlockOnMatch: true})
	}
	eval := guardrails.Evaluate(rules, text)
	if eval.Passed {
		return ""
	}
	return "I can't share that response as generated — it matched a content restriction. Could you ask in a different way?"
}

func (p *Pipeline) completer(role models.Role) epistemic.Completer {
	return func(ctx context.Context, prompt string, temperature float64) (string, error) {
		if p.deps.Pool == nil {
			return "", fmt.Errorf("pipeline: no model pool configured")
		}
		resp, err := p.deps.Pool.ChatCompletion(ctx, role, &models.RouteRequest{
			Role:        role,
			Messages:    []models.ChatMessage{{Role: "user", Content: prompt}},
			Temperature: temperature,
			MaxTokens:   512,
		})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
}

func (p *Pipeline) embedOne(ctx context.Context, text string) ([]float64, error) {
	if p.deps.EmbedReg == nil {
		return nil, fmt.Errorf("pipeline: no embedding registry configured")
	}
	driver, err := p.deps.EmbedReg.Primary()
	if err != nil {
		return nil, err
	}
	return embeddings.EmbedOne(ctx, driver, text)
}

func (p *Pipeline) collectionLookup(name string) (contracts.VectorIndex, bool) {
	if p.deps.VectorReg == nil {
		return nil, false
	}
	idx, err := p.deps.VectorReg.Get(name)
	if err != nil {
		return nil, false
	}
	return idx, true
}

func (p *Pipeline) collections(sessionID string, cfg *config.EngineConfig) []string {
	collections := []string{sessionID}
	for _, kb := range cfg.KnowledgeBases {
		if kb.VectorIndex != "" {
			collections = append(collections, kb.VectorIndex)
		}
	}
	return collections
}

func (p *Pipeline) queryEmbeddings(ctx context.Context, sessionID, prompt, kbName string) (string, bool) {
	params := map[string]interface{}{"query": prompt, "collection": kbName}
	var result *models.ExecutionResult
	var err error
	if fn, ok := p.deps.ToolRouter.LocalTools["embedding_query"]; ok {
		result, err = fn(ctx, "embedding_query", params)
	} else if p.deps.ToolRouter.Relay != nil {
		result, err = p.deps.ToolRouter.Relay.Call(ctx, sessionID, "embedding_query", params)
	} else {
		return "", false
	}
	if err != nil || result == nil || !result.Success || result.Output == "" {
		return "", false
	}
	return result.Output, true
}

func (p *Pipeline) handleKnowledgeIngestion(ctx context.Context, packet *models.CognitionPacket, prompt, kbName string, cfg *config.EngineConfig) {
	activeSet := make(map[string]bool, len(cfg.KnowledgeBases))
	for name := range cfg.KnowledgeBases {
		activeSet[name] = true
	}
	decision := knowledge.Detect(prompt, kbName, knowledge.AutoDetectConfig{
		MinLength:        200,
		MinEntityDensity: 2.0,
		ActiveKBSet:      activeSet,
	})
	if !decision.ShouldIngest || p.deps.VectorReg == nil {
		if decision.ShouldIngest {
			packet.Content.AppendDataField(models.DataField{Key: "knowledge_offer", Value: knowledge.OfferToSaveHint, Type: "hint", Source: "knowledge"})
		}
		return
	}
	target := kbName
	if target == "" {
		target = packet.Header.SessionID
	}
	idx, err := p.deps.VectorReg.Get(target)
	if err != nil {
		return
	}
	isDup, err := knowledge.IsNearDuplicate(ctx, p.embedOne, idx, prompt)
	if err != nil || isDup {
		return
	}
	if !decision.Explicit {
		packet.Content.AppendDataField(models.DataField{Key: "knowledge_offer", Value: knowledge.OfferToSaveHint, Type: "hint", Source: "knowledge"})
		return
	}
	meta := map[string]string{"category": decision.Category}
	if err := knowledge.WriteAndEmbed(ctx, p.embedOne, idx, uuid.NewString(), prompt, meta); err != nil {
		log.Warn().Err(err).Msg("pipeline: knowledge write_and_embed failed")
		return
	}
	packet.Content.AppendDataField(models.DataField{Key: "knowledge_ingested", Value: decision.Category, Type: "knowledge", Source: "knowledge"})
}

func selectPersonaKB(result *probe.Result, prompt string, kbs map[string]config.KnowledgeBase) (persona, kbName string) {
	if result != nil && result.PrimaryCollection != "" {
		for name, kb := range kbs {
			if kb.VectorIndex == result.PrimaryCollection {
				return kb.Persona, name
			}
		}
	}
	lower := strings.ToLower(prompt)
	for name, kb := range kbs {
		for _, kw := range kb.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return kb.Persona, name
			}
		}
	}
	return "", ""
}

func dedupDocIDs(result *probe.Result) []string {
	if result == nil {
		return nil
	}
	seen := make(map[string]bool, len(result.Hits))
	var out []string
	for _, h := range result.Hits {
		if h.DocID == "" || seen[h.DocID] {
			continue
		}
		seen[h.DocID] = true
		out = append(out, h.DocID)
	}
	return out
}

func appendUnique(docs []string, doc string) []string {
	for _, d := range docs {
		if d == doc {
			return docs
		}
	}
	return append(docs, doc)
}

func appendTrim(items []string, item string, maxLen int) []string {
	items = append(items, item)
	if len(items) > maxLen {
		items = items[len(items)-maxLen:]
	}
	return items
}

func probeCache(sess *models.Session) map[string]bool {
	cache := make(map[string]bool, len(sess.ProbeCache))
	for _, e := range sess.ProbeCache {
		cache[strings.ToLower(e.Phrase)] = true
	}
	return cache
}
