package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsefold/cognition-core/internal/modelpool"
	"github.com/synapsefold/cognition-core/internal/sleepwake"
	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// fakeStreamingDriver always streams back a fixed canned response in one
// chunk, standing in for a real backend so the generation path can be
// exercised without a network call.
type fakeStreamingDriver struct {
	content string
}

func (f *fakeStreamingDriver) Kind() models.BackendKind { return models.BackendLocal }
func (f *fakeStreamingDriver) EnsureLoaded(ctx context.Context, cfg models.ModelConfig) error {
	return nil
}
func (f *fakeStreamingDriver) ChatCompletion(ctx context.Context, cfg models.ModelConfig, req *models.RouteRequest) (*models.RouteResponse, error) {
	return &models.RouteResponse{Content: f.content}, nil
}
func (f *fakeStreamingDriver) Shutdown(ctx context.Context, cfg models.ModelConfig) error { return nil }
func (f *fakeStreamingDriver) StreamChatCompletion(ctx context.Context, cfg models.ModelConfig, req *models.RouteRequest, onChunk func(models.StreamChunk) error) error {
	return onChunk(models.StreamChunk{Delta: f.content, Done: true})
}

func newTestPool(content string) *modelpool.Pool {
	pool := modelpool.New()
	pool.RegisterDriver(&fakeStreamingDriver{content: content})
	pool.Configure("gpu_prime", models.ModelConfig{Name: "gpu_prime", Backend: models.BackendLocal})
	pool.SetAlias(models.RolePrime, "gpu_prime")
	pool.SetFallbackChain(models.RolePrime, []string{"gpu_prime"})
	return pool
}

type stubGPU struct{}

func (stubGPU) ReleaseGPU(ctx context.Context) error { return nil }
func (stubGPU) ReclaimGPU(ctx context.Context) error { return nil }

type stubOrchestrator struct{}

func (stubOrchestrator) NotifyGPURelease(ctx context.Context) error { return nil }
func (stubOrchestrator) RequestGPUReclaim(ctx context.Context) error { return nil }
func (stubOrchestrator) WaitGenerationHealthy(ctx context.Context, timeout time.Duration) error {
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(ctx context.Context, event string, fields map[string]interface{}) {}

func newTestPacket(sessionID, prompt string) *models.CognitionPacket {
	return &models.CognitionPacket{
		Header:    models.Header{PacketID: "pkt-1", SessionID: sessionID, Origin: models.OriginUser, Version: "1"},
		Content:   models.Content{OriginalPrompt: prompt},
		CreatedAt: time.Now().UTC(),
	}
}

func TestRun_NoModelPool_DeclinesGracefully(t *testing.T) {
	s := store.NewMemoryStore()
	p := New(Dependencies{Store: s})

	packet := newTestPacket("sess-1", "What's the weather like in the mountains today?")
	out, err := p.Run(context.Background(), packet)

	require.NoError(t, err)
	assert.NotEmpty(t, out.Response.Candidate)
	assert.True(t, out.HasResponse())
}

func TestRun_EmptyPrompt_NeverCrashes(t *testing.T) {
	p := New(Dependencies{Store: store.NewMemoryStore()})
	packet := newTestPacket("sess-2", "")

	out, err := p.Run(context.Background(), packet)

	require.NoError(t, err)
	assert.NotEmpty(t, out.Response.Candidate)
}

func TestRun_SleepingEngine_QueuesAndAcks(t *testing.T) {
	st := store.NewMemoryStore()
	manager := sleepwake.New(stubGPU{}, stubOrchestrator{}, st, noopNotifier{}, sleepwake.NewMemoryQueue())
	require.NoError(t, manager.EnterSleep(context.Background(), "prime resting", "lite resting"))
	require.True(t, manager.IsSleeping())

	p := New(Dependencies{Store: st, SleepWake: manager})
	packet := newTestPacket("sess-3", "Can you check on something for me when you have a moment?")

	out, err := p.Run(context.Background(), packet)

	require.NoError(t, err)
	assert.Contains(t, out.Response.Candidate, "waking up")
}

func TestRun_SuccessfulGeneration_CandidateIsModelOutputNotModelName(t *testing.T) {
	const canned = "The mountains are getting a dusting of fresh snow this week."
	pool := newTestPool(canned)
	p := New(Dependencies{Store: store.NewMemoryStore(), Pool: pool})
	packet := newTestPacket("sess-5", "What's the weather like in the mountains today?")

	out, err := p.Run(context.Background(), packet)

	require.NoError(t, err)
	assert.Contains(t, out.Response.Candidate, canned)
	assert.NotContains(t, out.Response.Candidate, "gpu_prime")
	assert.True(t, strings.HasPrefix(out.Response.Candidate, "[Prime] "))
}

func TestRun_ObserverCaution_AnnotatesUnverifiedCitation(t *testing.T) {
	const canned = "See `missing_file.py` for the implementation."
	pool := newTestPool(canned)
	p := New(Dependencies{Store: store.NewMemoryStore(), Pool: pool})
	packet := newTestPacket("sess-6", "Where is that function defined?")

	out, err := p.Run(context.Background(), packet)

	require.NoError(t, err)
	assert.Contains(t, out.Response.Candidate, canned)
	assert.Contains(t, out.Response.Candidate, "not in retrieved documents")
}

func TestRun_PersistsSessionHistory(t *testing.T) {
	st := store.NewMemoryStore()
	p := New(Dependencies{Store: st})
	packet := newTestPacket("sess-4", "Tell me something interesting about the history of telescopes.")

	_, err := p.Run(context.Background(), packet)
	require.NoError(t, err)

	sess, err := st.GetSession(context.Background(), "sess-4")
	require.NoError(t, err)
	require.NotEmpty(t, sess.History)
	assert.Equal(t, "user", sess.History[0].Role)
}
