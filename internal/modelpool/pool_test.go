package modelpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// fakeStreamingDriver streams a fixed response back in two halves,
// followed by a done chunk.
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
	for _, chunk := range []string{f.content[:len(f.content)/2], f.content[len(f.content)/2:]} {
		if err := onChunk(models.StreamChunk{Delta: chunk}); err != nil {
			return err
		}
	}
	return onChunk(models.StreamChunk{Done: true})
}

// fakeNonStreamingDriver implements only ModelBackendDriver, exercising
// StreamChatCompletion's non-streaming fallback path.
type fakeNonStreamingDriver struct {
	content string
}

func (f *fakeNonStreamingDriver) Kind() models.BackendKind { return models.BackendAPI }
func (f *fakeNonStreamingDriver) EnsureLoaded(ctx context.Context, cfg models.ModelConfig) error {
	return nil
}
func (f *fakeNonStreamingDriver) ChatCompletion(ctx context.Context, cfg models.ModelConfig, req *models.RouteRequest) (*models.RouteResponse, error) {
	return &models.RouteResponse{Content: f.content}, nil
}
func (f *fakeNonStreamingDriver) Shutdown(ctx context.Context, cfg models.ModelConfig) error {
	return nil
}

func TestStreamChatCompletion_ReturnsAccumulatedTextNotModelName(t *testing.T) {
	pool := New()
	pool.RegisterDriver(&fakeStreamingDriver{content: "the cognition engine answered directly"})
	pool.Configure("gpu_prime", models.ModelConfig{Name: "gpu_prime", Backend: models.BackendLocal})
	pool.SetAlias(models.RolePrime, "gpu_prime")
	pool.SetFallbackChain(models.RolePrime, []string{"gpu_prime"})

	var streamed string
	content, err := pool.StreamChatCompletion(context.Background(), models.RolePrime, &models.RouteRequest{
		Messages: []models.ChatMessage{{Role: "user", Content: "hello"}},
	}, func(chunk models.StreamChunk) error {
		streamed += chunk.Delta
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "the cognition engine answered directly", content)
	assert.Equal(t, "the cognition engine answered directly", streamed)
	assert.NotEqual(t, "gpu_prime", content)
}

func TestStreamChatCompletion_NonStreamingDriverFallsBackToChatCompletion(t *testing.T) {
	pool := New()
	pool.RegisterDriver(&fakeNonStreamingDriver{content: "a plain non-streamed reply"})
	pool.Configure("oracle_openai", models.ModelConfig{Name: "oracle_openai", Backend: models.BackendAPI})
	pool.SetAlias(models.RoleLite, "oracle_openai")
	pool.SetFallbackChain(models.RoleLite, []string{"oracle_openai"})

	content, err := pool.StreamChatCompletion(context.Background(), models.RoleLite, &models.RouteRequest{
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	}, func(chunk models.StreamChunk) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, "a plain non-streamed reply", content)
}

func TestAcquireForRole_FallsBackThroughChain(t *testing.T) {
	pool := New()
	pool.RegisterDriver(&fakeNonStreamingDriver{content: "ok"})
	pool.Configure("groq_fallback", models.ModelConfig{Name: "groq_fallback", Backend: models.BackendAPI})
	pool.SetAlias(models.RolePrime, "missing_primary")
	pool.SetFallbackChain(models.RolePrime, []string{"missing_primary", "groq_fallback"})

	name, _, err := pool.AcquireForRole(context.Background(), models.RolePrime)

	require.NoError(t, err)
	assert.Equal(t, "groq_fallback", name)
}
