// Package orchestratorclient is the cognition engine's outbound client to
// the orchestrator service (spec §4.4, §4.5, §6.3): it satisfies
// sleepwake.Manager's narrow OrchestratorClient dependency by turning
// ENTERING_SLEEP/WAKING transitions into orchestrator handoff calls and
// generation-backend health polls. Grounded on the teacher's
// internal/router/router.go HTTP-client-with-retry idiom, narrowed to the
// three calls the sleep/wake manager needs.
package orchestratorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/internal/auth"
)

// Client calls the orchestrator and the generation backend directly.
type Client struct {
	OrchestratorURL string
	GenBackendURL   string
	HTTPClient      *http.Client
	ServiceSecret   []byte // HMAC secret for service-account tokens, empty disables signing
}

// New constructs a Client.
func New(orchestratorURL, genBackendURL string, serviceSecret []byte) *Client {
	return &Client{
		OrchestratorURL: orchestratorURL,
		GenBackendURL:   genBackendURL,
		HTTPClient:      &http.Client{Timeout: 15 * time.Second},
		ServiceSecret:   serviceSecret,
	}
}

func (c *Client) bearer() string {
	if len(c.ServiceSecret) == 0 {
		return ""
	}
	token, err := auth.GenerateToken(c.ServiceSecret, "engine", "engine", 5*time.Minute)
	if err != nil {
		log.Warn().Err(err).Msg("orchestratorclient: failed to sign service token")
		return ""
	}
	return token
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.OrchestratorURL+path, bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("orchestratorclient: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("orchestratorclient: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("orchestratorclient: %s: 409 state machine conflict", path)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("orchestratorclient: %s: HTTP %d", path, resp.StatusCode)
	}
	return nil
}

// NotifyGPURelease requests the Core -> Study handoff (spec §4.5) when the
// engine is entering sleep and no longer needs the GPU.
func (c *Client) NotifyGPURelease(ctx context.Context) error {
	return c.post(ctx, "/handoff/prime-to-study")
}

// RequestGPUReclaim requests the Study -> Core handoff (spec §4.5) on wake.
func (c *Client) RequestGPUReclaim(ctx context.Context) error {
	return c.post(ctx, "/handoff/study-to-prime")
}

// WaitGenerationHealthy polls the generation backend's /health endpoint
// until it reports healthy or timeout elapses (spec §4.4 WAKING step 1).
func (c *Client) WaitGenerationHealthy(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	op := func() error {
		req, err := http.NewRequestWithContext(waitCtx, http.MethodGet, c.GenBackendURL+"/health", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		var body struct {
			Status string `json:"status"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if resp.StatusCode != http.StatusOK || body.Status != "healthy" {
			return fmt.Errorf("generation backend not healthy yet: %s", body.Status)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = 5 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(policy, waitCtx)); err != nil {
		return fmt.Errorf("orchestratorclient: generation backend did not become healthy within %s: %w", timeout, err)
	}
	return nil
}
