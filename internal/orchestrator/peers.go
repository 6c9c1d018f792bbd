package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/synapsefold/cognition-core/internal/auth"
)

// HTTPPeerNotifier implements PeerNotifier over plain HTTP calls to the
// cognition engine's /gpu/release and /gpu/reclaim endpoints (spec §6.1)
// and the training service's /study/gpu-ready and /study/gpu-release
// endpoints (spec §4.5, §6 scope note — training-loop internals are out
// of scope, but its handoff-readiness endpoints are this spec's contract
// with it).
type HTTPPeerNotifier struct {
	EngineURL       string
	TrainServiceURL string
	HTTPClient      *http.Client
	ServiceSecret   []byte
}

// NewHTTPPeerNotifier constructs an HTTPPeerNotifier.
func NewHTTPPeerNotifier(engineURL, trainServiceURL string, serviceSecret []byte) *HTTPPeerNotifier {
	return &HTTPPeerNotifier{
		EngineURL:       engineURL,
		TrainServiceURL: trainServiceURL,
		HTTPClient:      &http.Client{Timeout: 15 * time.Second},
		ServiceSecret:   serviceSecret,
	}
}

func (n *HTTPPeerNotifier) post(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(n.ServiceSecret) > 0 {
		token, err := auth.GenerateToken(n.ServiceSecret, "orchestrator", "orchestrator", 5*time.Minute)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: HTTP %d", url, resp.StatusCode)
	}
	return nil
}

func (n *HTTPPeerNotifier) NotifyEngineGPURelease(ctx context.Context) error {
	return n.post(ctx, n.EngineURL+"/gpu/release")
}

func (n *HTTPPeerNotifier) NotifyEngineGPUReclaim(ctx context.Context) error {
	return n.post(ctx, n.EngineURL+"/gpu/reclaim")
}

func (n *HTTPPeerNotifier) NotifyTrainStudyReady(ctx context.Context) error {
	return n.post(ctx, n.TrainServiceURL+"/study/gpu-ready")
}

func (n *HTTPPeerNotifier) NotifyTrainStudyRelease(ctx context.Context) error {
	return n.post(ctx, n.TrainServiceURL+"/study/gpu-release")
}
