// Package notify dispatches cognition-core lifecycle events (sleep/wake
// transitions, GPU handoffs, HA failover, loop-detector triggers) to an
// optional webhook sink. Adapted from the teacher's
// internal/notify/service.go WebhookChannelDriver: same HMAC-signed POST
// with retry, trimmed from the teacher's multi-channel/multi-tool
// dispatch surface down to the single sink this spec's event model calls
// for, and generalized from kitchen/recipe/step fields to a free-form
// field map matching contracts.NotificationDispatcher.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Event is the wire payload posted to the webhook sink.
type Event struct {
	Type      string                 `json:"type"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Service implements contracts.NotificationDispatcher over a single
// webhook URL, HMAC-signed when Secret is set.
type Service struct {
	URL    string
	Secret string
	client *http.Client
}

// NewService constructs a webhook-backed dispatcher. URL may be empty, in
// which case Dispatch is a no-op logged at debug level — notifications
// are best-effort observability, never load-bearing for the pipeline.
func NewService(url, secret string) *Service {
	return &Service{URL: url, Secret: secret, client: &http.Client{Timeout: 10 * time.Second}}
}

// Dispatch satisfies contracts.NotificationDispatcher. Failures are
// logged, never returned or retried into the caller's control flow.
func (s *Service) Dispatch(ctx context.Context, event string, fields map[string]interface{}) {
	if s.URL == "" {
		log.Debug().Str("event", event).Msg("notify: no webhook configured, dropping event")
		return
	}

	payload := Event{Type: event, Fields: fields, Timestamp: time.Now().UTC()}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("notify: marshal failed")
		return
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Cognition-Event", event)
		if s.Secret != "" {
			mac := hmac.New(sha256.New, []byte(s.Secret))
			mac.Write(body)
			req.Header.Set("X-Cognition-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook HTTP %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("webhook HTTP %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("notify: webhook dispatch failed")
	}
}
