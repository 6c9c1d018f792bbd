// Package gateway implements the external-ingress gateway (spec §4.7,
// §4.8): retry-with-failover calls to the cognition engine (primary ->
// HA standby), a sleep-aware inbound message queue, and the
// /output_router endpoint the engine posts completed packets back to.
// Grounded on the teacher's internal/router/router.go retry/fallback
// chain idiom, narrowed from "pick among N provider drivers" to "retry
// one URL, then fall back to exactly one other."
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// retryableStatus reports whether an HTTP status code is one of the
// retryable 5xx codes named in spec §4.7 (502/503/504). Other 5xx codes
// are not explicitly named and are treated as non-retryable to match the
// spec's narrow list rather than a blanket ">=500" rule.
func retryableStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

// isTimeout reports whether err is a timeout — spec §4.7: "Do not retry
// or fallback on TimeoutException ... Timeout means the service is alive
// but slow; failover won't help." Checked before the generic connect-error
// classification since a timeout also satisfies net.Error.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// RetryResult carries the response body and which URL ultimately served
// the request, so callers can log/trace whether failover occurred.
type RetryResult struct {
	Body       []byte
	StatusCode int
	ServedBy   string // "primary" or "fallback"
}

// PostWithRetry implements spec §4.7's post_with_retry: retry the primary
// with exponential backoff on retryable errors, make exactly one attempt
// against fallbackURL if retries exhaust (skipped entirely when
// maintenanceOn), and never touch fallbackURL on a timeout or 4xx from
// the primary.
func PostWithRetry(ctx context.Context, client *http.Client, primaryURL, fallbackURL string, body []byte, maintenanceOn bool) (*RetryResult, error) {
	result, primaryErr := tryOnce(ctx, client, primaryURL, body, true)
	if primaryErr == nil {
		return result, nil
	}

	if _, ok := primaryErr.(*nonRetryableErr); ok {
		return nil, primaryErr
	}

	if maintenanceOn {
		log.Warn().Str("url", primaryURL).Err(primaryErr).Msg("gateway: primary exhausted, maintenance mode blocks fallback")
		return nil, primaryErr
	}
	if fallbackURL == "" {
		return nil, primaryErr
	}

	log.Warn().Str("primary", primaryURL).Str("fallback", fallbackURL).Err(primaryErr).Msg("gateway: primary exhausted, attempting fallback once")
	fallbackResult, fallbackErr := tryOnce(ctx, client, fallbackURL, body, false)
	if fallbackErr != nil {
		log.Error().Err(fallbackErr).Msg("gateway: fallback also failed, surfacing original primary error")
		return nil, primaryErr
	}
	fallbackResult.ServedBy = "fallback"
	return fallbackResult, nil
}

// nonRetryableErr wraps a timeout or 4xx so PostWithRetry can distinguish
// "retries exhausted, try fallback" from "never fall back for this one".
type nonRetryableErr struct{ err error }

func (e *nonRetryableErr) Error() string { return e.err.Error() }
func (e *nonRetryableErr) Unwrap() error { return e.err }

// tryOnce performs the request, retrying with exponential backoff when
// withRetry is true and the error is retryable.
func tryOnce(ctx context.Context, client *http.Client, url string, body []byte, withRetry bool) (*RetryResult, error) {
	var result RetryResult

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytesReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			if isTimeout(err) {
				return backoff.Permanent(&nonRetryableErr{err: fmt.Errorf("%s: timeout: %w", url, err)})
			}
			return fmt.Errorf("%s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(&nonRetryableErr{err: fmt.Errorf("%s: HTTP %d", url, resp.StatusCode)})
		}
		if retryableStatus(resp.StatusCode) {
			return fmt.Errorf("%s: retryable HTTP %d", url, resp.StatusCode)
		}
		if resp.StatusCode >= 500 {
			return backoff.Permanent(fmt.Errorf("%s: HTTP %d", url, resp.StatusCode))
		}

		result.StatusCode = resp.StatusCode
		result.ServedBy = "primary"
		result.Body, err = readAll(resp)
		return err
	}

	var policy backoff.BackOff
	if withRetry {
		eb := backoff.NewExponentialBackOff()
		eb.MaxInterval = 5 * time.Second
		policy = backoff.WithMaxRetries(eb, 3)
	} else {
		policy = backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 0)
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return &result, nil
}
