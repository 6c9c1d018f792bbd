package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/internal/checkpoint"
	"github.com/synapsefold/cognition-core/internal/maintenance"
	"github.com/synapsefold/cognition-core/internal/store"
	"github.com/synapsefold/cognition-core/internal/telemetry"
	"github.com/synapsefold/cognition-core/pkg/contracts"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// ServicePair is one watchdog target: a live instance and its HA standby
// candidate (spec §4.6). Only the cognition engine has state worth
// syncing; other services' CandidateHealthURL may be left empty, in which
// case HA classification degenerates to a simple up/down check against
// the live URL alone.
type ServicePair struct {
	Name               string
	LiveHealthURL      string
	CandidateHealthURL string
}

// Watchdog polls every target's /health contract on a fixed interval,
// tracks consecutive failures per target, classifies HA state, and
// (when eligible) runs one-way session sync from live to candidate.
// Grounded on the teacher's internal/retention/janitor.go
// context-cancellation-aware ticker loop.
type Watchdog struct {
	mu       sync.Mutex
	pairs    []ServicePair
	failures map[string]int // keyed by pair name + ":live"

	client      *http.Client
	notifier    contracts.NotificationDispatcher
	maintenance *maintenance.Flag

	// LiveStore/CandidateStore back the engine's session-sync pair. Left
	// nil disables sync (e.g. a deployment with no HA standby configured).
	LiveStore      store.Store
	CandidateStore store.Store
	SyncPairName   string // which ServicePair.Name triggers sync, normally "cognition-engine"

	PollInterval time.Duration
}

// NewWatchdog constructs a Watchdog with the spec's default 30s poll
// interval (spec §4.6).
func NewWatchdog(pairs []ServicePair, notifier contracts.NotificationDispatcher, flag *maintenance.Flag) *Watchdog {
	return &Watchdog{
		pairs:        pairs,
		failures:     make(map[string]int),
		client:       &http.Client{Timeout: 5 * time.Second},
		notifier:     notifier,
		maintenance:  flag,
		PollInterval: 30 * time.Second,
		SyncPairName: "cognition-engine",
	}
}

// Run polls forever until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PollOnce(ctx)
		}
	}
}

func (w *Watchdog) checkHealth(ctx context.Context, url string) (bool, models.ServiceHealthStatus) {
	if url == "" {
		return true, models.HealthHealthy // no URL configured: treat as n/a-healthy, don't poison the pair
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, models.HealthError
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false, models.HealthError
	}
	defer resp.Body.Close()
	var body struct {
		Status models.ServiceHealthStatus `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		return false, models.HealthError
	}
	if body.Status == "" {
		body.Status = models.HealthHealthy
	}
	return body.Status == models.HealthHealthy, body.Status
}

// PollOnce runs a single watchdog cycle over every configured pair and
// returns the resulting service snapshot for /status.
func (w *Watchdog) PollOnce(ctx context.Context) []models.ServiceTarget {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []models.ServiceTarget
	for _, pair := range w.pairs {
		liveHealthy, liveStatus := w.checkHealth(ctx, pair.LiveHealthURL)
		candidateHealthy, _ := w.checkHealth(ctx, pair.CandidateHealthURL)

		if liveHealthy {
			w.failures[pair.Name+":live"] = 0
		} else {
			w.failures[pair.Name+":live"]++
		}

		ha := classifyHA(liveHealthy, candidateHealthy, pair.CandidateHealthURL != "")
		telemetry.ConsecFailures.WithLabelValues(pair.Name).Set(float64(w.failures[pair.Name+":live"]))
		telemetry.HAState.WithLabelValues(pair.Name).Set(telemetry.HAStateValue(string(ha)))

		target := models.ServiceTarget{
			Name:           pair.Name,
			Healthy:        liveHealthy,
			ConsecFailures: w.failures[pair.Name+":live"],
			HAStatus:       ha,
			LastChecked:    time.Now().UTC(),
			LastStatus:     liveStatus,
		}
		out = append(out, target)

		if ha == models.HADegraded || ha == models.HAFailed {
			w.warn(ctx, pair.Name, ha)
		}

		if ha == models.HAActive && pair.Name == w.SyncPairName {
			if w.maintenance != nil && w.maintenance.On() {
				log.Debug().Str("service", pair.Name).Msg("orchestrator: ha sync skipped, maintenance mode on")
			} else if err := w.SyncOnce(ctx); err != nil {
				log.Warn().Err(err).Str("service", pair.Name).Msg("orchestrator: ha session sync failed")
			}
		}
	}
	return out
}

// classifyHA implements the spec §4.6 HA state table. hasCandidate is
// false for services with no configured standby, in which case we never
// report degraded/failover — there is nothing to fail over to.
func classifyHA(liveHealthy, candidateHealthy, hasCandidate bool) models.HAState {
	if !hasCandidate {
		if liveHealthy {
			return models.HAActive
		}
		return models.HAFailed
	}
	switch {
	case liveHealthy && candidateHealthy:
		return models.HAActive
	case liveHealthy && !candidateHealthy:
		return models.HADegraded
	case !liveHealthy && candidateHealthy:
		return models.HAFailoverActive
	default:
		return models.HAFailed
	}
}

func (w *Watchdog) warn(ctx context.Context, service string, ha models.HAState) {
	log.Warn().Str("service", service).Str("ha_state", string(ha)).Msg("orchestrator: ha degraded or failed")
	if w.notifier != nil {
		w.notifier.Dispatch(ctx, "ha_state_warning", map[string]interface{}{"service": service, "ha_state": string(ha)})
	}
	if w.LiveStore != nil {
		narrative := "Noticed " + service + " running " + string(ha) + " during routine health checks."
		_ = checkpoint.AppendObservation(ctx, w.LiveStore, "prime", narrative)
	}
}

// SyncOnce replicates every session and the prime and lite checkpoints
// one-way from LiveStore to CandidateStore, copying them through the Store
// interface rather than the filesystem. Session vector indexes and council
// notes are not copied.
func (w *Watchdog) SyncOnce(ctx context.Context) error {
	if w.LiveStore == nil || w.CandidateStore == nil {
		return nil
	}

	sessions, err := w.LiveStore.ListSessions(ctx)
	if err != nil {
		return err
	}
	for i := range sessions {
		sess := sessions[i]
		if _, err := w.CandidateStore.GetSession(ctx, sess.ID); err != nil {
			if _, ok := err.(*store.ErrNotFound); ok {
				if err := w.CandidateStore.CreateSession(ctx, &sess); err != nil {
					return err
				}
				continue
			}
			return err
		}
		if err := w.CandidateStore.UpdateSession(ctx, &sess); err != nil {
			return err
		}
	}

	for _, model := range []string{"prime", "lite"} {
		ckpt, err := w.LiveStore.ReadCheckpoint(ctx, model)
		if err != nil {
			if _, ok := err.(*store.ErrNotFound); ok {
				continue
			}
			return err
		}
		if err := w.CandidateStore.WriteCheckpoint(ctx, ckpt); err != nil {
			return err
		}
	}

	return nil
}
