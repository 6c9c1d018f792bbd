package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// MaintenanceChecker reports whether the HA maintenance sentinel is
// present, satisfied by *maintenance.Flag.
type MaintenanceChecker interface {
	On() bool
}

// EngineClient posts packets to the cognition engine's /process_packet
// endpoint with retry-then-fallback (spec §4.7).
type EngineClient struct {
	PrimaryURL  string
	FallbackURL string
	HTTPClient  *http.Client
	Maintenance MaintenanceChecker
}

// NewEngineClient constructs an EngineClient.
func NewEngineClient(primaryURL, fallbackURL string, maintenance MaintenanceChecker) *EngineClient {
	return &EngineClient{
		PrimaryURL:  primaryURL,
		FallbackURL: fallbackURL,
		HTTPClient:  &http.Client{Timeout: 45 * time.Second},
		Maintenance: maintenance,
	}
}

// ProcessPacket POSTs packet to the engine's /process_packet, falling
// back to the HA standby per spec §4.7's rules.
func (c *EngineClient) ProcessPacket(ctx context.Context, packet *models.CognitionPacket) (*models.CognitionPacket, error) {
	body, err := json.Marshal(packet)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal packet: %w", err)
	}

	maintenanceOn := c.Maintenance != nil && c.Maintenance.On()
	result, err := PostWithRetry(ctx, c.HTTPClient, c.PrimaryURL+"/process_packet", c.FallbackURL+"/process_packet", body, maintenanceOn)
	if err != nil {
		return nil, fmt.Errorf("gateway: process_packet: %w", err)
	}

	var out models.CognitionPacket
	if err := json.Unmarshal(result.Body, &out); err != nil {
		return nil, fmt.Errorf("gateway: decode process_packet response: %w", err)
	}
	return &out, nil
}

// SleepStatus polls the engine's /sleep/status endpoint directly (no
// retry/fallback — this is a cheap poll used by the sleep-aware queue,
// not a user-facing turn).
func (c *EngineClient) SleepStatus(ctx context.Context, url string) (*models.SleepStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/sleep/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var status models.SleepStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}
