// Package gatewayclient implements pipeline.OutputRouter: the cognition
// engine's final pipeline step (spec §4.1 step 18) POSTs the completed
// packet to the gateway's /output_router endpoint for dispatch to the
// packet's original destination. Grounded on the teacher's
// internal/notify/service.go best-effort HTTP POST idiom, generalized
// from a webhook event to a full packet payload.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/synapsefold/cognition-core/internal/auth"
	"github.com/synapsefold/cognition-core/pkg/models"
)

// Client posts completed packets to the gateway's output router.
type Client struct {
	GatewayURL    string
	HTTPClient    *http.Client
	ServiceSecret []byte
}

// New constructs a Client.
func New(gatewayURL string, serviceSecret []byte) *Client {
	return &Client{
		GatewayURL:    gatewayURL,
		HTTPClient:    &http.Client{Timeout: 15 * time.Second},
		ServiceSecret: serviceSecret,
	}
}

// Route satisfies pipeline.OutputRouter.
func (c *Client) Route(ctx context.Context, packet *models.CognitionPacket) error {
	body, err := json.Marshal(packet)
	if err != nil {
		return fmt.Errorf("gatewayclient: marshal packet %s: %w", packet.Header.PacketID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GatewayURL+"/output_router", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gatewayclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(c.ServiceSecret) > 0 {
		token, err := auth.GenerateToken(c.ServiceSecret, "engine", "engine", 5*time.Minute)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gatewayclient: output_router post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gatewayclient: output_router returned HTTP %d", resp.StatusCode)
	}
	return nil
}
