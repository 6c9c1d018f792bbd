package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalDriver calls a locally hosted sentence-transformer embedding server
// (e.g. a small HTTP wrapper around sentence-transformers) — the "local" /
// "sentence-transformer" backend kind from spec §4.2, used for the
// semantic probe and RAG enrichment without a cloud round trip.
type LocalDriver struct {
	endpoint   string
	dimensions int
	client     *http.Client
}

// NewLocalDriver creates a local sentence-transformer embedding driver.
func NewLocalDriver(endpoint string, dimensions int) *LocalDriver {
	return &LocalDriver{
		endpoint:   endpoint,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (d *LocalDriver) Kind() string    { return "sentence-transformer" }
func (d *LocalDriver) Dimensions() int { return d.dimensions }

type localEmbedRequest struct {
	Texts []string `json:"texts"`
}

type localEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed posts a batch of texts to the local embedding server.
func (d *LocalDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(localEmbedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local embed request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local embedding server returned %d: %s", resp.StatusCode, string(raw))
	}
	var result localEmbedResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return result.Embeddings, nil
}
