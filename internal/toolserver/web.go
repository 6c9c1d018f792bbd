package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// searchResult is one web_search hit as returned to the caller: the
// provider's title and url plus the trust tier assigned here.
type searchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Tier  string `json:"tier"` // "trusted" | "reliable" | "general"
}

// webFetchMaxBytes caps a single web_fetch response body (spec §6.2: "500
// KB cap").
const webFetchMaxBytes = 500 * 1024

func (s *Server) domainTier(host string) string {
	if s.cfg.TrustedDomains[host] {
		return "trusted"
	}
	if s.cfg.ReliableDomains[host] {
		return "reliable"
	}
	return "general"
}

// webSearch performs a search and ranks results by domain tier. No
// concrete search backend ships in this module (the spec does not name
// one); this issues the query against a configurable provider endpoint
// expected to return a JSON array of {title,url} and re-ranks the
// response by domain trust tier, which is the behavior spec §6.2 actually
// specifies ("domain-tiered results").
func (s *Server) webSearch(ctx context.Context, args map[string]interface{}) (*ToolResult, error) {
	if !s.webSearchLimiter.Allow() {
		return nil, fmt.Errorf("web_search: hourly rate limit exceeded")
	}
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("web_search: missing query")
	}
	maxResults := 5
	if v, ok := args["max_results"].(float64); ok && v >= 1 && v <= 10 {
		maxResults = int(v)
	}

	raw, err := s.fetchSearchProvider(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("web_search: %w", err)
	}

	var hits []searchResult
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, fmt.Errorf("web_search: decode provider response: %w", err)
	}
	for i := range hits {
		if u, err := url.Parse(hits[i].URL); err == nil {
			hits[i].Tier = s.domainTier(u.Hostname())
		}
	}
	sortByTier(hits)
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	out, err := json.Marshal(hits)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Success: true, Output: string(out)}, nil
}

func sortByTier(hits []searchResult) {
	rank := func(t string) int {
		switch t {
		case "trusted":
			return 0
		case "reliable":
			return 1
		default:
			return 2
		}
	}
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && rank(hits[j].Tier) < rank(hits[j-1].Tier); j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

func (s *Server) fetchSearchProvider(ctx context.Context, query string) ([]byte, error) {
	provider := s.cfg.SearchProviderURL
	if provider == "" {
		provider = "https://searx.local/search"
	}
	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := provider + "?q=" + url.QueryEscape(query) + "&format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBytes))
}

// webFetch retrieves a URL's content, enforcing the allowlisted-domain,
// size, and timeout limits from spec §6.2.
func (s *Server) webFetch(ctx context.Context, args map[string]interface{}) (*ToolResult, error) {
	if !s.webFetchLimiter.Allow() {
		return nil, fmt.Errorf("web_fetch: hourly rate limit exceeded")
	}
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("web_fetch: missing url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: invalid url: %w", err)
	}
	tier := s.domainTier(u.Hostname())
	if tier != "trusted" && tier != "reliable" {
		return nil, fmt.Errorf("web_fetch: domain %q is not in the trusted or reliable tier", u.Hostname())
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return &ToolResult{Success: false, Output: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBytes))
	if err != nil {
		return &ToolResult{Success: false, Output: err.Error()}, nil
	}
	return &ToolResult{Success: true, Output: string(body)}, nil
}
