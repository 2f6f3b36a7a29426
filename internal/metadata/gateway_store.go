package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medrex/medledger/pkg/config"
	"golang.org/x/time/rate"
)

const maxDocumentBytes = 1 << 20

// GatewayStore fetches documents from an HTTP content gateway
type GatewayStore struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// NewGatewayStore creates a content store backed by an HTTP gateway.
// Public gateways throttle aggressively so requests pass a token bucket first.
func NewGatewayStore(cfg *config.MetadataConfig) *GatewayStore {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &GatewayStore{
		baseURL: strings.TrimRight(cfg.GatewayURL, "/"),
		client:  &http.Client{},
		timeout: cfg.FetchTimeoutDuration(),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// URL returns the gateway URL of a content address
func (s *GatewayStore) URL(ref string) string {
	return fmt.Sprintf("%s/ipfs/%s", s.baseURL, url.PathEscape(ref))
}

// Fetch retrieves the JSON document stored under ref
func (s *GatewayStore) Fetch(ctx context.Context, ref string) (json.RawMessage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gateway rate limit: %w", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway returned %d for %s", resp.StatusCode, ref)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("document %s exceeds %d bytes", ref, maxDocumentBytes)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("document %s is not valid JSON", ref)
	}

	return body, nil
}
