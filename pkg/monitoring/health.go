package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus represents the health status of a dependency
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

const defaultCheckTimeout = 5 * time.Second

// HealthCheck is the result of checking one dependency
type HealthCheck struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	LatencyMS int64                  `json:"latency_ms"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthReport is served on /health. Checks are sorted by name.
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Service   string        `json:"service"`
	Version   string        `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []HealthCheck `json:"checks"`
}

// HealthChecker checks a single dependency
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
}

// HealthManager runs the registered checkers for the health endpoint
type HealthManager struct {
	serviceName    string
	serviceVersion string
	timeout        time.Duration

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a new health manager
func NewHealthManager(serviceName, serviceVersion string) *HealthManager {
	return &HealthManager{
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
		timeout:        defaultCheckTimeout,
		checkers:       make(map[string]HealthChecker),
	}
}

// RegisterChecker registers a checker under name, replacing any previous one
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// CheckHealth runs every checker concurrently, each bounded by the check
// timeout. The report is unhealthy when any check is, degraded when any
// check is degraded.
func (hm *HealthManager) CheckHealth(ctx context.Context) *HealthReport {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	checkers := make([]HealthChecker, len(names))
	sort.Strings(names)
	for i, name := range names {
		checkers[i] = hm.checkers[name]
	}
	hm.mu.RUnlock()

	checks := make([]HealthCheck, len(names))
	var g errgroup.Group
	for i := range checkers {
		i := i
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, hm.timeout)
			defer cancel()

			start := time.Now()
			check := checkers[i].Check(checkCtx)
			check.Name = names[i]
			check.LatencyMS = time.Since(start).Milliseconds()
			checks[i] = check
			return nil
		})
	}
	_ = g.Wait()

	report := &HealthReport{
		Status:    HealthStatusHealthy,
		Service:   hm.serviceName,
		Version:   hm.serviceVersion,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
	for _, check := range checks {
		switch check.Status {
		case HealthStatusUnhealthy:
			report.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if report.Status == HealthStatusHealthy {
				report.Status = HealthStatusDegraded
			}
		}
	}
	return report
}

// HTTPHandler serves the health report. Only an unhealthy report answers 503;
// a degraded gateway still serves reads with synthesized metadata.
func (hm *HealthManager) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.CheckHealth(r.Context())

		status := http.StatusOK
		if report.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// ChainSource reports the chain id of a ledger node
type ChainSource interface {
	ChainID(ctx context.Context) (uint64, error)
}

// LedgerHealthChecker checks that the ledger node answers and serves the
// configured chain
type LedgerHealthChecker struct {
	source        ChainSource
	expectedChain uint64
	slowThreshold time.Duration
}

// NewLedgerHealthChecker creates a ledger checker; expectedChain 0 skips the identity check
func NewLedgerHealthChecker(source ChainSource, expectedChain uint64) *LedgerHealthChecker {
	return &LedgerHealthChecker{
		source:        source,
		expectedChain: expectedChain,
		slowThreshold: 2 * time.Second,
	}
}

// Check asks the node for its chain id
func (c *LedgerHealthChecker) Check(ctx context.Context) HealthCheck {
	details := map[string]interface{}{}
	if c.expectedChain != 0 {
		details["expected_chain"] = c.expectedChain
	}

	start := time.Now()
	chainID, err := c.source.ChainID(ctx)
	elapsed := time.Since(start)
	if err != nil {
		return HealthCheck{
			Status:  HealthStatusUnhealthy,
			Message: fmt.Sprintf("ledger node unreachable: %v", err),
			Details: details,
		}
	}
	details["chain_id"] = chainID

	check := HealthCheck{Status: HealthStatusHealthy, Details: details}
	switch {
	case c.expectedChain != 0 && chainID != c.expectedChain:
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("ledger node is on chain %d, expected %d", chainID, c.expectedChain)
	case elapsed > c.slowThreshold:
		check.Status = HealthStatusDegraded
		check.Message = "ledger node responding slowly"
	}
	return check
}

// MetadataGatewayChecker checks that the content gateway answers. Metadata
// outages only degrade the service since reads fall back to synthesized records.
type MetadataGatewayChecker struct {
	url    string
	client *http.Client
}

// NewMetadataGatewayChecker creates a checker for the gateway at url
func NewMetadataGatewayChecker(url string, timeout time.Duration) *MetadataGatewayChecker {
	return &MetadataGatewayChecker{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Check sends a HEAD request to the gateway. Any answer below 500 counts as
// reachable; gateways commonly refuse requests for their root.
func (c *MetadataGatewayChecker) Check(ctx context.Context) HealthCheck {
	details := map[string]interface{}{"url": c.url}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return HealthCheck{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("invalid gateway url: %v", err),
			Details: details,
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return HealthCheck{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("metadata gateway unreachable: %v", err),
			Details: details,
		}
	}
	resp.Body.Close()
	details["status_code"] = resp.StatusCode

	if resp.StatusCode >= http.StatusInternalServerError {
		return HealthCheck{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("metadata gateway returned %d", resp.StatusCode),
			Details: details,
		}
	}
	return HealthCheck{Status: HealthStatusHealthy, Details: details}
}
