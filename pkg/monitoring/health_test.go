package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	id    uint64
	err   error
	delay time.Duration
}

func (f fakeChain) ChainID(ctx context.Context) (uint64, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.id, f.err
}

func TestLedgerHealthChecker(t *testing.T) {
	t.Run("healthy on the expected chain", func(t *testing.T) {
		check := NewLedgerHealthChecker(fakeChain{id: 1337}, 1337).Check(context.Background())
		assert.Equal(t, HealthStatusHealthy, check.Status)
		assert.Equal(t, uint64(1337), check.Details["chain_id"])
		assert.Equal(t, uint64(1337), check.Details["expected_chain"])
	})

	t.Run("wrong chain is unhealthy", func(t *testing.T) {
		check := NewLedgerHealthChecker(fakeChain{id: 1}, 1337).Check(context.Background())
		assert.Equal(t, HealthStatusUnhealthy, check.Status)
		assert.Contains(t, check.Message, "chain 1, expected 1337")
	})

	t.Run("unreachable node", func(t *testing.T) {
		check := NewLedgerHealthChecker(fakeChain{err: errors.New("connection refused")}, 0).Check(context.Background())
		assert.Equal(t, HealthStatusUnhealthy, check.Status)
		assert.NotContains(t, check.Details, "chain_id")
	})

	t.Run("slow node is degraded", func(t *testing.T) {
		c := NewLedgerHealthChecker(fakeChain{id: 5, delay: 5 * time.Millisecond}, 0)
		c.slowThreshold = time.Millisecond
		assert.Equal(t, HealthStatusDegraded, c.Check(context.Background()).Status)
	})
}

func TestMetadataGatewayChecker(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := NewMetadataGatewayChecker(srv.URL, time.Second)

	// a gateway refusing its root is still reachable
	check := c.Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, check.Status)
	assert.Equal(t, http.StatusNotFound, check.Details["status_code"])
	assert.Equal(t, srv.URL, check.Details["url"])

	status.Store(http.StatusBadGateway)
	assert.Equal(t, HealthStatusDegraded, c.Check(context.Background()).Status)

	srv.Close()
	check = c.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, check.Status)
	assert.Contains(t, check.Message, "unreachable")
}

func TestHealthManager_HTTPHandler(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer gateway.Close()

	hm := NewHealthManager("medledger-test", "0.0.1")
	hm.RegisterChecker("metadata_gateway", NewMetadataGatewayChecker(gateway.URL, time.Second))
	hm.RegisterChecker("ledger", NewLedgerHealthChecker(fakeChain{id: 1337}, 1337))

	rec := httptest.NewRecorder()
	hm.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, HealthStatusDegraded, report.Status)
	assert.Equal(t, "medledger-test", report.Service)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "ledger", report.Checks[0].Name)
	assert.Equal(t, "metadata_gateway", report.Checks[1].Name)

	// a wrong chain takes the whole service down
	hm.RegisterChecker("ledger", NewLedgerHealthChecker(fakeChain{id: 1}, 1337))
	rec = httptest.NewRecorder()
	hm.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
