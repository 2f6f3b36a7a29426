package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medrex/medledger/pkg/config"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

func setupTestGatewayStore(t *testing.T, handler http.HandlerFunc, cfg config.MetadataConfig) *GatewayStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.GatewayURL = server.URL + "/"
	return NewGatewayStore(&cfg)
}

func TestGatewayStore_Fetch(t *testing.T) {
	var path atomic.Value
	store := setupTestGatewayStore(t, func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Aspirin"}`))
	}, config.MetadataConfig{FetchTimeout: 5})

	raw, err := store.Fetch(context.Background(), "QmAspirin")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Aspirin"}`, string(raw))
	assert.Equal(t, "/ipfs/QmAspirin", path.Load())
}

func TestGatewayStore_Failures(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		store := setupTestGatewayStore(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}, config.MetadataConfig{FetchTimeout: 5})
		_, err := store.Fetch(context.Background(), "QmMissing")
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		store := setupTestGatewayStore(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>rate limited</html>`))
		}, config.MetadataConfig{FetchTimeout: 5})
		_, err := store.Fetch(context.Background(), "QmHTML")
		assert.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		store := setupTestGatewayStore(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}, config.MetadataConfig{})
		store.timeout = 50 * time.Millisecond
		defer close(release)

		_, err := store.Fetch(context.Background(), "QmSlow")
		assert.Error(t, err)
	})
}

func TestGatewayStore_RateLimitRespectsContext(t *testing.T) {
	store := setupTestGatewayStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, config.MetadataConfig{FetchTimeout: 5, RatePerSec: 0.001, Burst: 1})

	_, err := store.Fetch(context.Background(), "QmFirst")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.Fetch(ctx, "QmSecond")
	assert.Error(t, err)
}

func openMemMirror(t *testing.T, upstream *MockContentStore) *MirrorStore {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	m := NewMirrorStore(db, upstream, logger.NewDiscard())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMirrorStore_ServesMirroredDocuments(t *testing.T) {
	upstream := &MockContentStore{}
	upstream.On("Fetch", "QmDoc").Return(json.RawMessage(`{"name":"Doc"}`), nil).Once()
	mirror := openMemMirror(t, upstream)

	assert.False(t, mirror.Has("QmDoc"))

	raw, err := mirror.Fetch(context.Background(), "QmDoc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Doc"}`, string(raw))
	assert.True(t, mirror.Has("QmDoc"))

	raw, err = mirror.Fetch(context.Background(), "QmDoc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Doc"}`, string(raw))
	upstream.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestMirrorStore_UpstreamFailureNotMirrored(t *testing.T) {
	upstream := &MockContentStore{}
	upstream.On("Fetch", "QmGone").Return(nil, errors.New("gateway timeout"))
	mirror := openMemMirror(t, upstream)

	_, err := mirror.Fetch(context.Background(), "QmGone")
	assert.Error(t, err)
	assert.False(t, mirror.Has("QmGone"))
}
