package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medrex/medledger/pkg/config"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/monitoring"
	"github.com/medrex/medledger/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockContentStore is a mock implementation of interfaces.ContentStore
type MockContentStore struct {
	mock.Mock
}

func (m *MockContentStore) Fetch(ctx context.Context, ref string) (json.RawMessage, error) {
	args := m.Called(ref)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

// blockingStore holds every fetch until released or its ctx is done
type blockingStore struct {
	calls   atomic.Int32
	release chan struct{}
	doc     json.RawMessage
}

func (s *blockingStore) Fetch(ctx context.Context, ref string) (json.RawMessage, error) {
	s.calls.Add(1)
	select {
	case <-s.release:
		return s.doc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func setupTestResolver(store *MockContentStore) *Resolver {
	return NewResolver(store, &config.MetadataConfig{Concurrency: 4}, logger.NewDiscard(), nil)
}

func TestNormalizeRef(t *testing.T) {
	cases := map[string]string{
		"QmXoypizjW3WknFiJnKLwHCnL72vedxjQkDDP1mXWo6uco":                        "QmXoypizjW3WknFiJnKLwHCnL72vedxjQkDDP1mXWo6uco",
		"ipfs://QmAbc":                                                          "QmAbc",
		"ipfs://ipfs/QmAbc":                                                     "QmAbc",
		"IPFS://QmAbc":                                                          "QmAbc",
		"/ipfs/QmAbc":                                                           "QmAbc",
		"ipfs/QmAbc/":                                                           "QmAbc",
		"https://gateway.pinata.cloud/ipfs/QmAbc?filename=med.json":             "QmAbc",
		"https://ipfs.io/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi#x": "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		"ar://txid123":                                                          "txid123",
		"  QmSpaced  ":                                                          "QmSpaced",
		"":                                                                      "",
	}

	for input, want := range cases {
		assert.Equal(t, want, NormalizeRef(input), "input %q", input)
	}
}

func TestResolver_CachesSuccessfulFetch(t *testing.T) {
	store := &MockContentStore{}
	store.On("Fetch", "QmAspirin").Return(json.RawMessage(`{"name":"Aspirin","description":"Pain relief","manufacturer":"Bayer","dosage":"500mg"}`), nil).Once()
	r := setupTestResolver(store)

	first := r.Resolve(context.Background(), types.EntityMedicine, 1, "ipfs://QmAspirin")
	second := r.Resolve(context.Background(), types.EntityMedicine, 1, "https://ipfs.io/ipfs/QmAspirin")

	assert.Equal(t, "Aspirin", first.Name)
	assert.Equal(t, "Bayer", first.Manufacturer)
	assert.Equal(t, "500mg", first.Extra["dosage"])
	assert.False(t, first.Degraded)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.Cached())
	store.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestResolver_CallersCannotMutateCache(t *testing.T) {
	store := &MockContentStore{}
	store.On("Fetch", "QmA").Return(json.RawMessage(`{"name":"A","tags":"x"}`), nil).Once()
	r := setupTestResolver(store)

	doc := r.Resolve(context.Background(), types.EntityMedicine, 1, "QmA")
	doc.Name = "changed"
	doc.Extra["tags"] = "changed"

	again := r.Resolve(context.Background(), types.EntityMedicine, 1, "QmA")
	assert.Equal(t, "A", again.Name)
	assert.Equal(t, "x", again.Extra["tags"])
}

func TestResolver_DegradesOnFailureWithoutCaching(t *testing.T) {
	cases := map[string]struct {
		raw json.RawMessage
		err error
	}{
		"network error": {nil, errors.New("connection reset")},
		"malformed":     {json.RawMessage(`{"name": `), nil},
		"not an object": {json.RawMessage(`["a"]`), nil},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := &MockContentStore{}
			store.On("Fetch", "QmBroken").Return(tc.raw, tc.err)
			metrics := monitoring.NewMetricsCollector("test")
			r := NewResolver(store, &config.MetadataConfig{Concurrency: 1}, logger.NewDiscard(), metrics)

			doc := r.Resolve(context.Background(), types.EntityDoctor, 7, "QmBroken")
			assert.Equal(t, "Doctor #7", doc.Name)
			assert.Equal(t, UnavailableDescription, doc.Description)
			assert.True(t, doc.Degraded)
			assert.Equal(t, 0, r.Cached())

			r.Resolve(context.Background(), types.EntityDoctor, 7, "QmBroken")
			store.AssertNumberOfCalls(t, "Fetch", 2)

			series, err := testutil.GatherAndCount(metrics.Registry(), "metadata_degraded_total")
			require.NoError(t, err)
			assert.Equal(t, 1, series)
		})
	}
}

func TestResolver_EmptyRefDegradesWithoutFetch(t *testing.T) {
	store := &MockContentStore{}
	r := setupTestResolver(store)

	doc := r.Resolve(context.Background(), types.EntityPatient, 3, "ipfs://")
	assert.Equal(t, "Patient #3", doc.Name)
	assert.True(t, doc.Degraded)
	store.AssertNotCalled(t, "Fetch", mock.Anything)
}

func TestResolver_ConcurrentResolvesShareOneFetch(t *testing.T) {
	store := &blockingStore{release: make(chan struct{}), doc: json.RawMessage(`{"name":"Insulin"}`)}
	r := NewResolver(store, &config.MetadataConfig{Concurrency: 2}, logger.NewDiscard(), nil)

	results := make([]*types.Metadata, 2)
	var wg sync.WaitGroup
	resolve := func(i int) {
		defer wg.Done()
		results[i] = r.Resolve(context.Background(), types.EntityMedicine, 2, "QmInsulin")
	}

	wg.Add(2)
	go resolve(0)
	require.Eventually(t, func() bool { return store.calls.Load() == 1 }, time.Second, time.Millisecond)
	go resolve(1)
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.calls.Load())
	assert.Equal(t, "Insulin", results[0].Name)
	assert.Equal(t, "Insulin", results[1].Name)
}

func TestResolver_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	store := &blockingStore{release: make(chan struct{}), doc: json.RawMessage(`{"name":"Amoxicillin"}`)}
	r := NewResolver(store, &config.MetadataConfig{Concurrency: 2}, logger.NewDiscard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan *types.Metadata, 1)
	go func() { first <- r.Resolve(ctx, types.EntityMedicine, 1, "ipfs://QmAmoxicillin") }()
	require.Eventually(t, func() bool { return store.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan *types.Metadata, 1)
	go func() { second <- r.Resolve(context.Background(), types.EntityMedicine, 1, "QmAmoxicillin") }()

	// the first caller gives up; the fetch it started keeps going
	cancel()
	assert.True(t, (<-first).Degraded)

	close(store.release)
	doc := <-second
	assert.False(t, doc.Degraded)
	assert.Equal(t, "Amoxicillin", doc.Name)
	assert.Equal(t, int32(1), store.calls.Load())
	assert.Equal(t, 1, r.Cached())
}

func TestResolver_ResolveManyKeepsOrder(t *testing.T) {
	store := &MockContentStore{}
	store.On("Fetch", "QmA").Return(json.RawMessage(`{"name":"A"}`), nil)
	store.On("Fetch", "QmB").Return(nil, errors.New("timeout"))
	store.On("Fetch", "QmC").Return(json.RawMessage(`{"name":"C"}`), nil)
	r := setupTestResolver(store)

	docs := r.ResolveMany(context.Background(), []types.MetadataRequest{
		{Kind: types.EntityMedicine, ID: 1, Ref: "QmA"},
		{Kind: types.EntityMedicine, ID: 2, Ref: "QmB"},
		{Kind: types.EntityMedicine, ID: 3, Ref: "QmC"},
	})

	require.Len(t, docs, 3)
	assert.Equal(t, "A", docs[0].Name)
	assert.Equal(t, "Medicine #2", docs[1].Name)
	assert.True(t, docs[1].Degraded)
	assert.Equal(t, "C", docs[2].Name)
}

func TestParse_LenientKnownFields(t *testing.T) {
	doc, err := Parse(json.RawMessage(`{"name":"Dr. Grey","phone":5551234,"specialization":"Surgery","verified":true}`))
	require.NoError(t, err)
	assert.Equal(t, "Dr. Grey", doc.Name)
	assert.Equal(t, "5551234", doc.Phone)
	assert.Equal(t, "Surgery", doc.Specialization)
	assert.Equal(t, true, doc.Extra["verified"])
}
