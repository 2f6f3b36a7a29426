package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/medrex/medledger/pkg/config"
	"github.com/medrex/medledger/pkg/interfaces"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/monitoring"
	"github.com/medrex/medledger/pkg/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// UnavailableDescription is the description of synthesized records
const UnavailableDescription = "details unavailable"

var knownFields = map[string]bool{
	"name": true, "description": true, "image": true, "category": true, "manufacturer": true,
	"specialization": true, "qualification": true, "email": true, "phone": true,
}

// Resolver fetches off-chain documents by content address and caches them.
// Content at an address never changes, so cached entries never expire.
type Resolver struct {
	store       interfaces.ContentStore
	logger      *logger.Logger
	metrics     *monitoring.MetricsCollector
	concurrency int
	timeout     time.Duration

	mu    sync.RWMutex
	cache map[string]*types.Metadata
	group singleflight.Group
}

// NewResolver creates a new metadata resolver
func NewResolver(store interfaces.ContentStore, cfg *config.MetadataConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) *Resolver {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Resolver{
		store:       store,
		logger:      log,
		metrics:     metrics,
		concurrency: concurrency,
		timeout:     cfg.FetchTimeoutDuration(),
		cache:       make(map[string]*types.Metadata),
	}
}

// NormalizeRef strips locator prefixes, query strings and fragments from a
// content reference and returns the bare content address
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}

	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "ipfs://ipfs/"):
		ref = ref[len("ipfs://ipfs/"):]
	case strings.HasPrefix(lower, "ipfs://"):
		ref = ref[len("ipfs://"):]
	case strings.HasPrefix(lower, "ar://"):
		ref = ref[len("ar://"):]
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if i := strings.Index(lower, "/ipfs/"); i >= 0 {
			ref = ref[i+len("/ipfs/"):]
		}
	case strings.HasPrefix(lower, "/ipfs/"):
		ref = ref[len("/ipfs/"):]
	case strings.HasPrefix(lower, "ipfs/"):
		ref = ref[len("ipfs/"):]
	}

	return strings.Trim(ref, "/")
}

// Resolve returns the document for a record. It never fails: when the
// document cannot be fetched or parsed a synthesized record flagged as
// degraded is returned and nothing is cached.
func (r *Resolver) Resolve(ctx context.Context, kind types.EntityKind, id uint64, ref string) *types.Metadata {
	bare := NormalizeRef(ref)
	if bare == "" {
		return r.degrade(ctx, kind, id, ref, fmt.Errorf("empty content reference"))
	}

	if doc, ok := r.cached(bare); ok {
		r.metrics.RecordMetadataCacheHit()
		return doc
	}

	// The shared fetch outlives any single caller; each caller stops
	// waiting when its own ctx is done.
	ch := r.group.DoChan(bare, func() (interface{}, error) {
		return r.fetch(context.WithoutCancel(ctx), bare)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return r.degrade(ctx, kind, id, bare, res.Err)
		}
		return clone(res.Val.(*types.Metadata))
	case <-ctx.Done():
		return r.degrade(ctx, kind, id, bare, ctx.Err())
	}
}

func (r *Resolver) fetch(ctx context.Context, bare string) (*types.Metadata, error) {
	if doc, ok := r.cached(bare); ok {
		return doc, nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	raw, err := r.store.Fetch(ctx, bare)
	r.metrics.RecordMetadataFetch(err)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[bare] = doc
	r.mu.Unlock()
	return doc, nil
}

// ResolveMany resolves documents concurrently, bounded by the configured
// concurrency. Results are returned in request order.
func (r *Resolver) ResolveMany(ctx context.Context, reqs []types.MetadataRequest) []*types.Metadata {
	out := make([]*types.Metadata, len(reqs))

	var eg errgroup.Group
	eg.SetLimit(r.concurrency)
	for i, req := range reqs {
		i, req := i, req
		eg.Go(func() error {
			out[i] = r.Resolve(ctx, req.Kind, req.ID, req.Ref)
			return nil
		})
	}
	_ = eg.Wait()

	return out
}

// Cached reports how many documents are held in the cache
func (r *Resolver) Cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func (r *Resolver) cached(bare string) (*types.Metadata, bool) {
	r.mu.RLock()
	doc, ok := r.cache[bare]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return clone(doc), true
}

func (r *Resolver) degrade(ctx context.Context, kind types.EntityKind, id uint64, ref string, err error) *types.Metadata {
	r.logger.Degraded(ctx, ref, string(kind), err)
	r.metrics.RecordMetadataDegraded(string(kind))
	return Synthesize(kind, id)
}

// Synthesize builds the stand-in record used when a document is unavailable
func Synthesize(kind types.EntityKind, id uint64) *types.Metadata {
	return &types.Metadata{
		Name:        fmt.Sprintf("%s #%d", kind, id),
		Description: UnavailableDescription,
		Degraded:    true,
	}
}

// Parse decodes a metadata document. Known fields are read leniently so a
// numeric phone or category does not discard the document; everything else
// is kept in Extra.
func Parse(raw json.RawMessage) (*types.Metadata, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("metadata document is not a JSON object")
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("malformed metadata document: %w", err)
	}

	doc := &types.Metadata{
		Name:           text(fields["name"]),
		Description:    text(fields["description"]),
		Image:          text(fields["image"]),
		Category:       text(fields["category"]),
		Manufacturer:   text(fields["manufacturer"]),
		Specialization: text(fields["specialization"]),
		Qualification:  text(fields["qualification"]),
		Email:          text(fields["email"]),
		Phone:          text(fields["phone"]),
	}
	for k, v := range fields {
		if knownFields[k] {
			continue
		}
		if doc.Extra == nil {
			doc.Extra = make(map[string]interface{})
		}
		doc.Extra[k] = v
	}

	return doc, nil
}

func text(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func clone(doc *types.Metadata) *types.Metadata {
	out := *doc
	if doc.Extra != nil {
		out.Extra = make(map[string]interface{}, len(doc.Extra))
		for k, v := range doc.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}
