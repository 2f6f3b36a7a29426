package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/medrex/medledger/pkg/interfaces"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/syndtr/goleveldb/leveldb"
)

const docKeyPrefix = "doc_"

// MirrorStore keeps a local leveldb copy of every document fetched from an
// upstream store. A content address always names the same bytes, so a
// mirrored document is served without asking upstream again.
type MirrorStore struct {
	db       *leveldb.DB
	upstream interfaces.ContentStore
	logger   *logger.Logger
}

// OpenMirrorStore opens or creates the mirror database at path
func OpenMirrorStore(path string, upstream interfaces.ContentStore, log *logger.Logger) (*MirrorStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata mirror: %w", err)
	}
	return NewMirrorStore(db, upstream, log), nil
}

// NewMirrorStore wraps an already opened database
func NewMirrorStore(db *leveldb.DB, upstream interfaces.ContentStore, log *logger.Logger) *MirrorStore {
	return &MirrorStore{
		db:       db,
		upstream: upstream,
		logger:   log,
	}
}

// Fetch serves ref from the mirror, falling back to upstream
func (s *MirrorStore) Fetch(ctx context.Context, ref string) (json.RawMessage, error) {
	key := []byte(docKeyPrefix + ref)

	data, err := s.db.Get(key, nil)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, leveldb.ErrNotFound) {
		s.logger.WithComponent("metadata-mirror").WithError(err).Warn("Mirror read failed")
	}

	data, err = s.upstream.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	if err := s.db.Put(key, data, nil); err != nil {
		s.logger.WithComponent("metadata-mirror").WithError(err).WithField("ref", ref).Warn("Failed to mirror document")
	}
	return data, nil
}

// Has reports whether ref is mirrored locally
func (s *MirrorStore) Has(ref string) bool {
	ok, err := s.db.Has([]byte(docKeyPrefix+ref), nil)
	return err == nil && ok
}

// Close closes the mirror database
func (s *MirrorStore) Close() error {
	return s.db.Close()
}
