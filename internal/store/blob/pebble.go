package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keyPrefix = "blob/"

// PebbleStore persists blobs in a pebble database on local disk.
type PebbleStore struct {
	db     *pebble.DB
	logger *zap.Logger
}

// OpenPebble opens (or creates) the pebble database at path.
func OpenPebble(path string, logger *zap.Logger) (*PebbleStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("opening_pebble_blob_store", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db, logger: logger}, nil
}

func blobKey(ref string) []byte {
	return []byte(keyPrefix + ref)
}

func (s *PebbleStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := uuid.NewString()
	if err := s.db.Set(blobKey(ref), data, pebble.Sync); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	s.logger.Debug("blob_stored", zap.String("ref", ref), zap.String("size", humanize.Bytes(uint64(len(data)))))
	return ref, nil
}

func (s *PebbleStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, closer, err := s.db.Get(blobKey(ref))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load blob %s: %w", ref, err)
	}
	defer closer.Close()
	// value is only valid until closer.Close
	return append([]byte(nil), value...), nil
}

func (s *PebbleStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete(blobKey(ref), pebble.Sync); err != nil {
		return fmt.Errorf("delete blob %s: %w", ref, err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
