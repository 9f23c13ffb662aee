package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/costdex/internal/db"
	"github.com/kailas-cloud/costdex/internal/domain"
)

// store is the consumer interface for checkpoint persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store persists the sync checkpoint as a single JSON value co-located
// with the cost documents. A write is one SET, so a concurrent reader
// never observes a partial checkpoint.
type Store struct {
	store        store
	key          string
	lookbackDays int
}

// New creates a checkpoint store. key is the storage key (see
// costindex.Repo.CheckpointKey), lookbackDays bounds the default
// checkpoint used on first run or after reset.
func New(s store, key string, lookbackDays int) *Store {
	return &Store{store: s, key: key, lookbackDays: lookbackDays}
}

// Read returns the persisted checkpoint, or the default (now minus the
// lookback) when none exists yet. A corrupt payload is an error, not a
// silent reset: resetting would silently re-backfill the whole lookback.
func (s *Store) Read(ctx context.Context, now time.Time) (domain.Checkpoint, error) {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.DefaultCheckpoint(now, s.lookbackDays), nil
		}
		return domain.Checkpoint{}, fmt.Errorf("read checkpoint %s: %w", s.key, err)
	}

	cp, err := domain.DecodeCheckpoint(data)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("checkpoint %s: %w", s.key, err)
	}
	return cp, nil
}

// Write persists the checkpoint atomically.
func (s *Store) Write(ctx context.Context, cp domain.Checkpoint) error {
	data, err := cp.Encode()
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", s.key, err)
	}
	return nil
}

// Default returns the reset-state checkpoint.
func (s *Store) Default(now time.Time) domain.Checkpoint {
	return domain.DefaultCheckpoint(now, s.lookbackDays)
}
