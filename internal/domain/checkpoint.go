package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus is the terminal outcome of a sync run.
type RunStatus string

// Run status values persisted with the checkpoint.
const (
	RunStatusOK     RunStatus = "ok"
	RunStatusFailed RunStatus = "failed"
)

// Checkpoint marks the last fully-synchronized point in time for one
// destination index. It is read at orchestrator start and advanced only
// after all documents up to the new boundary are durably indexed.
type Checkpoint struct {
	LastSyncedThrough time.Time `json:"last_synced_through"`
	LastRunStatus     RunStatus `json:"last_run_status"`
	LastRunID         string    `json:"last_run_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultCheckpoint returns the checkpoint used on first run or after a
// reset: lookback days in the past, bounding the historical backfill.
func DefaultCheckpoint(now time.Time, lookbackDays int) Checkpoint {
	return Checkpoint{
		LastSyncedThrough: now.UTC().AddDate(0, 0, -lookbackDays).Truncate(time.Hour),
	}
}

// Encode serializes the checkpoint for storage.
func (c Checkpoint) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return data, nil
}

// DecodeCheckpoint parses a stored checkpoint payload.
func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %w", ErrCheckpointCorrupt, err)
	}
	return c, nil
}
