package sync

import (
	"context"
	"time"

	"github.com/kailas-cloud/costdex/internal/domain"
	"github.com/kailas-cloud/costdex/internal/domain/batch"
)

// UsageFetcher pulls usage data from the metering API.
type UsageFetcher interface {
	FetchUsage(ctx context.Context, w domain.Window, visit func(domain.UsageRecord) error) error
	GetOrganization(ctx context.Context) (domain.Organization, error)
}

// BulkIndexer writes documents into the destination index.
type BulkIndexer interface {
	Ensure(ctx context.Context) error
	Reset(ctx context.Context) error
	BulkUpsert(ctx context.Context, docs []domain.CostDocument) (batch.Summary, error)
}

// CheckpointStore reads and persists the sync checkpoint.
type CheckpointStore interface {
	Read(ctx context.Context, now time.Time) (domain.Checkpoint, error)
	Write(ctx context.Context, cp domain.Checkpoint) error
	Default(now time.Time) domain.Checkpoint
}
