package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/costdex/internal/domain"
	"github.com/kailas-cloud/costdex/internal/metrics"
)

// State is the orchestrator's position in the run lifecycle.
type State string

// Run states. A run moves strictly forward and terminates in StateDone or
// StateFailed.
const (
	StateIdle                State = "idle"
	StateResolvingWindow     State = "resolving-window"
	StateFetching            State = "fetching"
	StateIndexing            State = "indexing"
	StateAdvancingCheckpoint State = "advancing-checkpoint"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Options tune one synchronizer run.
type Options struct {
	ChunkSize      time.Duration // sub-window granularity for checkpoint advancement
	FinalityMargin time.Duration // keep the window this far behind now; metering lags real time
	BatchSize      int
	Reset          bool
}

// Summary reports what a run did.
type Summary struct {
	State      State
	RunID      string
	Window     domain.Window
	Fetched    int
	Indexed    int
	Failed     int
	SyncedThru time.Time
}

// Service drives one incremental sync run: read checkpoint, fetch the
// delta window from the provider, transform, bulk-upsert, advance the
// checkpoint. All document writes are upserts keyed by deterministic ids,
// so overlapping or retried runs converge instead of duplicating.
type Service struct {
	fetcher     UsageFetcher
	indexer     BulkIndexer
	checkpoints CheckpointStore
	opts        Options
	log         *zap.Logger
	metrics     *metrics.Sync

	state State
	now   func() time.Time
}

// New creates a sync orchestrator.
func New(
	fetcher UsageFetcher, indexer BulkIndexer, checkpoints CheckpointStore,
	opts Options, log *zap.Logger, m *metrics.Sync,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 24 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Service{
		fetcher:     fetcher,
		indexer:     indexer,
		checkpoints: checkpoints,
		opts:        opts,
		log:         log,
		metrics:     m,
		state:       StateIdle,
		now:         time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// State returns the current run state.
func (s *Service) State() State { return s.state }

// Run executes one full synchronization pass. The returned Summary is
// valid even on error; the error is the unrecoverable failure that moved
// the run to StateFailed, nil when it reached StateDone. The checkpoint is
// only ever advanced past sub-windows whose documents were all durably
// indexed, so a failed or killed run resumes safely.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	runID := uuid.New().String()
	sum := Summary{RunID: runID, State: StateIdle}
	log := s.log.With(zap.String("run_id", runID))

	now := s.now().UTC()

	cp, err := s.prepare(ctx, now, log)
	if err != nil {
		return s.fail(ctx, sum, cp, err, log)
	}

	s.transition(StateResolvingWindow, log)
	window := domain.Window{
		Start: cp.LastSyncedThrough,
		End:   now.Add(-s.opts.FinalityMargin),
	}
	sum.Window = window
	sum.SyncedThru = cp.LastSyncedThrough

	if window.IsEmpty() {
		log.Info("checkpoint is current, nothing to sync",
			zap.Time("last_synced_through", cp.LastSyncedThrough))
		s.transition(StateDone, log)
		sum.State = StateDone
		return sum, nil
	}

	org, err := s.fetcher.GetOrganization(ctx)
	if err != nil {
		// Enrichment only: documents stay correct without the display
		// name, but an auth failure here will also kill the fetch below.
		log.Warn("organization lookup failed", zap.Error(err))
	}

	advanceBlocked := false
	for _, chunk := range window.Chunks(s.opts.ChunkSize) {
		chunkSum, err := s.syncChunk(ctx, chunk, org, runID, log)
		sum.Fetched += chunkSum.Fetched
		sum.Indexed += chunkSum.Indexed
		sum.Failed += chunkSum.Failed
		if err != nil {
			return s.fail(ctx, sum, cp, err, log)
		}

		if chunkSum.Failed > 0 {
			// The next run re-fetches this chunk; upserts make that safe.
			log.Warn("chunk had failed documents, checkpoint will not advance past it",
				zap.Time("chunk_start", chunk.Start),
				zap.Time("chunk_end", chunk.End),
				zap.Int("failed", chunkSum.Failed),
			)
			advanceBlocked = true
		}

		if advanceBlocked {
			continue
		}

		s.transition(StateAdvancingCheckpoint, log)
		cp.LastSyncedThrough = chunk.End
		cp.LastRunStatus = domain.RunStatusOK
		cp.LastRunID = runID
		cp.UpdatedAt = s.now().UTC()
		if err := s.checkpoints.Write(ctx, cp); err != nil {
			return s.fail(ctx, sum, cp, err, log)
		}
		sum.SyncedThru = cp.LastSyncedThrough
		if s.metrics != nil {
			s.metrics.CheckpointTimestamp.Set(float64(cp.LastSyncedThrough.Unix()))
		}
	}

	s.transition(StateDone, log)
	sum.State = StateDone
	log.Info("sync complete",
		zap.Int("fetched", sum.Fetched),
		zap.Int("indexed", sum.Indexed),
		zap.Int("failed", sum.Failed),
		zap.Time("synced_through", sum.SyncedThru),
	)
	return sum, nil
}

// prepare handles reset and index readiness, returning the starting
// checkpoint.
func (s *Service) prepare(ctx context.Context, now time.Time, log *zap.Logger) (domain.Checkpoint, error) {
	if s.opts.Reset {
		log.Info("reset requested, wiping index and checkpoint")
		if err := s.indexer.Reset(ctx); err != nil {
			return domain.Checkpoint{}, fmt.Errorf("reset index: %w", err)
		}
	}

	if err := s.indexer.Ensure(ctx); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("ensure index: %w", err)
	}

	cp, err := s.checkpoints.Read(ctx, now)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	if s.opts.Reset {
		cp = s.checkpoints.Default(now)
		log.Info("checkpoint reset", zap.Time("last_synced_through", cp.LastSyncedThrough))
	}
	return cp, nil
}

type chunkSummary struct {
	Fetched int
	Indexed int
	Failed  int
}

// syncChunk fetches one sub-window, transforming and indexing in batches
// as pages arrive.
func (s *Service) syncChunk(
	ctx context.Context, chunk domain.Window, org domain.Organization, runID string, log *zap.Logger,
) (chunkSummary, error) {
	var sum chunkSummary
	buf := make([]domain.CostDocument, 0, s.opts.BatchSize)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		s.transition(StateIndexing, log)

		start := s.now()
		res, err := s.indexer.BulkUpsert(ctx, buf)
		if s.metrics != nil {
			s.metrics.BatchesTotal.Inc()
			s.metrics.BatchDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return err
		}
		if res.Succeeded == 0 && len(res.Failed) == len(buf) {
			// Nothing in the batch landed: the index is down, not the data.
			return fmt.Errorf("%w: whole batch rejected: %w",
				domain.ErrIndexUnavailable, res.Failed[0].Err())
		}

		sum.Indexed += res.Succeeded
		sum.Failed += len(res.Failed)
		if s.metrics != nil {
			s.metrics.RecordsIndexed.Add(float64(res.Succeeded))
		}
		for _, f := range res.Failed {
			log.Error("document failed to index",
				zap.String("doc_id", f.ID()),
				zap.Time("chunk_start", chunk.Start),
				zap.Error(f.Err()),
			)
			if s.metrics != nil {
				s.metrics.RecordsFailed.WithLabelValues("index_error").Inc()
			}
		}
		buf = buf[:0]
		return nil
	}

	s.transition(StateFetching, log)
	ingestedAt := s.now().UTC()
	err := s.fetcher.FetchUsage(ctx, chunk, func(rec domain.UsageRecord) error {
		sum.Fetched++
		if s.metrics != nil {
			s.metrics.RecordsFetched.Inc()
		}
		buf = append(buf, Transform(rec, org, runID, ingestedAt, log))
		if len(buf) >= s.opts.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("fetch window [%s, %s): %w",
			chunk.Start.Format(time.RFC3339), chunk.End.Format(time.RFC3339), err)
	}

	if err := flush(); err != nil {
		return sum, err
	}
	return sum, nil
}

// fail records the terminal failure without touching LastSyncedThrough, so
// the next invocation resumes from the last durably-advanced point.
func (s *Service) fail(
	ctx context.Context, sum Summary, cp domain.Checkpoint, err error, log *zap.Logger,
) (Summary, error) {
	s.transition(StateFailed, log)
	sum.State = StateFailed

	log.Error("sync failed",
		zap.Time("last_synced_through", cp.LastSyncedThrough),
		zap.Error(err),
	)

	if !cp.LastSyncedThrough.IsZero() {
		cp.LastRunStatus = domain.RunStatusFailed
		cp.LastRunID = sum.RunID
		cp.UpdatedAt = s.now().UTC()
		if werr := s.checkpoints.Write(ctx, cp); werr != nil {
			log.Error("failed to record run status on checkpoint", zap.Error(werr))
		}
	}
	return sum, err
}

func (s *Service) transition(next State, log *zap.Logger) {
	if s.state == next {
		return
	}
	log.Debug("state transition", zap.String("from", string(s.state)), zap.String("to", string(next)))
	s.state = next
}
