// Package forecast projects spend forward from a trailing average.
// Forecast documents are recomputed wholesale on every run: all existing
// ones are deleted, then the horizon is rewritten from the latest totals.
package forecast

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/costdex/internal/domain"
	"github.com/kailas-cloud/costdex/internal/domain/batch"
)

// CostTotaler returns the total cost accrued inside a window.
type CostTotaler interface {
	TotalCost(ctx context.Context, w domain.Window) (float64, error)
}

// Indexer is the slice of the index repository the forecast needs.
type Indexer interface {
	DeleteByKind(ctx context.Context, kind domain.DocumentKind) (int, error)
	BulkUpsert(ctx context.Context, docs []domain.CostDocument) (batch.Summary, error)
}

// Options tune the projection.
type Options struct {
	// LookbackDays is the trailing window the daily average is taken over.
	LookbackDays int
	// HorizonDays is how many days ahead to project.
	HorizonDays int
}

// Service recomputes the forecast.
type Service struct {
	api     CostTotaler
	indexer Indexer
	opts    Options
	log     *zap.Logger
	now     func() time.Time
}

// New creates a forecast service.
func New(api CostTotaler, indexer Indexer, opts Options, log *zap.Logger) *Service {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 7
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 90
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: api, indexer: indexer, opts: opts, log: log, now: time.Now}
}

// Recompute drops all forecast documents and writes a fresh horizon.
// The daily rate is the average spend over the trailing lookback window
// ending yesterday, so a partially elapsed today never skews it.
func (s *Service) Recompute(
	ctx context.Context, org domain.Organization, runID string,
) (batch.Summary, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	window := domain.Window{
		Start: today.AddDate(0, 0, -s.opts.LookbackDays),
		End:   today,
	}

	total, err := s.api.TotalCost(ctx, window)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("fetch trailing cost: %w", err)
	}
	daily := total / float64(s.opts.LookbackDays)

	deleted, err := s.indexer.DeleteByKind(ctx, domain.KindForecast)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("clear stale forecast: %w", err)
	}

	ingestedAt := s.now().UTC()
	docs := make([]domain.CostDocument, 0, s.opts.HorizonDays)
	for i := 1; i <= s.opts.HorizonDays; i++ {
		day := today.AddDate(0, 0, i)
		docs = append(docs, domain.CostDocument{
			ID:         domain.ForecastDocumentID(org.ID, day),
			Kind:       domain.KindForecast,
			Timestamp:  day,
			OrgID:      org.ID,
			OrgName:    org.Name,
			Cost:       daily,
			Unit:       domain.UnitCredits,
			RunID:      runID,
			IngestedAt: ingestedAt,
		})
	}

	sum, err := s.indexer.BulkUpsert(ctx, docs)
	if err != nil {
		return sum, err
	}
	for _, f := range sum.Failed {
		s.log.Error("forecast document failed to index",
			zap.String("doc_id", f.ID()), zap.Error(f.Err()))
	}
	s.log.Info("forecast recomputed",
		zap.Int("deleted", deleted),
		zap.Int("written", sum.Succeeded),
		zap.Float64("daily_cost", daily),
	)
	return sum, nil
}
