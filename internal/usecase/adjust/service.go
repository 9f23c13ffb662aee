// Package adjust indexes config-declared billing adjustments — prepaid
// credit purchases and overage charges — alongside fetched usage, so
// dashboards can plot consumption against what was actually bought.
package adjust

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/costdex/internal/domain"
	"github.com/kailas-cloud/costdex/internal/domain/batch"
)

// Indexer writes documents into the destination index.
type Indexer interface {
	BulkUpsert(ctx context.Context, docs []domain.CostDocument) (batch.Summary, error)
}

// Entry is one declared purchase or overage: credits booked on a day.
type Entry struct {
	Day     time.Time
	Credits float64
}

// Service writes adjustment documents.
type Service struct {
	indexer Indexer
	log     *zap.Logger
	now     func() time.Time
}

// New creates an adjustments service.
func New(indexer Indexer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{indexer: indexer, log: log, now: time.Now}
}

// Apply upserts one document per entry. Ids derive from kind, org and day,
// so re-running with the same config overwrites rather than duplicates.
func (s *Service) Apply(
	ctx context.Context,
	org domain.Organization,
	purchases, overages []Entry,
	runID string,
) (batch.Summary, error) {
	ingestedAt := s.now().UTC()

	docs := make([]domain.CostDocument, 0, len(purchases)+len(overages))
	for _, e := range purchases {
		docs = append(docs, s.document(domain.KindPurchase, org, e, runID, ingestedAt))
	}
	for _, e := range overages {
		docs = append(docs, s.document(domain.KindOverage, org, e, runID, ingestedAt))
	}
	if len(docs) == 0 {
		return batch.Summary{}, nil
	}

	sum, err := s.indexer.BulkUpsert(ctx, docs)
	if err != nil {
		return sum, err
	}
	for _, f := range sum.Failed {
		s.log.Error("adjustment document failed to index",
			zap.String("doc_id", f.ID()), zap.Error(f.Err()))
	}
	s.log.Info("adjustments indexed",
		zap.Int("purchases", len(purchases)),
		zap.Int("overages", len(overages)),
		zap.Int("succeeded", sum.Succeeded),
	)
	return sum, nil
}

func (s *Service) document(
	kind domain.DocumentKind, org domain.Organization, e Entry, runID string, ingestedAt time.Time,
) domain.CostDocument {
	doc := domain.CostDocument{
		ID:         domain.AdjustmentDocumentID(kind, org.ID, e.Day),
		Kind:       kind,
		Timestamp:  e.Day.UTC(),
		OrgID:      org.ID,
		OrgName:    org.Name,
		Quantity:   e.Credits,
		Unit:       domain.UnitCredits,
		RunID:      runID,
		IngestedAt: ingestedAt,
	}
	// Overages are charges; purchases are top-ups, not costs.
	if kind == domain.KindOverage {
		doc.Cost = e.Credits
	}
	return doc
}
