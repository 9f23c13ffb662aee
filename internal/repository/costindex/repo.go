package costindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/costdex/internal/db"
	"github.com/kailas-cloud/costdex/internal/domain"
	"github.com/kailas-cloud/costdex/internal/domain/batch"
)

// store is the consumer interface for cost index operations (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) ([]error, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Repo manages the destination cost index: an FT index over hash documents
// keyed by deterministic ids, so every write is an upsert.
type Repo struct {
	store  store
	index  string
	prefix string
}

// New creates a cost index repository. keyPrefix namespaces all keys
// (e.g. "costdex:"), index is the logical index name.
func New(s store, keyPrefix, index string) *Repo {
	return &Repo{store: s, index: index, prefix: keyPrefix}
}

// Ensure creates the FT index if it does not exist yet.
func (r *Repo) Ensure(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.indexName()).
		Prefix(r.docPrefix()).
		Tag("kind").
		Tag("org").
		Tag("deployment").
		Tag("metric").
		NumericSortable("ts").
		Numeric("quantity").
		Numeric("cost").
		Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	return nil
}

// BulkUpsert writes all documents in one pipelined round-trip. Each write
// is keyed by the document's deterministic id. Per-document failures land
// in the summary; the returned error is non-nil only when the batch could
// not be issued at all.
func (r *Repo) BulkUpsert(ctx context.Context, docs []domain.CostDocument) (batch.Summary, error) {
	if len(docs) == 0 {
		return batch.Summary{}, nil
	}

	items := make([]db.HashSetItem, len(docs))
	for i, doc := range docs {
		items[i] = db.HashSetItem{
			Key:    r.docKey(doc.ID),
			Fields: buildHashFields(&doc),
		}
	}

	errs, err := r.store.HSetMulti(ctx, items)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("%w: bulk upsert: %w", domain.ErrIndexUnavailable, err)
	}

	results := make([]batch.Result, len(docs))
	for i := range docs {
		if errs[i] != nil {
			results[i] = batch.NewError(docs[i].ID, errs[i])
		} else {
			results[i] = batch.NewOK(docs[i].ID)
		}
	}
	return batch.Summarize(results), nil
}

// Get reads one document back by id.
func (r *Repo) Get(ctx context.Context, id string) (domain.CostDocument, error) {
	m, err := r.store.HGetAll(ctx, r.docKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.CostDocument{}, db.ErrKeyNotFound
		}
		return domain.CostDocument{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return parseHashFields(id, m), nil
}

// Count returns the number of indexed documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), "*")
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.index, err)
	}
	return n, nil
}

// DeleteByKind removes every document of the given kind, paging through
// the index. Used to wipe stale forecast documents before recomputing.
func (r *Repo) DeleteByKind(ctx context.Context, kind domain.DocumentKind) (int, error) {
	query := fmt.Sprintf("@kind:{%s}", kind)
	deleted := 0

	for {
		// Offset stays 0: each deletion shrinks the result set.
		res, err := r.store.SearchList(ctx, r.indexName(), query, 0, 100, []string{"kind"})
		if err != nil {
			return deleted, fmt.Errorf("search %s by kind %s: %w", r.index, kind, err)
		}
		if res == nil || len(res.Entries) == 0 {
			return deleted, nil
		}
		for _, e := range res.Entries {
			if err := r.store.Del(ctx, e.Key); err != nil {
				return deleted, fmt.Errorf("delete %s: %w", e.Key, err)
			}
			deleted++
		}
	}
}

// Reset drops the FT index and deletes every key under the index prefix,
// the persisted checkpoint included. The index is not recreated; call
// Ensure afterwards.
func (r *Repo) Reset(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", r.index, err)
	}

	keys, err := r.store.Scan(ctx, r.docPrefix()+"*")
	if err != nil {
		return fmt.Errorf("scan %s keys: %w", r.index, err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// CheckpointKey is where the sync checkpoint lives, co-located with the
// data under the same prefix.
func (r *Repo) CheckpointKey() string {
	return r.docPrefix() + "checkpoint"
}

func (r *Repo) indexName() string {
	return r.prefix + r.index + ":idx"
}

func (r *Repo) docPrefix() string {
	return r.prefix + r.index + ":"
}

func (r *Repo) docKey(id string) string {
	return r.docPrefix() + id
}
