package worker

import (
	"context"
	"log/slog"
	"strings"

	"havenresearch/pkg/queue"
	"havenresearch/pkg/storage"
	"havenresearch/pkg/store"
)

// Reconciler consumes the cleanup queue and deletes orphaned report blobs.
// A blob stops being an orphan if a later ingestion for the same slug
// succeeded, so the row is re-checked before deleting.
type Reconciler struct {
	queue   *queue.RedisCleanupQueue
	objects storage.ObjectStore
	store   store.Store
}

// NewReconciler builds a reconciler.
func NewReconciler(q *queue.RedisCleanupQueue, objects storage.ObjectStore, s store.Store) *Reconciler {
	return &Reconciler{queue: q, objects: objects, store: s}
}

// Run starts consuming cleanup jobs until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context, concurrency int) {
	r.queue.Start(ctx, concurrency, r.handle)
}

func (r *Reconciler) handle(ctx context.Context, job queue.Job) error {
	key := job.StorageKey
	slug, _, _ := strings.Cut(key, "/")
	if slug != "" {
		report, ok, err := r.store.GetReportBySlug(slug)
		if err != nil {
			return err
		}
		if ok && strings.Contains(report.PDFURL, key) {
			// A row references the blob now; nothing to clean up.
			slog.Info("cleanup skipped, blob is referenced", "storage_key", key, "slug", slug)
			return nil
		}
	}
	if err := r.objects.Delete(ctx, key); err != nil {
		return err
	}
	slog.Info("orphaned blob deleted", "storage_key", key, "attempts", job.Attempts)
	return nil
}
