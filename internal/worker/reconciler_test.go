package worker

import (
	"context"
	"errors"
	"io"
	"testing"

	"havenresearch/pkg/domain"
	"havenresearch/pkg/queue"
	"havenresearch/pkg/store"
)

type fakeObjects struct {
	deleted []string
	err     error
}

func (f *fakeObjects) Put(context.Context, string, io.Reader, int64, string) error { return nil }

func (f *fakeObjects) Get(context.Context, string) (io.ReadCloser, string, error) {
	return nil, "", errors.New("not implemented")
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeObjects) PublicURL(key string) string { return "/reports/" + key }

func TestReconcilerDeletesOrphanedBlob(t *testing.T) {
	objects := &fakeObjects{}
	reports := store.NewMemoryStore()
	r := NewReconciler(nil, objects, reports)

	err := r.handle(context.Background(), queue.Job{ID: "job-1", StorageKey: "acme/report.pdf"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != "acme/report.pdf" {
		t.Fatalf("expected orphan deleted, got %v", objects.deleted)
	}
}

func TestReconcilerSkipsReferencedBlob(t *testing.T) {
	objects := &fakeObjects{}
	reports := store.NewMemoryStore()
	if _, err := reports.UpsertReport(domain.Report{
		Slug:        "acme",
		PublishDate: "2025-03-01",
		PDFURL:      "/reports/acme/report.pdf",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := NewReconciler(nil, objects, reports)

	err := r.handle(context.Background(), queue.Job{ID: "job-1", StorageKey: "acme/report.pdf"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(objects.deleted) != 0 {
		t.Fatalf("a referenced blob must never be deleted, got %v", objects.deleted)
	}
}

func TestReconcilerDeletesWhenRowPointsElsewhere(t *testing.T) {
	objects := &fakeObjects{}
	reports := store.NewMemoryStore()
	if _, err := reports.UpsertReport(domain.Report{
		Slug:        "acme",
		PublishDate: "2025-03-01",
		PDFURL:      "/reports/acme/new-upload.pdf",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := NewReconciler(nil, objects, reports)

	err := r.handle(context.Background(), queue.Job{ID: "job-1", StorageKey: "acme/old-upload.pdf"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != "acme/old-upload.pdf" {
		t.Fatalf("expected stale blob deleted, got %v", objects.deleted)
	}
}

func TestReconcilerSurfacesDeleteError(t *testing.T) {
	objects := &fakeObjects{err: errors.New("storage down")}
	r := NewReconciler(nil, objects, store.NewMemoryStore())

	if err := r.handle(context.Background(), queue.Job{ID: "job-1", StorageKey: "acme/report.pdf"}); err == nil {
		t.Fatalf("expected delete error to propagate for retry")
	}
}
