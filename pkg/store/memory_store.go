package store

import (
	"sort"
	"sync"
	"time"

	"havenresearch/pkg/domain"
)

// MemoryStore keeps reports in-process. Used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]domain.Report // key: slug
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]domain.Report)}
}

// UpsertReport stores or replaces the report keyed by slug.
func (m *MemoryStore) UpsertReport(r domain.Report) (domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.reports[r.Slug]; ok {
		r.CreatedAt = existing.CreatedAt
	} else if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.KeyRisks == nil {
		r.KeyRisks = []string{}
	}
	if r.Sources == nil {
		r.Sources = []string{}
	}
	m.reports[r.Slug] = r
	return r, nil
}

// ListReports returns reports ordered by publish date descending.
func (m *MemoryStore) ListReports() ([]domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Report, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PublishDate != out[j].PublishDate {
			return out[i].PublishDate > out[j].PublishDate
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetReportBySlug retrieves one report.
func (m *MemoryStore) GetReportBySlug(slug string) (domain.Report, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[slug]
	return r, ok, nil
}
