package store

import "havenresearch/pkg/domain"

// Store defines persistence operations for research reports.
type Store interface {
	// UpsertReport inserts the report or, when the slug already exists,
	// overwrites the existing row. It returns the stored representation.
	UpsertReport(domain.Report) (domain.Report, error)
	// ListReports returns all reports ordered by publish date descending.
	ListReports() ([]domain.Report, error)
	GetReportBySlug(slug string) (domain.Report, bool, error)
}
