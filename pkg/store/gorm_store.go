package store

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"havenresearch/internal/util"
	"havenresearch/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations. The unique index on
// slug is what makes the ingestion write an upsert instead of an
// append-another-row insert.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&ReportModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// UpsertReport inserts or overwrites the row keyed by slug and returns the
// stored representation.
func (s *GormStore) UpsertReport(r domain.Report) (domain.Report, error) {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	model := reportToModel(r, util.NewID())
	if err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"company", "ticker", "sector", "cycle", "analyst", "publish_date",
			"summary", "thesis", "key_risks", "sources", "pdf_url", "page_count",
			"updated_at",
		}),
	}).Create(&model).Error; err != nil {
		return domain.Report{}, fmt.Errorf("upsert report: %w", err)
	}
	stored, ok, err := s.GetReportBySlug(r.Slug)
	if err != nil {
		return domain.Report{}, err
	}
	if !ok {
		return domain.Report{}, fmt.Errorf("report vanished after upsert: %s", r.Slug)
	}
	return stored, nil
}

// ListReports returns all reports, newest publish date first.
func (s *GormStore) ListReports() ([]domain.Report, error) {
	var models []ReportModel
	if err := s.db.Order("publish_date DESC").Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	reports := make([]domain.Report, 0, len(models))
	for _, m := range models {
		reports = append(reports, reportFromModel(m))
	}
	return reports, nil
}

// GetReportBySlug retrieves one report.
func (s *GormStore) GetReportBySlug(slug string) (domain.Report, bool, error) {
	var model ReportModel
	if err := s.db.First(&model, "slug = ?", slug).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, err
	}
	return reportFromModel(model), true, nil
}
