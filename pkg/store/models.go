package store

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"havenresearch/pkg/domain"
)

// ReportModel is the GORM model backing research report rows.
type ReportModel struct {
	ID          string    `gorm:"primaryKey"`
	Slug        string    `gorm:"uniqueIndex;not null"`
	Company     string    `gorm:"not null"`
	Ticker      string    `gorm:"not null"`
	Sector      string    `gorm:"not null"`
	Cycle       int       `gorm:"not null"`
	Analyst     string    `gorm:"not null"`
	PublishDate time.Time `gorm:"type:date;not null;index"`
	Summary     string    `gorm:"type:text;not null"`
	Thesis      string    `gorm:"type:text;not null"`
	// Nullable on purpose: an empty list is stored as NULL so "not yet
	// provided" survives the round trip.
	KeyRisks  datatypes.JSON `gorm:"type:jsonb"`
	Sources   datatypes.JSON `gorm:"type:jsonb"`
	PDFURL    string         `gorm:"column:pdf_url"`
	PageCount int
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func reportToModel(r domain.Report, id string) ReportModel {
	publishDate, _ := time.Parse(domain.DateLayout, r.PublishDate)
	return ReportModel{
		ID:          id,
		Slug:        r.Slug,
		Company:     r.Company,
		Ticker:      r.Ticker,
		Sector:      r.Sector,
		Cycle:       r.Cycle,
		Analyst:     r.Analyst,
		PublishDate: publishDate,
		Summary:     r.Summary,
		Thesis:      r.Thesis,
		KeyRisks:    listToJSON(r.KeyRisks),
		Sources:     listToJSON(r.Sources),
		PDFURL:      r.PDFURL,
		PageCount:   r.PageCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func reportFromModel(m ReportModel) domain.Report {
	return domain.Report{
		Slug:        m.Slug,
		Company:     m.Company,
		Ticker:      m.Ticker,
		Sector:      m.Sector,
		Cycle:       m.Cycle,
		Analyst:     m.Analyst,
		PublishDate: m.PublishDate.Format(domain.DateLayout),
		Summary:     m.Summary,
		Thesis:      m.Thesis,
		KeyRisks:    normalizeStringList(m.KeyRisks),
		Sources:     normalizeStringList(m.Sources),
		PDFURL:      m.PDFURL,
		PageCount:   m.PageCount,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func listToJSON(items []string) datatypes.JSON {
	if len(items) == 0 {
		return nil
	}
	raw, _ := json.Marshal(items)
	return raw
}

// normalizeStringList maps a stored jsonb value to an always-present slice.
// Older rows may hold a single CSV string instead of an array; both shapes
// normalize to the same result.
func normalizeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err == nil {
		return compactList(items)
	}
	var csv string
	if err := json.Unmarshal(raw, &csv); err == nil {
		return compactList(strings.Split(csv, ","))
	}
	return []string{}
}

func compactList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
