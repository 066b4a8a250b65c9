package domain

import "time"

// Report is the canonical shape of a published research report.
// Slug is the natural key and doubles as the storage-path prefix
// for the report PDF.
type Report struct {
	Slug        string    `json:"slug"`
	Company     string    `json:"company"`
	Ticker      string    `json:"ticker"`
	Sector      string    `json:"sector"`
	Cycle       int       `json:"cycle"`
	Analyst     string    `json:"analyst"`
	PublishDate string    `json:"publishDate"`
	Summary     string    `json:"summary"`
	Thesis      string    `json:"thesis"`
	KeyRisks    []string  `json:"keyRisks"`
	Sources     []string  `json:"sources"`
	PDFURL      string    `json:"pdfUrl,omitempty"`
	PageCount   int       `json:"pageCount,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Sectors is the fixed set of sectors a report may belong to.
var Sectors = []string{
	"Technology",
	"Healthcare",
	"Financials",
	"Consumer Discretionary",
	"Consumer Staples",
	"Industrials",
	"Energy",
	"Materials",
	"Utilities",
	"Real Estate",
	"Communication Services",
}

// ValidSector reports whether s is one of the known sectors.
func ValidSector(s string) bool {
	for _, sector := range Sectors {
		if s == sector {
			return true
		}
	}
	return false
}

// DateLayout is the calendar-date format used for publish dates.
const DateLayout = "2006-01-02"
