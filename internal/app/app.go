package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"havenresearch/internal/authgate"
	"havenresearch/internal/mailer"
	"havenresearch/internal/util"
	"havenresearch/pkg/domain"
	"havenresearch/pkg/queue"
	"havenresearch/pkg/storage"
	"havenresearch/pkg/store"
)

// Mailer relays contact messages.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// CleanupEnqueuer records orphaned storage keys for later reconciliation.
type CleanupEnqueuer interface {
	Enqueue(ctx context.Context, storageKey string) (queue.Job, error)
}

// Config wires the application's collaborators.
type Config struct {
	Gate    *authgate.Gate
	Store   store.Store
	Objects storage.ObjectStore
	Bucket  string
	Cleanup CleanupEnqueuer // optional
	Mail    Mailer          // optional; contact relay 500s when absent
}

// App implements the report ingestion, retrieval, and contact operations.
type App struct {
	gate    *authgate.Gate
	store   store.Store
	objects storage.ObjectStore
	bucket  string
	cleanup CleanupEnqueuer
	mail    Mailer
	fetch   *http.Client
}

// New constructs the application core.
func New(cfg Config) *App {
	return &App{
		gate:    cfg.Gate,
		store:   cfg.Store,
		objects: cfg.Objects,
		bucket:  cfg.Bucket,
		cleanup: cfg.Cleanup,
		mail:    cfg.Mail,
		fetch:   &http.Client{Timeout: 30 * time.Second},
	}
}

// CheckAccess resolves the bearer token and evaluates the allow-lists.
// Both the console gate endpoint and the ingestion write path call this,
// so there is exactly one authorization policy.
func (a *App) CheckAccess(ctx context.Context, token string) (authgate.Decision, error) {
	dec, err := a.gate.Check(ctx, token)
	if err != nil {
		return authgate.Decision{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return dec, nil
}

// Submission is a parsed report upload.
type Submission struct {
	Slug        string
	Company     string
	Ticker      string
	Sector      string
	Cycle       string
	Analyst     string
	PublishDate string
	Summary     string
	Thesis      string
	KeyRisks    string
	Sources     string
	Filename    string
	ContentType string
	PDF         []byte
}

// IngestResult is the outcome of a successful ingestion.
type IngestResult struct {
	PDFURL string        `json:"pdfUrl"`
	Report domain.Report `json:"report"`
}

// IngestReport runs the full pipeline: authorize, validate, store the PDF,
// then upsert the metadata row keyed by slug. Authorization is re-derived
// from the token here; a client-side "allowed" flag is advisory only, so no
// mutation happens before the gate decision.
func (a *App) IngestReport(ctx context.Context, token string, sub Submission) (IngestResult, error) {
	dec, err := a.CheckAccess(ctx, token)
	if err != nil {
		return IngestResult{}, err
	}
	if !dec.Allowed {
		return IngestResult{}, ErrAccessDenied
	}

	report, err := validateSubmission(sub)
	if err != nil {
		return IngestResult{}, err
	}
	report.PageCount = pageCount(sub.PDF)

	safeName := SanitizeFilename(sub.Filename)
	if safeName == "" {
		safeName = "report.pdf"
	}
	storageKey := report.Slug + "/" + safeName
	contentType := sub.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}

	// Overwrite-if-exists: re-uploading the same slug+filename is idempotent.
	if err := a.objects.Put(ctx, storageKey, bytes.NewReader(sub.PDF), int64(len(sub.PDF)), contentType); err != nil {
		return IngestResult{}, &UpstreamError{Op: "storage upload", Body: err.Error()}
	}

	report.PDFURL = a.objects.PublicURL(storageKey)
	stored, err := a.store.UpsertReport(report)
	if err != nil {
		// The blob now exists without a matching row. Hand the key to the
		// reconciliation queue so the orphan is cleaned up or at least
		// tracked, then surface the failure.
		a.recordOrphan(ctx, storageKey, err)
		return IngestResult{}, &UpstreamError{Op: "metadata insert", Body: err.Error()}
	}
	util.LoggerFromContext(ctx).Info("report ingested",
		"slug", stored.Slug, "analyst", stored.Analyst, "uploader", dec.Email, "pages", stored.PageCount)
	return IngestResult{PDFURL: stored.PDFURL, Report: stored}, nil
}

func (a *App) recordOrphan(ctx context.Context, storageKey string, cause error) {
	logger := util.LoggerFromContext(ctx)
	if a.cleanup == nil {
		logger.Error("orphaned report blob, no cleanup queue configured",
			"storage_key", storageKey, "err", cause)
		return
	}
	if _, err := a.cleanup.Enqueue(ctx, storageKey); err != nil {
		logger.Error("orphaned report blob, cleanup enqueue failed",
			"storage_key", storageKey, "err", err)
		return
	}
	logger.Warn("orphaned report blob queued for cleanup", "storage_key", storageKey, "err", cause)
}

func validateSubmission(sub Submission) (domain.Report, error) {
	if len(sub.PDF) == 0 {
		return domain.Report{}, validationf("PDF file is required.")
	}
	if !bytes.HasPrefix(sub.PDF, []byte("%PDF-")) {
		return domain.Report{}, validationf("Uploaded file is not a PDF.")
	}

	missing := []string{}
	require := func(name, value string) string {
		value = strings.TrimSpace(value)
		if value == "" {
			missing = append(missing, name)
		}
		return value
	}
	slug := require("slug", sub.Slug)
	company := require("company", sub.Company)
	ticker := require("ticker", sub.Ticker)
	sector := require("sector", sub.Sector)
	analyst := require("analyst", sub.Analyst)
	publishDate := require("publish_date", sub.PublishDate)
	summary := require("summary", sub.Summary)
	thesis := require("thesis", sub.Thesis)
	cycleRaw := require("cycle", sub.Cycle)
	if len(missing) > 0 {
		return domain.Report{}, validationf("Missing required fields: %s.", strings.Join(missing, ", "))
	}

	cycle, err := strconv.Atoi(cycleRaw)
	if err != nil {
		return domain.Report{}, validationf("cycle must be a whole number.")
	}
	if cycle < 1 {
		return domain.Report{}, validationf("cycle must be a positive number.")
	}
	if !domain.ValidSector(sector) {
		return domain.Report{}, validationf("sector %q is not a known sector.", sector)
	}
	if _, err := time.Parse(domain.DateLayout, publishDate); err != nil {
		return domain.Report{}, validationf("publish_date must be a %s date.", domain.DateLayout)
	}

	return domain.Report{
		Slug:        slug,
		Company:     company,
		Ticker:      ticker,
		Sector:      sector,
		Cycle:       cycle,
		Analyst:     analyst,
		PublishDate: publishDate,
		Summary:     summary,
		Thesis:      thesis,
		KeyRisks:    SplitList(sub.KeyRisks),
		Sources:     SplitList(sub.Sources),
	}, nil
}

// SplitList splits a free-text block into trimmed entries on line breaks,
// pipes, or commas, dropping empties.
func SplitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == '|' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		out = append(out, field)
	}
	return out
}

// SanitizeFilename keeps word characters, dots, dashes, parens, and spaces;
// everything else collapses to a single underscore. Prevents path injection
// through uploaded filenames.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		safe := r == '.' || r == '-' || r == '_' || r == '(' || r == ')' || r == ' ' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if safe {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_ ")
}

// pageCount inspects the PDF and returns its page count, or 0 when the file
// cannot be parsed. Best-effort metadata only; parse failures never reject
// an upload.
func pageCount(buf []byte) (pages int) {
	defer func() {
		// The parser panics on some malformed files.
		if recover() != nil {
			pages = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

// ListReports returns reports newest-first, optionally filtered by sector
// and a case-insensitive company/ticker/analyst search.
func (a *App) ListReports(sector, query string) ([]domain.Report, error) {
	reports, err := a.store.ListReports()
	if err != nil {
		return nil, err
	}
	sector = strings.TrimSpace(sector)
	query = strings.ToLower(strings.TrimSpace(query))
	if sector == "" && query == "" {
		return reports, nil
	}
	filtered := make([]domain.Report, 0, len(reports))
	for _, r := range reports {
		if sector != "" && sector != "All Sectors" && r.Sector != sector {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(r.Company), query) &&
			!strings.Contains(strings.ToLower(r.Ticker), query) &&
			!strings.Contains(strings.ToLower(r.Analyst), query) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

// GetReport retrieves one report by slug.
func (a *App) GetReport(slug string) (domain.Report, bool, error) {
	return a.store.GetReportBySlug(slug)
}

// OpenPDF resolves a report's effective PDF location and streams it.
// An absolute pdfUrl is fetched verbatim; otherwise the value is a
// bucket-relative key served straight from the object store.
func (a *App) OpenPDF(ctx context.Context, slug string) (io.ReadCloser, string, error) {
	report, ok, err := a.store.GetReportBySlug(slug)
	if err != nil {
		return nil, "", err
	}
	if !ok || strings.TrimSpace(report.PDFURL) == "" {
		return nil, "", ErrReportNotFound
	}
	pdfURL := strings.TrimSpace(report.PDFURL)
	if strings.HasPrefix(pdfURL, "http://") || strings.HasPrefix(pdfURL, "https://") {
		return a.fetchPDF(ctx, pdfURL)
	}
	key := strings.TrimPrefix(strings.TrimLeft(pdfURL, "/"), a.bucket+"/")
	body, contentType, err := a.objects.Get(ctx, key)
	if err != nil {
		return nil, "", &UpstreamError{Op: "storage fetch", Body: err.Error()}
	}
	return body, contentType, nil
}

func (a *App) fetchPDF(ctx context.Context, url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &UpstreamError{Op: "pdf fetch", Body: err.Error()}
	}
	req.Header.Set("Cache-Control", "no-store")
	resp, err := a.fetch.Do(req)
	if err != nil {
		return nil, "", &UpstreamError{Op: "pdf fetch", Body: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, "", &UpstreamError{Op: "pdf fetch", Body: "unable to load report PDF: " + resp.Status}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return resp.Body, contentType, nil
}

// SubmitContact validates and relays a contact-form message.
func (a *App) SubmitContact(ctx context.Context, msg mailer.Message) error {
	if strings.TrimSpace(msg.Name) == "" ||
		strings.TrimSpace(msg.Email) == "" ||
		strings.TrimSpace(msg.Subject) == "" ||
		strings.TrimSpace(msg.Message) == "" {
		return validationf("All fields are required.")
	}
	if a.mail == nil {
		return ErrMailNotConfigured
	}
	return a.mail.Send(ctx, msg)
}
