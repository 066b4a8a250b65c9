package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"havenresearch/internal/app"
	"havenresearch/internal/mailer"
	"havenresearch/internal/util"
)

// Limiter gates requests per key.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	ContactLimiter Limiter // optional
	TrustedProxies *util.TrustedProxies
	MaxUploadBytes int64
}

// Server exposes the research-site HTTP API.
type Server struct {
	app            *app.App
	contactLimiter Limiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		contactLimiter: cfg.ContactLimiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("haven-api", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/system/me", s.handleMe)
	s.mux.HandleFunc("/api/system/reports", s.handleUploadReport)
	s.mux.HandleFunc("/api/research/reports", s.handleListReports)
	s.mux.HandleFunc("/api/research/reports/", s.handleReportBySlug)
	s.mux.HandleFunc("/api/research/report-pdf/", s.handleReportPDF)
	s.mux.HandleFunc("/api/contact", s.handleContact)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe is the console's UI-gating read: it answers "am I allowed"
// without side effects. The write path re-derives the same decision.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing access token.")
		return
	}
	dec, err := s.app.CheckAccess(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid access token.")
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) handleUploadReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing access token.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeError(w, http.StatusBadRequest, "PDF file is required.")
		return
	}
	defer file.Close()
	buf, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	sub := app.Submission{
		Slug:        r.FormValue("slug"),
		Company:     r.FormValue("company"),
		Ticker:      r.FormValue("ticker"),
		Sector:      r.FormValue("sector"),
		Cycle:       r.FormValue("cycle"),
		Analyst:     r.FormValue("analyst"),
		PublishDate: r.FormValue("publish_date"),
		Summary:     r.FormValue("summary"),
		Thesis:      r.FormValue("thesis"),
		KeyRisks:    r.FormValue("key_risks"),
		Sources:     r.FormValue("sources"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		PDF:         buf,
	}
	result, err := s.app.IngestReport(r.Context(), token, sub)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeIngestError(w http.ResponseWriter, err error) {
	var validation *app.ValidationError
	var upstream *app.UpstreamError
	switch {
	case errors.Is(err, app.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid access token.")
	case errors.Is(err, app.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "Access denied.")
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Msg)
	case errors.As(err, &upstream):
		writeError(w, http.StatusBadGateway, upstream.Body)
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	reports, err := s.app.ListReports(r.URL.Query().Get("sector"), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": reports,
		"count": len(reports),
	})
}

func (s *Server) handleReportBySlug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	slug := strings.TrimPrefix(r.URL.Path, "/api/research/reports/")
	if slug == "" || strings.Contains(slug, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	report, ok, err := s.app.GetReport(slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Report not found.")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	slug := strings.TrimPrefix(r.URL.Path, "/api/research/report-pdf/")
	if slug == "" || strings.Contains(slug, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	body, contentType, err := s.app.OpenPDF(r.Context(), slug)
	if err != nil {
		var upstream *app.UpstreamError
		switch {
		case errors.Is(err, app.ErrReportNotFound):
			writeError(w, http.StatusNotFound, "Report PDF not found.")
		case errors.As(err, &upstream):
			writeError(w, http.StatusBadGateway, "Unable to load report PDF.")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	defer body.Close()
	// Stream through the app so byte content and content type stay under
	// server control instead of redirecting clients to storage.
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.contactLimiter != nil && !s.contactLimiter.Allow(util.ClientIP(r, s.trustedProxies)) {
		writeError(w, http.StatusTooManyRequests, "Too many requests.")
		return
	}
	var msg mailer.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.SubmitContact(r.Context(), msg); err != nil {
		var validation *app.ValidationError
		var upstream *mailer.UpstreamError
		switch {
		case errors.As(err, &validation):
			writeError(w, http.StatusBadRequest, validation.Msg)
		case errors.Is(err, app.ErrMailNotConfigured):
			writeError(w, http.StatusInternalServerError, "Contact relay is not configured.")
		case errors.As(err, &upstream):
			writeError(w, http.StatusInternalServerError, upstream.Body)
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeFor(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "missing access token.":
		return "AUTH_MISSING_TOKEN"
	case message == "invalid access token.":
		return "AUTH_INVALID_TOKEN"
	case message == "access denied.":
		return "AUTH_FORBIDDEN"
	case message == "pdf file is required.":
		return "REPORT_PDF_REQUIRED"
	case message == "report not found.", message == "report pdf not found.":
		return "REPORT_NOT_FOUND"
	case message == "too many requests.":
		return "CONTACT_RATE_LIMITED"
	case message == "all fields are required.":
		return "CONTACT_INVALID_REQUEST"
	case message == "contact relay is not configured.":
		return "CONTACT_RELAY_UNCONFIGURED"
	case message == "invalid form data", message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REPORT_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "AUTH_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusBadGateway:
		return "UPSTREAM_FAILED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
