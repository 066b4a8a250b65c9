// Command uploadctl is the analyst-side console for the research API.
// It signs in against the identity provider, keeps the session fresh on
// disk, and drives the report upload endpoint.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"havenresearch/internal/identity"
	"havenresearch/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "login":
		err = runLogin(ctx, os.Args[2:])
	case "whoami":
		err = runWhoami(ctx, os.Args[2:])
	case "upload":
		err = runUpload(ctx, os.Args[2:])
	case "logout":
		err = runLogout()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: uploadctl <command> [flags]

commands:
  login   -email <addr>      sign in and store a session
  whoami                     show the stored identity and access decision
  upload  [flags] -pdf file  upload a report PDF with metadata
  logout                     discard the stored session

environment:
  HAVEN_API_URL   research API base URL (default http://localhost:8080)
  AUTH_URL        identity provider base URL
  AUTH_ANON_KEY   identity provider API key`)
}

func apiBaseURL() string {
	if v := strings.TrimSpace(os.Getenv("HAVEN_API_URL")); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:8080"
}

func authClient() (*identity.Client, error) {
	authURL := strings.TrimSpace(os.Getenv("AUTH_URL"))
	anonKey := strings.TrimSpace(os.Getenv("AUTH_ANON_KEY"))
	if authURL == "" || anonKey == "" {
		return nil, errors.New("AUTH_URL and AUTH_ANON_KEY must be set")
	}
	return identity.NewClient(authURL, anonKey), nil
}

func sessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "havenresearch", "session.json"), nil
}

func sessionManager() (*session.Manager, error) {
	path, err := sessionPath()
	if err != nil {
		return nil, err
	}
	client, err := authClient()
	if err != nil {
		return nil, err
	}
	return session.NewManager(path, client), nil
}

func runLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	_ = fs.Parse(args)
	if strings.TrimSpace(*email) == "" {
		return errors.New("-email is required")
	}

	password := os.Getenv("UPLOADCTL_PASSWORD")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password is required")
	}

	client, err := authClient()
	if err != nil {
		return err
	}
	pair, err := client.Login(ctx, strings.TrimSpace(*email), password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	if err := mgr.Set(session.Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(pair.ExpiresIn) * time.Second),
		Email:        strings.ToLower(strings.TrimSpace(*email)),
	}); err != nil {
		return err
	}
	fmt.Println("signed in as", strings.ToLower(strings.TrimSpace(*email)))
	return nil
}

func runWhoami(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	_ = fs.Parse(args)

	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	sess, err := mgr.RefreshIfNeeded(ctx)
	if errors.Is(err, session.ErrSignedOut) {
		return errors.New("signed out; run uploadctl login")
	}
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL()+"/api/system/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	var dec struct {
		Allowed bool   `json:"allowed"`
		Email   string `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&dec); err != nil {
		return err
	}
	status := "denied"
	if dec.Allowed {
		status = "allowed"
	}
	fmt.Printf("%s (%s)\n", dec.Email, status)
	return nil
}

func runUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	pdfPath := fs.String("pdf", "", "path to the report PDF")
	slug := fs.String("slug", "", "report slug")
	company := fs.String("company", "", "company name")
	ticker := fs.String("ticker", "", "ticker symbol")
	sector := fs.String("sector", "", "sector")
	cycle := fs.String("cycle", "", "research cycle number")
	analyst := fs.String("analyst", "", "analyst name")
	publishDate := fs.String("publish-date", "", "publish date (YYYY-MM-DD)")
	summary := fs.String("summary", "", "one-paragraph summary")
	thesis := fs.String("thesis", "", "investment thesis")
	keyRisks := fs.String("key-risks", "", "key risks, comma or pipe separated")
	sources := fs.String("sources", "", "sources, comma or pipe separated")
	_ = fs.Parse(args)
	if strings.TrimSpace(*pdfPath) == "" {
		return errors.New("-pdf is required")
	}

	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	sess, err := mgr.RefreshIfNeeded(ctx)
	if errors.Is(err, session.ErrSignedOut) {
		return errors.New("signed out; run uploadctl login")
	}
	if err != nil {
		return err
	}

	pdfBytes, err := os.ReadFile(*pdfPath)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"slug":         *slug,
		"company":      *company,
		"ticker":       *ticker,
		"sector":       *sector,
		"cycle":        *cycle,
		"analyst":      *analyst,
		"publish_date": *publishDate,
		"summary":      *summary,
		"thesis":       *thesis,
		"key_risks":    *keyRisks,
		"sources":      *sources,
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("pdf", filepath.Base(*pdfPath))
	if err != nil {
		return err
	}
	if _, err := part.Write(pdfBytes); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBaseURL()+"/api/system/reports", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	var result struct {
		PDFURL string `json:"pdfUrl"`
		Report struct {
			Slug      string `json:"slug"`
			PageCount int    `json:"pageCount"`
		} `json:"report"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return err
	}
	fmt.Printf("uploaded %s (%d pages)\n%s\n", result.Report.Slug, result.Report.PageCount, result.PDFURL)
	return nil
}

func runLogout() error {
	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	if err := mgr.Clear(); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("%s (%s)", payload.Error, resp.Status)
	}
	return fmt.Errorf("request failed: %s", resp.Status)
}
