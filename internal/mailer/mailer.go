package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is a contact-form submission to relay.
type Message struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// UpstreamError carries the email API's error body so it can be surfaced to
// the caller.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("email relay failed with status %d", e.Status)
}

// Client relays contact messages through a Resend-compatible email API.
type Client struct {
	endpoint   string
	apiKey     string
	from       string
	to         string
	httpClient *http.Client
}

// NewClient constructs a mail relay client.
func NewClient(endpoint, apiKey, from, to string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		from:       from,
		to:         to,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send relays a contact message. A non-2xx upstream response becomes an
// *UpstreamError carrying the response body.
func (c *Client) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"from":     c.from,
		"to":       c.to,
		"subject":  "Contact form: " + msg.Subject,
		"reply_to": msg.Email,
		"text":     textBody(msg),
		"html":     htmlBody(msg),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/emails", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

func textBody(msg Message) string {
	return strings.Join([]string{
		"New contact form submission:",
		"Name: " + msg.Name,
		"Email: " + msg.Email,
		"Subject: " + msg.Subject,
		"",
		msg.Message,
	}, "\n")
}

func htmlBody(msg Message) string {
	var b strings.Builder
	b.WriteString("<h2>New contact form submission</h2>")
	b.WriteString("<p><strong>Name:</strong> " + htmlEscape(msg.Name) + "</p>")
	b.WriteString("<p><strong>Email:</strong> " + htmlEscape(msg.Email) + "</p>")
	b.WriteString("<p><strong>Subject:</strong> " + htmlEscape(msg.Subject) + "</p>")
	b.WriteString("<p><strong>Message:</strong></p>")
	b.WriteString("<p>" + strings.ReplaceAll(htmlEscape(msg.Message), "\n", "<br />") + "</p>")
	return b.String()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
