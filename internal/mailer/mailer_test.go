package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendRelaysMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer re-key" {
			t.Errorf("unexpected authorization header: %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email-1"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "re-key", "site@haven.edu", "board@haven.edu")
	err := client.Send(context.Background(), Message{
		Name:    "Visitor",
		Email:   "visitor@example.com",
		Subject: "Coverage question",
		Message: "Line one\nLine two",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if got["from"] != "site@haven.edu" || got["to"] != "board@haven.edu" {
		t.Fatalf("unexpected addressing: %+v", got)
	}
	if got["subject"] != "Contact form: Coverage question" {
		t.Fatalf("unexpected subject: %v", got["subject"])
	}
	if got["reply_to"] != "visitor@example.com" {
		t.Fatalf("unexpected reply_to: %v", got["reply_to"])
	}
	text, _ := got["text"].(string)
	if !strings.Contains(text, "Name: Visitor") || !strings.Contains(text, "Line two") {
		t.Fatalf("unexpected text body: %q", text)
	}
	html, _ := got["html"].(string)
	if !strings.Contains(html, "Line one<br />Line two") {
		t.Fatalf("expected message line breaks in html body: %q", html)
	}
}

func TestSendEscapesHTML(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "re-key", "site@haven.edu", "board@haven.edu")
	err := client.Send(context.Background(), Message{
		Name:    "<script>alert(1)</script>",
		Email:   "visitor@example.com",
		Subject: "hi",
		Message: "hello",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	html, _ := got["html"].(string)
	if strings.Contains(html, "<script>") {
		t.Fatalf("html body must escape markup: %q", html)
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Fatalf("expected escaped markup in html body: %q", html)
	}
}

func TestSendSurfacesUpstreamErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from address"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "re-key", "bad", "board@haven.edu")
	err := client.Send(context.Background(), Message{
		Name: "V", Email: "v@example.com", Subject: "s", Message: "m",
	})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", upstream.Status)
	}
	if !strings.Contains(upstream.Body, "invalid from address") {
		t.Fatalf("expected upstream body to be preserved: %q", upstream.Body)
	}
}
