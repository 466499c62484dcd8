package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"rebind/internal/config"
	"rebind/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyConversionCompleted(context.Background(), "book.epub", "book.cbz", 12); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceSendsPayload(t *testing.T) {
	var gotTitle, gotTags, gotPriority, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyConversionFailed(context.Background(), "/books/comic.epub", "engine crashed"); err != nil {
		t.Fatal(err)
	}
	if gotTitle != "Rebind - Conversion Failed" {
		t.Fatalf("title = %q", gotTitle)
	}
	if gotTags != "rebind,convert,failed" {
		t.Fatalf("tags = %q", gotTags)
	}
	if gotPriority != "high" {
		t.Fatalf("priority = %q", gotPriority)
	}
	if gotBody != "comic.epub failed: engine crashed" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestNtfyServiceSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from ntfy failure response")
	}
}
