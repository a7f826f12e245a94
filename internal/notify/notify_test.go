package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kebairia/sqlbak/internal/logger"
)

func TestNotifySlackPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("invalid JSON body: %v", err)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
	}))
	defer srv.Close()

	NewWebhook(srv.URL, TypeSlack, logger.Global()).Notify("2 of 5 backups failed")

	if got["text"] != "2 of 5 backups failed" {
		t.Fatalf("slack payload = %v", got)
	}
}

func TestNotifyDiscordPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	NewWebhook(srv.URL, TypeDiscord, logger.Global()).Notify("backup run failed")

	if got["content"] != "backup run failed" {
		t.Fatalf("discord payload = %v", got)
	}
}

func TestNotifySwallowsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Must not panic or propagate anything.
	NewWebhook(srv.URL, TypeSlack, logger.Global()).Notify("msg")
}

func TestNotifySkippedWithoutURL(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	NewWebhook("", TypeSlack, logger.Global()).Notify("msg")
	if called {
		t.Fatal("webhook called despite empty URL")
	}
}
