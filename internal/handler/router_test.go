package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voicemail-bridge/internal/config"
	"voicemail-bridge/internal/handler"
	"voicemail-bridge/internal/security"
	callService "voicemail-bridge/internal/service/call"
	inboxService "voicemail-bridge/internal/service/inbox"
	"voicemail-bridge/internal/service/summarizer"
	"voicemail-bridge/internal/service/voice"
	"voicemail-bridge/internal/store"
)

// setupServer wires the full stack with a temp database, no message source
// and the fallback-only summarizer.
func setupServer(t *testing.T) http.Handler {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Twilio: config.TwilioConfig{Voice: "Polly.Joanna", Language: "en-US"},
		Call:   config.CallConfig{MaxMessagesPerCall: 8, MaxFollowupTurns: 6, SessionTTL: 4 * time.Hour},
	}

	inboxSvc := inboxService.NewService(nil, st, 50)
	summarizerSvc, err := summarizer.NewService(context.Background(), nil, 5*time.Second)
	if err != nil {
		t.Fatalf("new summarizer: %v", err)
	}
	presenter := voice.NewPresenter(cfg.Twilio)
	validator := security.NewValidator(cfg.Twilio)
	callSvc := callService.NewService(st, inboxSvc, summarizerSvc, presenter, cfg.Call, 0)

	return handler.NewRouter(st, inboxSvc, callSvc, validator, cfg)
}

func getJSON(t *testing.T, r http.Handler, path string, wantStatus int) map[string]string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != wantStatus {
		t.Fatalf("GET %s: expected %d, got %d", path, wantStatus, resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET %s: decode body: %v", path, err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	r := setupServer(t)

	body := getJSON(t, r, "/healthz", http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("unexpected healthz body: %v", body)
	}
}

func TestReadyz(t *testing.T) {
	r := setupServer(t)

	body := getJSON(t, r, "/readyz", http.StatusOK)
	if body["status"] != "ready" {
		t.Fatalf("unexpected readyz body: %v", body)
	}
}

func TestSyncWithoutSource(t *testing.T) {
	r := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]int
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["inserted"] != 0 || body["unread"] != 0 {
		t.Fatalf("unexpected sync body: %v", body)
	}
}

func TestIncomingCallWithEmptyMailbox(t *testing.T) {
	r := setupServer(t)

	// Readiness holds before the call.
	if body := getJSON(t, r, "/readyz", http.StatusOK); body["status"] != "ready" {
		t.Fatalf("unexpected readyz body: %v", body)
	}

	form := url.Values{"CallSid": {"CA1"}}
	req := httptest.NewRequest(http.MethodPost, "/voice/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	script := resp.Body.String()
	if !strings.Contains(script, "no unread messages") {
		t.Fatalf("expected no-unread narration, got: %s", script)
	}
	if !strings.Contains(script, "<Hangup>") {
		t.Fatalf("expected the call to end, got: %s", script)
	}

	// And still ready afterwards.
	if body := getJSON(t, r, "/readyz", http.StatusOK); body["status"] != "ready" {
		t.Fatalf("unexpected readyz body: %v", body)
	}
}

func TestFollowupWithoutContext(t *testing.T) {
	r := setupServer(t)

	form := url.Values{"CallSid": {"CA-unknown"}, "SpeechResult": {"anything new?"}}
	req := httptest.NewRequest(http.MethodPost, "/voice/followup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "no context for this call") {
		t.Fatalf("expected no-context narration, got: %s", resp.Body.String())
	}
}
