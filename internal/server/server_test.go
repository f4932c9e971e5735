package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ath-alerts/internal/config"
	"ath-alerts/internal/pipeline"
)

type fakeRunner struct {
	summary pipeline.Summary
	err     error
	calls   int
}

func (f *fakeRunner) RunCycle(ctx context.Context) (pipeline.Summary, error) {
	f.calls++
	return f.summary, f.err
}

func newTestServer(runner CycleRunner, secret string) *Server {
	cfg := config.ServerConfig{ListenAddr: "127.0.0.1:0", TriggerSecret: secret}
	return New(cfg, runner, zerolog.Nop())
}

func doScan(t *testing.T, srv *Server, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/internal/ath-scan", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestScanSuccess(t *testing.T) {
	runner := &fakeRunner{summary: pipeline.Summary{Duration: 1500 * time.Millisecond, Notified: 2}}
	srv := newTestServer(runner, "s3cret")

	rec := doScan(t, srv, "Bearer s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp scanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success=true")
	}
	if resp.DurationMS != 1500 {
		t.Fatalf("expected duration_ms 1500, got %d", resp.DurationMS)
	}
	if resp.ATHCount != 2 {
		t.Fatalf("expected athCount 2, got %d", resp.ATHCount)
	}
	if runner.calls != 1 {
		t.Fatalf("expected one cycle run, got %d", runner.calls)
	}
}

func TestScanRejectsBadToken(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(runner, "s3cret")

	for _, auth := range []string{"", "Bearer wrong", "s3cret"} {
		rec := doScan(t, srv, auth)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("auth %q: expected 401, got %d", auth, rec.Code)
		}
	}
	if runner.calls != 0 {
		t.Fatalf("runner must not fire without a valid token, got %d calls", runner.calls)
	}
}

func TestScanUnavailableWithoutSecret(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, "")

	rec := doScan(t, srv, "Bearer anything")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestScanReportsRunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("feed exploded")}
	srv := newTestServer(runner, "s3cret")

	rec := doScan(t, srv, "Bearer s3cret")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected error payload, got %+v", resp)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
