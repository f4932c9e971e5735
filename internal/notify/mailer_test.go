package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ath-alerts/internal/subscribers"
)

func testMessage() Message {
	return Message{
		Recipient:       subscribers.Recipient{ID: 1, Email: "user@example.com", Name: "Pat"},
		AssetName:       "Bitcoin",
		AssetSymbol:     "BTC",
		NewATH:          decimal.NewFromInt(110),
		PreviousATH:     decimal.NewFromInt(100),
		PercentIncrease: decimal.NewFromInt(10),
		DetectedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMailSenderSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Fatalf("expected /messages path, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer api-key" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewMailSender(srv.URL, "api-key", "alerts@athwatcher.io", time.Second, zerolog.Nop())

	if err := sender.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("send should succeed: %v", err)
	}

	if received["to"] != "user@example.com" {
		t.Fatalf("unexpected recipient: %#v", received)
	}
	if received["from"] != "alerts@athwatcher.io" {
		t.Fatalf("unexpected from address: %#v", received)
	}
	if !strings.Contains(received["subject"], "all-time high") {
		t.Fatalf("unexpected subject %q", received["subject"])
	}
	if !strings.Contains(received["text"], "110") || !strings.Contains(received["text"], "10.00") {
		t.Fatalf("body should carry the new ath and percentage, got %q", received["text"])
	}
}

func TestMailSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewMailSender(srv.URL, "api-key", "alerts@athwatcher.io", time.Second, zerolog.Nop())

	if err := sender.Send(context.Background(), testMessage()); err == nil {
		t.Fatal("non-2xx mail api response must error")
	}
}
