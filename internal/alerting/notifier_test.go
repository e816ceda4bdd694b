package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{Recipient: "user@example.com", Subject: "Price Alert: ethereum", Body: "up 4.00%"}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("telegram notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "Price Alert: ethereum") {
		t.Fatalf("text should carry the subject: %#v", received)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Subject: "x", Body: "y"}); err == nil {
		t.Fatal("ok=false must be an error")
	}
}

func TestPriceMoveNotificationBody(t *testing.T) {
	oldTS := time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC)
	newTS := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	note := PriceMoveNotification("ops@example.com", "ethereum",
		decimal.NewFromFloat(4.0), decimal.NewFromInt(100), decimal.NewFromInt(104), oldTS, newTS)

	if note.Subject != "Price Alert: ethereum" {
		t.Fatalf("unexpected subject %q", note.Subject)
	}
	if !strings.Contains(note.Body, "increased by 4.00% in the last hour") {
		t.Fatalf("body should carry two-decimal percentage: %q", note.Body)
	}
	if !strings.Contains(note.Body, "$100") || !strings.Contains(note.Body, "$104") {
		t.Fatalf("body should carry both prices: %q", note.Body)
	}
}

func TestTargetHitNotificationBody(t *testing.T) {
	note := TargetHitNotification("user@example.com", "polygon", decimal.NewFromInt(1001), decimal.NewFromInt(1000))
	if note.Recipient != "user@example.com" {
		t.Fatalf("unexpected recipient %q", note.Recipient)
	}
	if !strings.Contains(note.Body, "reached $1001") || !strings.Contains(note.Body, "set for $1000") {
		t.Fatalf("body should carry current and target prices: %q", note.Body)
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(ctx context.Context, note Notification) error {
	s.calls++
	return s.err
}

func TestMultiNotifierPartialFailure(t *testing.T) {
	good := &stubNotifier{}
	bad := &stubNotifier{err: errors.New("boom")}

	multi := NewMulti(good, bad)
	if err := multi.Notify(context.Background(), Notification{Subject: "x"}); err != nil {
		t.Fatalf("one surviving channel means success: %v", err)
	}
	if good.calls != 1 || bad.calls != 1 {
		t.Fatal("both channels must be attempted")
	}

	multi = NewMulti(bad)
	if err := multi.Notify(context.Background(), Notification{Subject: "x"}); err == nil {
		t.Fatal("all channels failing must be an error")
	}
}
