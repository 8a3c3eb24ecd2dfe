package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmeshcher/gopherfood/internal/model"
)

func testEnvelope() Envelope {
	return NewEnvelope(model.OrderStatusChanged{
		OrderID:   42,
		UserID:    7,
		From:      "pending",
		To:        "confirmed",
		ActorID:   1,
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
}

func TestWebhookSend_OK(t *testing.T) {
	env := testEnvelope()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/events" {
			t.Fatalf("path = %s, want /api/events", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q", ct)
		}

		var got struct {
			ID      string          `json:"id"`
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != env.ID.String() || got.Type != "order.status_changed" {
			t.Fatalf("unexpected envelope: %+v", got)
		}

		var payload model.OrderStatusChanged
		if err := json.Unmarshal(got.Payload, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.OrderID != 42 || payload.To != "confirmed" {
			t.Fatalf("unexpected payload: %+v", payload)
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	client := NewWebhookClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Send(ctx, env); err != nil {
		t.Fatalf("Send error: %v", err)
	}
}

func TestWebhookSend_TooManyRequestsRetriedOnce(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewWebhookClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Send(ctx, testEnvelope()); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestWebhookSend_TooManyRequestsTwice(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewWebhookClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Send(ctx, testEnvelope()); err == nil {
		t.Fatalf("expected error after repeated 429")
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestWebhookSend_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewWebhookClient(ts.URL)

	if err := client.Send(context.Background(), testEnvelope()); err == nil {
		t.Fatalf("expected error for 500")
	}
}

func TestWebhookSend_NotConfigured(t *testing.T) {
	var client *WebhookClient
	if err := client.Send(context.Background(), testEnvelope()); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := NewWebhookClient("").Send(context.Background(), testEnvelope()); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}
