package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSend_PostsMessage(t *testing.T) {
	var received Message

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/notifications" {
			t.Errorf("path = %s, want /api/notifications", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	err := c.Send(context.Background(), Message{
		Kind:      KindServiceAssigned,
		ServiceID: "svc-1",
		QuoteID:   "q-1",
	})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}

	if received.Kind != KindServiceAssigned || received.ServiceID != "svc-1" {
		t.Fatalf("unexpected message: %+v", received)
	}
}

func TestSend_NotConfigured(t *testing.T) {
	var c *Client

	if err := c.Send(context.Background(), Message{Kind: KindQuoteSubmitted}); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}

func TestSend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	if err := c.Send(context.Background(), Message{Kind: KindQuoteSubmitted}); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}
