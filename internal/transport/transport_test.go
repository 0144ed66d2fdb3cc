// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// streamHandler writes NDJSON frames with an optional flush delay so
// tests can observe incremental delivery.
func streamHandler(frames []string, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			w.Write([]byte(f + "\n"))
			flusher.Flush()
			if delay > 0 {
				time.Sleep(delay)
			}
		}
	}
}

func TestOpenHappyPath(t *testing.T) {
	var gotPayload Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		streamHandler([]string{
			`{"content":"Hel","done":false}`,
			`{"content":"lo","done":false}`,
			`{"content":"","done":true,"metadata":{"model":"m"}}`,
		}, 0)(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var chunks []Chunk
	err := client.Open(context.Background(), NewPayload("hi", "sess1"), func(c Chunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if gotPayload.Message != "hi" || gotPayload.SessionID != "sess1" {
		t.Errorf("payload not sent correctly: %+v", gotPayload)
	}
	if gotPayload.Timestamp == "" {
		t.Error("payload timestamp missing")
	}
	if _, err := time.Parse(time.RFC3339, gotPayload.Timestamp); err != nil {
		t.Errorf("timestamp not RFC3339: %q", gotPayload.Timestamp)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Text+chunks[1].Text != "Hello" {
		t.Errorf("content chunks wrong: %+v", chunks)
	}
	if !chunks[2].Done {
		t.Error("last chunk should be done")
	}
}

func TestOpenIncrementalDelivery(t *testing.T) {
	server := httptest.NewServer(streamHandler([]string{
		`{"content":"a","done":false}`,
		`{"content":"b","done":false}`,
		`{"content":"","done":true}`,
	}, 30*time.Millisecond))
	defer server.Close()

	client := NewClient(server.URL)

	var arrivals []time.Time
	err := client.Open(context.Background(), NewPayload("x", ""), func(c Chunk) {
		arrivals = append(arrivals, time.Now())
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(arrivals) != 3 {
		t.Fatalf("expected 3 arrivals, got %d", len(arrivals))
	}
	// First chunk must arrive well before the stream finishes, not after
	// the full body is buffered.
	if arrivals[2].Sub(arrivals[0]) < 30*time.Millisecond {
		t.Error("chunks appear to have been delivered in one batch")
	}
}

func TestOpenStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		class  ErrorClass
	}{
		{http.StatusRequestTimeout, ClassTimeout},
		{http.StatusGatewayTimeout, ClassTimeout},
		{http.StatusTooManyRequests, ClassRateLimited},
		{http.StatusInternalServerError, ClassServer},
		{http.StatusBadGateway, ClassServer},
		{http.StatusBadRequest, ClassClient},
		{http.StatusMethodNotAllowed, ClassClient},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		client := NewClient(server.URL)
		err := client.Open(context.Background(), NewPayload("x", ""), func(Chunk) {
			t.Errorf("status %d: no chunks expected", tt.status)
		})
		server.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		var te *Error
		if !errors.As(err, &te) {
			t.Fatalf("status %d: expected *transport.Error, got %T", tt.status, err)
		}
		if te.Class != tt.class {
			t.Errorf("status %d: class = %s, want %s", tt.status, te.Class, tt.class)
		}
		if te.Status != tt.status {
			t.Errorf("status %d: recorded status = %d", tt.status, te.Status)
		}
	}
}

func TestOpenMalformedLinesSkipped(t *testing.T) {
	server := httptest.NewServer(streamHandler([]string{
		`{"content":"good","done":false}`,
		`garbage line`,
		`{"content":"","done":true}`,
	}, 0))
	defer server.Close()

	client := NewClient(server.URL)
	var texts []string
	err := client.Open(context.Background(), NewPayload("x", ""), func(c Chunk) {
		texts = append(texts, c.Text)
	})
	if err != nil {
		t.Fatalf("malformed line should not abort the stream: %v", err)
	}
	if len(texts) != 2 {
		t.Errorf("expected 2 chunks (garbage skipped), got %d", len(texts))
	}
}

func TestOpenCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte(`{"content":"first","done":false}` + "\n"))
		flusher.Flush()
		close(started)
		// Stall; the client should not wait for us.
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL)

	errc := make(chan error, 1)
	var count int
	go func() {
		errc <- client.Open(ctx, NewPayload("x", ""), func(Chunk) { count++ })
	}()

	<-started
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not unblock promptly after cancellation")
	}
	if count != 1 {
		t.Errorf("expected exactly 1 chunk before cancel, got %d", count)
	}
}

func TestOpenEndpointNotConfigured(t *testing.T) {
	client := NewClientWithConfig(Config{})
	err := client.Open(context.Background(), NewPayload("x", ""), func(Chunk) {})
	var te *Error
	if !errors.As(err, &te) || te.Class != ClassClient {
		t.Fatalf("expected client-class error, got %v", err)
	}
}

func TestSetEndpoint(t *testing.T) {
	client := NewClient("http://a.example")
	client.SetEndpoint("http://b.example")
	if got := client.Endpoint(); got != "http://b.example" {
		t.Errorf("Endpoint() = %q", got)
	}
}
