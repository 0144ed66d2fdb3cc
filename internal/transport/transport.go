// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the HTTP streaming client for the chat
// webhook endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// =============================================================================
// TYPES
// =============================================================================

// Chunk is one incremental unit of assistant response text decoded from
// the stream.
type Chunk struct {
	Text string
	Done bool
	Meta map[string]interface{}
}

// StreamCallback is called for each chunk received during streaming.
// Callbacks are invoked synchronously in arrival order.
type StreamCallback func(chunk Chunk)

// Payload is the request body sent to the chat endpoint.
type Payload struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp string `json:"timestamp"` // ISO 8601
}

// NewPayload builds a payload for a message, stamping the current time.
func NewPayload(message, sessionID string) Payload {
	return Payload{
		Message:   message,
		SessionID: sessionID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the stream client.
type Config struct {
	// Endpoint is the chat webhook URL.
	Endpoint string

	// ConnectTimeout bounds connection establishment and TLS handshake.
	// The stream itself has no deadline; it is controlled via context.
	ConnectTimeout time.Duration

	// MaxLineBytes caps a single frame line. Lines beyond this are
	// malformed by definition and the stream is aborted.
	MaxLineBytes int

	// UserAgent for outbound requests.
	UserAgent string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		MaxLineBytes:   1 << 20, // 1MB
		UserAgent:      "relaychat/0.1.0",
	}
}

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// The client carries no overall timeout: streams are context-controlled.
// ConnectTimeout only bounds dialing and the TLS handshake.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client performs streaming chat requests against the webhook endpoint.
// It is safe for concurrent use; the endpoint may be swapped at runtime
// when configuration is reloaded.
type Client struct {
	mu         sync.RWMutex
	config     Config
	httpClient *http.Client
}

// NewClient creates a stream client for the given endpoint.
func NewClient(endpoint string) *Client {
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	return NewClientWithConfig(cfg)
}

// NewClientWithConfig creates a stream client with custom configuration.
// Zero values are filled in with defaults.
func NewClientWithConfig(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.MaxLineBytes == 0 {
		cfg.MaxLineBytes = def.MaxLineBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	return &Client{
		config:     cfg,
		httpClient: newHTTPClient(cfg.ConnectTimeout),
	}
}

// SetEndpoint swaps the webhook URL. Used by configuration hot reload.
func (c *Client) SetEndpoint(endpoint string) {
	c.mu.Lock()
	c.config.Endpoint = endpoint
	c.mu.Unlock()
}

// Endpoint returns the current webhook URL.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Endpoint
}

// Open POSTs the payload and consumes the newline-delimited JSON
// response body, invoking callback for each decoded chunk as bytes
// arrive. It returns nil after a done frame or clean EOF, the context
// error if the stream was cancelled, or a classified *Error otherwise.
//
// Open does not buffer the full body: the first chunk is delivered as
// soon as its line is received.
func (c *Client) Open(ctx context.Context, payload Payload, callback StreamCallback) error {
	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	if cfg.Endpoint == "" {
		return &Error{Class: ClassClient, Message: "chat endpoint not configured"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Class: ClassClient, Message: "failed to marshal payload", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Class: ClassClient, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson, text/event-stream")
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Cancellation is a distinct outcome, not a transport failure.
			return ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Class: ClassTimeout, Message: "chat endpoint timed out", Cause: err}
		}
		return &Error{Class: ClassUnknown, Message: "request to chat endpoint failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the log line, then classify.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("transport: endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
		return &Error{
			Class:   classifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: statusMessage(resp.StatusCode),
		}
	}

	return c.consume(ctx, resp.Body, cfg.MaxLineBytes, callback)
}

// consume reads the response body incrementally and dispatches decoded
// chunks. Every read observes the context so a stop unblocks promptly.
func (c *Client) consume(ctx context.Context, body io.Reader, maxLine int, callback StreamCallback) error {
	decoder := NewLineDecoder()
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, chunk := range decoder.Feed(buf[:n]) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				callback(chunk)
				if chunk.Done {
					return nil
				}
			}
			if decoder.Pending() > maxLine {
				return &Error{
					Class:   ClassUnknown,
					Message: fmt.Sprintf("stream line exceeds %d bytes", maxLine),
				}
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err == io.EOF {
				// Decode a trailing line that arrived without a newline.
				for _, chunk := range decoder.Flush() {
					callback(chunk)
					if chunk.Done {
						return nil
					}
				}
				return nil
			}
			return &Error{Class: ClassUnknown, Message: "reading chat stream failed", Cause: err}
		}
	}
}
