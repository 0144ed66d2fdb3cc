// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the HTTP streaming client for the chat
// webhook endpoint.
package transport

import (
	"bytes"
	"encoding/json"
	"log"
)

// =============================================================================
// INCREMENTAL LINE DECODER
// =============================================================================

// frame is the wire format of a single streamed line.
type frame struct {
	Content  string                 `json:"content"`
	Done     bool                   `json:"done"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// LineDecoder incrementally decodes newline-delimited JSON frames.
//
// Contract: Feed accepts partial UTF-8 byte chunks in arrival order,
// buffers until a newline, yields the parsed frames contained in the
// input, and carries incomplete trailing bytes over to the next call.
// A malformed line is skipped (counted via Skipped) without aborting
// the stream.
type LineDecoder struct {
	buf     bytes.Buffer
	skipped int
}

// NewLineDecoder creates an empty decoder.
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{}
}

// Feed appends p to the internal buffer and returns all complete frames
// decoded so far. The returned slice is nil when no complete line has
// arrived yet.
func (d *LineDecoder) Feed(p []byte) []Chunk {
	d.buf.Write(p)

	var chunks []Chunk
	for {
		raw := d.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			break
		}

		line := make([]byte, idx)
		copy(line, raw[:idx])
		d.buf.Next(idx + 1)

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			// Skip malformed lines; one bad frame must not kill the
			// stream. Content is not logged, only its size.
			d.skipped++
			log.Printf("transport: skipping malformed stream line (%d bytes)", len(line))
			continue
		}

		chunks = append(chunks, Chunk{
			Text: f.Content,
			Done: f.Done,
			Meta: f.Metadata,
		})
	}
	return chunks
}

// Flush decodes any buffered trailing line that arrived without a final
// newline. Call once at end of stream.
func (d *LineDecoder) Flush() []Chunk {
	if d.buf.Len() == 0 {
		return nil
	}
	rest := d.buf.Bytes()
	d.buf.Reset()
	if len(bytes.TrimSpace(rest)) == 0 {
		return nil
	}
	return d.Feed(append(rest, '\n'))
}

// Skipped returns the number of malformed lines dropped so far.
func (d *LineDecoder) Skipped() int {
	return d.skipped
}

// Pending returns the number of buffered bytes awaiting a newline.
func (d *LineDecoder) Pending() int {
	return d.buf.Len()
}
