// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestLineDecoderCompleteLine(t *testing.T) {
	d := NewLineDecoder()
	chunks := d.Feed([]byte(`{"content":"hello","done":false}` + "\n"))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "hello" || chunks[0].Done {
		t.Errorf("unexpected chunk %+v", chunks[0])
	}
}

func TestLineDecoderPartialAcrossFeeds(t *testing.T) {
	d := NewLineDecoder()

	// First half of a line yields nothing.
	chunks := d.Feed([]byte(`{"content":"hel`))
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for partial line, got %d", len(chunks))
	}
	if d.Pending() == 0 {
		t.Error("expected buffered trailing bytes")
	}

	// Completing the line yields the frame.
	chunks = d.Feed([]byte(`lo","done":false}` + "\n"))
	if len(chunks) != 1 || chunks[0].Text != "hello" {
		t.Fatalf("expected hello chunk, got %+v", chunks)
	}
	if d.Pending() != 0 {
		t.Errorf("expected empty buffer, %d bytes pending", d.Pending())
	}
}

func TestLineDecoderSplitUTF8(t *testing.T) {
	d := NewLineDecoder()
	full := []byte(`{"content":"日本語","done":false}` + "\n")

	// Split in the middle of a multi-byte character.
	mid := 15
	var chunks []Chunk
	chunks = append(chunks, d.Feed(full[:mid])...)
	chunks = append(chunks, d.Feed(full[mid:])...)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "日本語" {
		t.Errorf("multi-byte content corrupted: %q", chunks[0].Text)
	}
}

func TestLineDecoderMultipleLinesOneFeed(t *testing.T) {
	d := NewLineDecoder()
	input := `{"content":"a","done":false}` + "\n" +
		`{"content":"b","done":false}` + "\n" +
		`{"content":"","done":true,"metadata":{"model":"x"}}` + "\n"

	chunks := d.Feed([]byte(input))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "a" || chunks[1].Text != "b" {
		t.Errorf("chunks out of order: %+v", chunks)
	}
	if !chunks[2].Done {
		t.Error("final chunk should be done")
	}
	if chunks[2].Meta["model"] != "x" {
		t.Errorf("metadata not decoded: %+v", chunks[2].Meta)
	}
}

func TestLineDecoderSkipsMalformedLines(t *testing.T) {
	d := NewLineDecoder()
	input := `{"content":"ok","done":false}` + "\n" +
		`{not json at all` + "\n" +
		`{"content":"still ok","done":false}` + "\n"

	chunks := d.Feed([]byte(input))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (malformed skipped), got %d", len(chunks))
	}
	if d.Skipped() != 1 {
		t.Errorf("expected 1 skipped line, got %d", d.Skipped())
	}
}

func TestLineDecoderLogsEachMalformedLine(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	d := NewLineDecoder()
	// Ends with a done frame, so no end-of-stream path runs; the skip
	// must be logged at decode time.
	input := `{not json at all` + "\n" +
		`also garbage` + "\n" +
		`{"content":"","done":true}` + "\n"
	d.Feed([]byte(input))

	if n := strings.Count(buf.String(), "malformed stream line"); n != 2 {
		t.Errorf("expected 2 skip log lines, got %d: %q", n, buf.String())
	}
}

func TestLineDecoderSkipsEmptyLines(t *testing.T) {
	d := NewLineDecoder()
	chunks := d.Feed([]byte("\n\n" + `{"content":"x","done":false}` + "\n\n"))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if d.Skipped() != 0 {
		t.Errorf("empty lines must not count as malformed, got %d", d.Skipped())
	}
}

func TestLineDecoderFlushTrailingLine(t *testing.T) {
	d := NewLineDecoder()
	if chunks := d.Feed([]byte(`{"content":"tail","done":true}`)); len(chunks) != 0 {
		t.Fatalf("no newline yet, expected 0 chunks, got %d", len(chunks))
	}
	chunks := d.Flush()
	if len(chunks) != 1 || chunks[0].Text != "tail" || !chunks[0].Done {
		t.Fatalf("Flush did not decode trailing line: %+v", chunks)
	}
}
