// Package sse decodes the text/event-stream encoding used by chat completion
// streams. It is purpose-built for the "data: {json}" framing terminated by
// "data: [DONE]" and does not implement an SSE writer or server.
//
// Decoding is incremental: bytes arrive in network chunks whose boundaries do
// not line up with line or character boundaries, so the Decoder carries the
// trailing partial line over to the next call and only turns complete lines
// into text.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

const (
	// DataPrefix marks the lines that carry event payloads.
	DataPrefix = "data:"

	// DoneSentinel is the payload that terminates a stream.
	DoneSentinel = "[DONE]"

	// DefaultMaxLineBytes bounds a single line. Longer lines are dropped.
	DefaultMaxLineBytes = 4 << 20

	readBufferSize = 32 * 1024
)
