package sse

import (
	"bytes"
	"log/slog"

	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/utils"
)

// Decoder turns raw stream chunks into StreamEvents. A Decoder serves exactly
// one stream and is not safe for concurrent use.
type Decoder struct {
	buf        []byte
	discarding bool
	done       bool
	closed     bool

	maxLine int
	logger  *slog.Logger
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithLogger sets the logger used to report skipped payloads.
func WithLogger(l *slog.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxLineBytes overrides DefaultMaxLineBytes.
func WithMaxLineBytes(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// NewDecoder returns a Decoder ready for the first chunk.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		maxLine: DefaultMaxLineBytes,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends chunk to the carry-over buffer and returns the events of every
// line completed by it, in order. Once the [DONE] sentinel has been seen, Feed
// returns the terminal event and ignores everything after it.
func (d *Decoder) Feed(chunk []byte) []llm.StreamEvent {
	if d.done || d.closed {
		return nil
	}

	var events []llm.StreamEvent
	for len(chunk) > 0 && !d.done {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.carry(chunk)
			break
		}

		line := chunk[:i]
		chunk = chunk[i+1:]

		if d.discarding {
			d.discarding = false
			d.buf = d.buf[:0]
			continue
		}

		if len(d.buf) > 0 {
			d.buf = append(d.buf, line...)
			line = d.buf
		}

		events = d.line(line, events)
		d.buf = d.buf[:0]
	}

	return events
}

// Close signals end-of-stream. A trailing line without a terminator is
// decoded as if it had one. Feed and Close return nothing afterwards.
func (d *Decoder) Close() []llm.StreamEvent {
	if d.closed {
		return nil
	}
	d.closed = true

	if d.done || d.discarding || len(d.buf) == 0 {
		d.buf = nil
		return nil
	}

	events := d.line(d.buf, nil)
	d.buf = nil
	return events
}

// Done reports whether the [DONE] sentinel was decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// carry keeps a partial line for the next chunk.
func (d *Decoder) carry(fragment []byte) {
	if d.discarding {
		return
	}

	if len(d.buf)+len(fragment) > d.maxLine {
		d.logger.Warn("dropping oversized stream line", "max_bytes", d.maxLine)
		d.discarding = true
		d.buf = d.buf[:0]
		return
	}

	d.buf = append(d.buf, fragment...)
}

// line decodes one complete line (without its "\n") and appends the
// resulting event, if any.
func (d *Decoder) line(raw []byte, events []llm.StreamEvent) []llm.StreamEvent {
	if len(raw) > d.maxLine {
		d.logger.Warn("dropping oversized stream line", "max_bytes", d.maxLine)
		return events
	}

	raw = bytes.TrimSuffix(raw, []byte{'\r'})

	payload, ok := bytes.CutPrefix(raw, []byte(DataPrefix))
	if !ok {
		// Comments, other SSE fields and blank keep-alive lines.
		return events
	}
	payload = bytes.TrimPrefix(payload, []byte{' '})

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return events
	}

	if string(trimmed) == DoneSentinel {
		d.done = true
		return append(events, llm.StreamEvent{Done: true})
	}

	ev, err := ParsePayload(trimmed)
	if err != nil {
		d.logger.Warn("skipping malformed stream payload",
			"error", err,
			"payload", utils.Truncate(string(trimmed), 120),
		)
		return events
	}

	if ev.Empty() {
		return events
	}

	return append(events, ev)
}
