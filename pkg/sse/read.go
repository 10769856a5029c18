package sse

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/papercomputeco/veneer/pkg/llm"
)

// Read pulls chunks from r through d and calls fn for every event in arrival
// order. It returns nil once the [DONE] sentinel or EOF is reached, the first
// error returned by fn, or the context error if ctx is cancelled.
//
// Cancelling ctx does not by itself unblock a pending r.Read; callers reading
// from a network body should close it on cancellation (an http.Request bound
// to ctx does this).
func Read(ctx context.Context, r io.Reader, d *Decoder, fn func(llm.StreamEvent) error) error {
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range d.Feed(buf[:n]) {
				if ferr := fn(ev); ferr != nil {
					return ferr
				}
			}
			if d.Done() {
				return nil
			}
		}

		if errors.Is(err, io.EOF) {
			for _, ev := range d.Close() {
				if ferr := fn(ev); ferr != nil {
					return ferr
				}
			}
			return nil
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("reading stream: %w", err)
		}
	}
}
