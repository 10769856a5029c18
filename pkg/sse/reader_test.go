package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/veneer/pkg/llm"
)

// drain reads every event from r until the source is exhausted.
func drain(r *TeeReader) []llm.StreamEvent {
	var events []llm.StreamEvent
	for {
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		if ev == nil {
			return events
		}
		events = append(events, *ev)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("client went away")
}

var _ = Describe("TeeReader", func() {
	var dst *bytes.Buffer

	BeforeEach(func() {
		dst = &bytes.Buffer{}
	})

	Describe("Next", func() {
		It("decodes delta events", func() {
			input := "data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
				"data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
				"data: [DONE]\n\n"
			r := NewTeeReader(strings.NewReader(input), dst)

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(*ev.Delta).To(Equal("Hello"))

			ev, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(*ev.Delta).To(Equal(" world"))

			ev, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Done).To(BeTrue())

			ev, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("decodes the trailing usage event", func() {
			input := "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":3,\"total_tokens\":15}}\n\n"
			events := drain(NewTeeReader(strings.NewReader(input), dst))

			Expect(events).To(HaveLen(1))
			Expect(*events[0].Usage.PromptTokens).To(Equal(12))
			Expect(*events[0].Usage.CompletionTokens).To(Equal(3))
			Expect(*events[0].Usage.TotalTokens).To(Equal(15))
		})

		It("returns nil on empty input", func() {
			ev, err := NewTeeReader(strings.NewReader(""), dst).Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("yields an unterminated final line at end of stream", func() {
			input := "data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"
			events := drain(NewTeeReader(strings.NewReader(input), dst))

			Expect(events).To(HaveLen(1))
			Expect(*events[0].Delta).To(Equal("tail"))
		})

		It("surfaces destination write errors", func() {
			r := NewTeeReader(strings.NewReader("data: [DONE]\n\n"), failingWriter{})

			_, err := r.Next()
			Expect(err).To(MatchError("client went away"))
		})

		It("surfaces source read errors", func() {
			src := io.MultiReader(strings.NewReader("data: "), iotestErrReader{})
			r := NewTeeReader(src, dst)

			_, err := r.Next()
			Expect(err).To(MatchError("connection reset"))
		})
	})

	Describe("verbatim forwarding", func() {
		It("forwards every byte including \\n\\n delimiters", func() {
			input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n"
			r := NewTeeReader(strings.NewReader(input), dst)
			drain(r)

			Expect(dst.String()).To(Equal(input))
			Expect(r.Written()).To(Equal(int64(len(input))))
		})

		It("forwards comments, other fields and CRLF framing untouched", func() {
			input := ": keep-alive\r\nevent: message\r\nid: 7\r\ndata: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\r\n\r\n"
			events := drain(NewTeeReader(strings.NewReader(input), dst))

			Expect(events).To(HaveLen(1))
			Expect(dst.String()).To(Equal(input))
		})

		It("keeps forwarding bytes after the [DONE] sentinel", func() {
			input := "data: [DONE]\n\n: trailing bytes\n"
			events := drain(NewTeeReader(strings.NewReader(input), dst))

			Expect(events).To(HaveLen(1))
			Expect(events[0].Done).To(BeTrue())
			Expect(dst.String()).To(Equal(input))
		})

		It("forwards malformed payloads it could not decode", func() {
			input := "data: {not json\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n"
			events := drain(NewTeeReader(strings.NewReader(input), dst))

			Expect(events).To(HaveLen(1))
			Expect(*events[0].Delta).To(Equal("ok"))
			Expect(dst.String()).To(Equal(input))
		})
	})
})

type iotestErrReader struct{}

func (iotestErrReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}
