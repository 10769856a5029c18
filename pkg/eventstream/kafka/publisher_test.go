package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/veneer/pkg/eventstream"
	"github.com/papercomputeco/veneer/pkg/storage"
)

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var event *eventstream.TurnRecordedEvent

	BeforeEach(func() {
		now := time.Unix(1735689600, 0).UTC()
		event = eventstream.NewTurnRecordedEvent(
			storage.Turn{ID: "turn-1", Model: "m1", CreatedAt: now},
			eventstream.EventSource{Provider: "venice"},
			"/chat",
			now,
		)
	})

	Describe("NewPublisher", func() {
		It("requires brokers", func() {
			_, err := NewPublisher(Config{Topic: "t"})
			Expect(err).To(HaveOccurred())
		})

		It("requires a topic", func() {
			_, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}})
			Expect(err).To(HaveOccurred())
		})

		It("configures a writer for the topic", func() {
			p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "veneer.turns"})
			Expect(err).NotTo(HaveOccurred())

			w, ok := p.writer.(*kafkago.Writer)
			Expect(ok).To(BeTrue())
			Expect(w.Topic).To(Equal("veneer.turns"))
			Expect(w.WriteTimeout).To(Equal(10 * time.Second))
		})
	})

	Describe("PublishTurn", func() {
		It("writes one JSON message keyed by turn ID", func() {
			w := &recordingWriter{}
			p := &Publisher{writer: w}

			Expect(p.PublishTurn(context.Background(), event)).To(Succeed())
			Expect(w.msgs).To(HaveLen(1))

			msg := w.msgs[0]
			Expect(string(msg.Key)).To(Equal("turn-1"))
			Expect(msg.Headers).To(ContainElement(kafkago.Header{
				Key:   "event_type",
				Value: []byte(eventstream.EventTypeTurnRecorded),
			}))

			var decoded eventstream.TurnRecordedEvent
			Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
			Expect(decoded.EventID).To(Equal(event.EventID))
			Expect(decoded.Turn.Model).To(Equal("m1"))
		})

		It("rejects nil events", func() {
			p := &Publisher{writer: &recordingWriter{}}
			Expect(p.PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilTurnEvent))
		})

		It("wraps writer failures", func() {
			p := &Publisher{writer: &recordingWriter{err: errors.New("broker down")}}
			err := p.PublishTurn(context.Background(), event)
			Expect(err).To(MatchError(ContainSubstring("broker down")))
		})
	})

	It("closes the writer", func() {
		w := &recordingWriter{}
		p := &Publisher{writer: w}
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})

	It("parses broker lists", func() {
		Expect(ParseBrokers(" a:9092, ,b:9092 ")).To(Equal([]string{"a:9092", "b:9092"}))
		Expect(ParseBrokers("")).To(BeEmpty())
	})
})
