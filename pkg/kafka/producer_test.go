package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func buildMessage(t *testing.T) Message {
	t.Helper()
	msg, err := NewMessage().
		WithKey("A-01").
		WithEventType("slot.reserved").
		WithValue(map[string]string{"slot_id": "A-01"}).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return msg
}

func TestMessageBuilder_FillsHeaders(t *testing.T) {
	msg := buildMessage(t)

	if msg.GetEventID() == "" {
		t.Error("event id not generated")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Error("timestamp header not set")
	}
	if msg.GetEventType() != "slot.reserved" {
		t.Errorf("event type = %q", msg.GetEventType())
	}

	var decoded map[string]string
	if err := msg.DecodeValue(&decoded); err != nil || decoded["slot_id"] != "A-01" {
		t.Errorf("DecodeValue() = %v, %v", decoded, err)
	}
}

func TestMessageBuilder_InvalidValue(t *testing.T) {
	_, err := NewMessage().WithKey("A-01").WithValue(make(chan int)).Build()
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("err = %v, want ErrInvalidMessage", err)
	}
}

func TestProducer_PublishRunsMiddlewareInOrder(t *testing.T) {
	writer := &fakeWriter{}
	p := NewProducerWithWriter(writer, nil, "parking.slot.lifecycle")

	var order []string
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		order = append(order, "first")
		return next(ctx, msg)
	})
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		order = append(order, "second")
		return next(ctx, msg)
	})

	if err := p.Publish(context.Background(), buildMessage(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("middleware order = %v", order)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("written = %d, want 1", len(writer.messages))
	}
	if string(writer.messages[0].Key) != "A-01" || header(writer.messages[0], HeaderEventType) != "slot.reserved" {
		t.Errorf("unexpected kafka message: %+v", writer.messages[0])
	}
}

func TestProducer_RejectsInvalidMessages(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{}, nil, "topic")

	if err := p.Publish(context.Background(), Message{Value: []byte("x")}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("empty key: err = %v", err)
	}
	if err := p.Publish(context.Background(), Message{Key: "A-01"}); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("empty value: err = %v", err)
	}
}

func TestProducer_PermanentFailureGoesToDLQ(t *testing.T) {
	writer := &fakeWriter{err: kafka.MessageSizeTooLarge}
	dlq := &fakeWriter{}
	p := NewProducerWithWriter(writer, dlq, "topic")

	err := p.Publish(context.Background(), buildMessage(t))
	var publishErr *PublishError
	if !errors.As(err, &publishErr) || publishErr.IsTransient() {
		t.Fatalf("err = %v, want permanent PublishError", err)
	}
	if len(dlq.messages) != 1 {
		t.Fatalf("dlq messages = %d, want 1", len(dlq.messages))
	}
	if header(dlq.messages[0], HeaderOriginalTopic) != "topic" {
		t.Errorf("dlq message missing original topic header")
	}
}

func TestProducer_TransientFailureSkipsDLQ(t *testing.T) {
	writer := &fakeWriter{err: context.DeadlineExceeded}
	dlq := &fakeWriter{}
	p := NewProducerWithWriter(writer, dlq, "topic")

	err := p.Publish(context.Background(), buildMessage(t))
	if ClassifyError(err) != ErrorTypeTransient {
		t.Errorf("ClassifyError() = %s, want transient", ClassifyError(err))
	}
	if len(dlq.messages) != 0 {
		t.Errorf("transient failure should not reach the DLQ")
	}
}

func TestProducer_Close(t *testing.T) {
	writer := &fakeWriter{}
	p := NewProducerWithWriter(writer, nil, "topic")

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !writer.closed {
		t.Error("writer not closed")
	}
	if err := p.Publish(context.Background(), buildMessage(t)); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("publish after close: err = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"deadline", context.DeadlineExceeded, ErrorTypeTransient},
		{"leader not available", kafka.LeaderNotAvailable, ErrorTypeTransient},
		{"message too large", kafka.MessageSizeTooLarge, ErrorTypePermanent},
		{"connection refused text", errors.New("dial tcp: connection refused"), ErrorTypeTransient},
		{"empty key", ErrEmptyKey, ErrorTypePermanent},
		{"other", errors.New("boom"), ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", got, tt.want)
			}
		})
	}
}
