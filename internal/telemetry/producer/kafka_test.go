package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"authcore/internal/telemetry/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaProducer_Unconfigured(t *testing.T) {
	if p := NewKafkaProducer(nil, "topic"); p != nil {
		t.Error("no brokers should yield nil producer")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("empty topic should yield nil producer")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), domain.NewEvent("x", "test")); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "events"}
	event := domain.NewEvent(domain.EventSessionRotated, "engine")
	event.UserID = 17

	if err := p.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "17" {
		t.Errorf("key = %q, want 17", msg.Key)
	}
	var decoded domain.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if decoded.EventType != domain.EventSessionRotated || decoded.UserID != 17 {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != domain.EventSessionRotated {
		t.Errorf("headers = %+v", msg.Headers)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close = %v, closed = %v", err, w.closed)
	}
}

func TestKafkaProducer_EmitError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaProducer{writer: w, topic: "events"}
	if err := p.Emit(context.Background(), domain.NewEvent("x", "test")); err == nil {
		t.Fatal("expected write error")
	}
}
