package events

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/example/image-picker/internal/logging"
	"github.com/example/image-picker/internal/permission"
)

func TestBroadcasterDeliversToSubscribers(t *testing.T) {
	b := NewBroadcaster()
	if b.HasForeground() {
		t.Fatal("no subscriber yet, expected no foreground")
	}

	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	if !b.HasForeground() || b.Subscribers() != 2 {
		t.Fatalf("subscribers = %d, want 2", b.Subscribers())
	}

	evt := Event{Type: LaunchCamera, RequestID: "req-1"}
	if err := b.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.RequestID != "req-1" || got.Type != LaunchCamera {
				t.Errorf("subscriber %d got %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive the event", i)
		}
	}

	unsub1()
	unsub1()
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers after unsubscribe = %d, want 1", b.Subscribers())
	}
	if _, ok := <-ch1; ok {
		t.Fatal("expected unsubscribed channel to be closed")
	}
}

func TestBroadcasterSkipsFullSubscribers(t *testing.T) {
	b := NewBroadcaster()
	_, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 100; i++ {
		if err := b.Publish(context.Background(), Event{Type: LaunchPicker}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
}

type stubChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
}

func (s *stubChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	s.exchange = exchange
	s.key = key
	s.msgs = append(s.msgs, msg)
	return s.err
}

func TestAMQPPublisherSendsJSON(t *testing.T) {
	ch := &stubChannel{}
	p := NewAMQPPublisher(ch, "picker_events", zap.NewNop())

	evt := Event{Type: LaunchPicker, RequestID: "req-9", ShowCamera: true, Time: time.Unix(100, 0).UTC()}
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ch.key != "picker_events" || ch.exchange != "" {
		t.Fatalf("published to exchange=%q key=%q", ch.exchange, ch.key)
	}
	msg := ch.msgs[0]
	if msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("delivery mode = %d, want persistent", msg.DeliveryMode)
	}
	if msg.MessageId != "req-9" || msg.Type != string(LaunchPicker) || msg.ContentType != "application/json" {
		t.Fatalf("unexpected message metadata: %+v", msg)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if !decoded.ShowCamera || decoded.RequestID != "req-9" {
		t.Fatalf("unexpected body: %+v", decoded)
	}
	if !p.HasForeground() {
		t.Fatal("publisher without a tracked connection reports foreground")
	}
}

func TestAMQPPublisherWrapsErrors(t *testing.T) {
	p := NewAMQPPublisher(&stubChannel{err: errors.New("channel closed")}, "q", zap.NewNop())

	err := p.Publish(context.Background(), Event{Type: LaunchCamera, RequestID: "req-2"})
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "events.amqp_publish" || opErr.RequestID != "req-2" {
		t.Fatalf("unexpected operation error: %+v", opErr)
	}
}

type recordingPublisher struct {
	events []Event
}

func (r *recordingPublisher) Publish(ctx context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return nil
}

func TestLauncherEvents(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewLauncher(pub)
	ctx := context.Background()

	_ = l.LaunchPicker(ctx, "a", true)
	_ = l.LaunchPicker(ctx, "b", false)
	_ = l.LaunchCamera(ctx, "c")
	_ = l.RequestPermissions(ctx, []permission.Capability{permission.Camera, permission.ReadExternalStorage})
	_ = l.RequestFinished(ctx, "c", "success")

	if len(pub.events) != 5 {
		t.Fatalf("events = %d, want 5", len(pub.events))
	}
	if e := pub.events[0]; e.Type != LaunchPicker || !e.ShowCamera || e.RequestID != "a" {
		t.Errorf("ask-user picker event = %+v", e)
	}
	if e := pub.events[1]; e.ShowCamera {
		t.Errorf("gallery picker must hide the camera option: %+v", e)
	}
	if e := pub.events[2]; e.Type != LaunchCamera {
		t.Errorf("camera event = %+v", e)
	}
	if e := pub.events[3]; !reflect.DeepEqual(e.Permissions, []string{"CAMERA", "READ_EXTERNAL_STORAGE"}) {
		t.Errorf("permission event = %+v", e)
	}
	if e := pub.events[4]; e.Type != RequestFinished || e.Outcome != "success" {
		t.Errorf("finished event = %+v", e)
	}
	for _, e := range pub.events {
		if e.Time.IsZero() {
			t.Errorf("event %s has no timestamp", e.Type)
		}
	}
}
