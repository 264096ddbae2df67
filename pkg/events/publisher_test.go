package events

import (
	"context"
	"errors"
	"testing"
)

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	if err := pub.PublishCall(context.Background(), &CallCompletedEvent{Method: "echo"}); err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
	if err := pub.PublishMethodChanged(context.Background(), &MethodChangedEvent{Method: "echo"}); err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *CallCompletedEvent

	pub := NewCallbackPublisher(func(_ context.Context, event *CallCompletedEvent) error {
		captured = event
		return nil
	})

	event := &CallCompletedEvent{Method: "echo", Namespace: "default", Code: -3, CodeName: "INVALID_PARAM"}
	if err := pub.PublishCall(context.Background(), event); err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
	if captured == nil {
		t.Fatal("events:publisher_test - expected callback to be called")
	}
	if captured.Code != -3 {
		t.Errorf("events:publisher_test - expected code -3, got %d", captured.Code)
	}

	if err := pub.PublishMethodChanged(context.Background(), &MethodChangedEvent{Method: "echo"}); err != nil {
		t.Errorf("events:publisher_test - nil method callback should drop the event, got %v", err)
	}
}

func TestCallbackPublisher_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	pub := &CallbackPublisher{OnMethodChanged: func(context.Context, *MethodChangedEvent) error { return boom }}
	if err := pub.PublishMethodChanged(context.Background(), &MethodChangedEvent{}); !errors.Is(err, boom) {
		t.Errorf("events:publisher_test - expected boom, got %v", err)
	}
}
