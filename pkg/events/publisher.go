package events

import "context"

// EventPublisher publishes bridge events.
type EventPublisher interface {
	PublishCall(ctx context.Context, event *CallCompletedEvent) error
	PublishMethodChanged(ctx context.Context, event *MethodChangedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

func (p *NoOpPublisher) PublishCall(_ context.Context, _ *CallCompletedEvent) error { return nil }

func (p *NoOpPublisher) PublishMethodChanged(_ context.Context, _ *MethodChangedEvent) error {
	return nil
}

// CallbackPublisher hands events to functions (for testing). Nil callbacks drop the event.
type CallbackPublisher struct {
	OnCall          func(ctx context.Context, event *CallCompletedEvent) error
	OnMethodChanged func(ctx context.Context, event *MethodChangedEvent) error
}

// NewCallbackPublisher creates a CallbackPublisher for call events.
func NewCallbackPublisher(cb func(ctx context.Context, event *CallCompletedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{OnCall: cb}
}

func (p *CallbackPublisher) PublishCall(ctx context.Context, event *CallCompletedEvent) error {
	if p.OnCall == nil {
		return nil
	}
	return p.OnCall(ctx, event)
}

func (p *CallbackPublisher) PublishMethodChanged(ctx context.Context, event *MethodChangedEvent) error {
	if p.OnMethodChanged == nil {
		return nil
	}
	return p.OnMethodChanged(ctx, event)
}
