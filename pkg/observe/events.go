package observe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/events"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

const eventsLogPrefix = "observe:events"

// EventObserver publishes a CallCompletedEvent for every delivered call.
type EventObserver struct {
	publisher events.EventPublisher
	// FailuresOnly skips successful calls.
	FailuresOnly bool
}

// NewEventObserver creates an EventObserver. A nil publisher drops events.
func NewEventObserver(p events.EventPublisher) *EventObserver {
	if p == nil {
		p = &events.NoOpPublisher{}
	}
	return &EventObserver{publisher: p}
}

func (o *EventObserver) BeforeInvoke(context.Context, *call.Envelope) {}

func (o *EventObserver) AfterInvoke(context.Context, *call.Envelope, time.Duration) {}

func (o *EventObserver) OnDelivered(ctx context.Context, env *call.Envelope, r status.Result) {
	if o.FailuresOnly && r.OK() {
		return
	}
	if err := o.publisher.PublishCall(ctx, newDelivered(env, r).event()); err != nil {
		slog.Warn(fmt.Sprintf("%s - publish %s (%s): %v", eventsLogPrefix, env.MethodName, env.CallbackID, err))
	}
}
