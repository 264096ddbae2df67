// Package observe provides dispatcher observers that export delivered calls as Prometheus metrics,
// OpenTelemetry spans, NATS events and Postgres audit rows.
package observe

import (
	"time"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/db"
	"github.com/morezero/sparkling-bridge/pkg/events"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

// delivered is the flattened view of one settled call shared by the observers.
type delivered struct {
	callbackID  string
	method      string
	namespace   string
	containerID string
	platform    string
	thread      string
	code        status.Code
	message     string
	businessHit bool
	duration    time.Duration
	end         time.Time
}

func newDelivered(env *call.Envelope, r status.Result) delivered {
	d := delivered{
		callbackID:  env.CallbackID,
		method:      env.MethodName,
		namespace:   env.Namespace,
		containerID: env.ContainerID,
		platform:    env.Platform.String(),
		thread:      env.Thread.String(),
		code:        r.Code,
		message:     r.Message,
		end:         time.Now(),
	}
	if m := env.Monitoring; m != nil {
		d.businessHit = m.BusinessHandlerHit
		d.duration = m.Duration()
		if !m.End.IsZero() {
			d.end = m.End
		}
	}
	return d
}

func (d delivered) event() *events.CallCompletedEvent {
	return &events.CallCompletedEvent{
		CallbackID:         d.callbackID,
		Method:             d.method,
		Namespace:          d.namespace,
		ContainerID:        d.containerID,
		Platform:           d.platform,
		Thread:             d.thread,
		Code:               int(d.code),
		CodeName:           d.code.String(),
		Message:            d.message,
		BusinessHandlerHit: d.businessHit,
		DurationMs:         d.duration.Milliseconds(),
		Timestamp:          d.end.UTC().Format(time.RFC3339Nano),
	}
}

func (d delivered) record() db.CallRecord {
	return db.CallRecord{
		CallbackID:         d.callbackID,
		Method:             d.method,
		Namespace:          d.namespace,
		ContainerID:        d.containerID,
		Platform:           d.platform,
		Thread:             d.thread,
		Code:               int(d.code),
		Message:            d.message,
		BusinessHandlerHit: d.businessHit,
		DurationMs:         d.duration.Milliseconds(),
		Created:            d.end.UTC(),
	}
}
