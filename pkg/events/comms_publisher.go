package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/sparkling-bridge/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// CallSubject overrides the global call-completed subject.
	CallSubject string
	// MethodSubject overrides the method-changed subject.
	MethodSubject string
}

// CommsPublisher publishes bridge events to COMMS subjects.
type CommsPublisher struct {
	nc            *comms.Conn
	callSubject   string
	methodSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{
		nc:            nc,
		callSubject:   commsutil.SubjectCallCompleted,
		methodSubject: commsutil.SubjectMethodChanged,
	}
	if opts != nil {
		if opts.CallSubject != "" {
			p.callSubject = opts.CallSubject
		}
		if opts.MethodSubject != "" {
			p.methodSubject = opts.MethodSubject
		}
	}
	return p
}

// PublishCall publishes a CallCompletedEvent to the per-method subject and the global call subject.
func (p *CommsPublisher) PublishCall(_ context.Context, event *CallCompletedEvent) error {
	data, err := commsutil.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode call event: %w", commsPublisherLogPrefix, err)
	}

	granular := commsutil.BuildCallSubject(p.callSubject, event.Namespace, event.Method)
	if err := p.nc.Publish(granular, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, granular, err))
		return err
	}
	if err := p.nc.Publish(p.callSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.callSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published call event for %s/%s", commsPublisherLogPrefix, event.Namespace, event.Method))
	return nil
}

// PublishMethodChanged publishes a MethodChangedEvent to the method subject.
func (p *CommsPublisher) PublishMethodChanged(_ context.Context, event *MethodChangedEvent) error {
	data, err := commsutil.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode method event: %w", commsPublisherLogPrefix, err)
	}
	if err := p.nc.Publish(p.methodSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.methodSubject, err))
		return err
	}
	return nil
}
