package events

import (
	"context"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/sparkling-bridge/pkg/commsutil"
)

const commsTestPrefix = "events:comms_publisher_integration_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", commsTestPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", commsTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", commsTestPrefix, err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func sampleCall() *CallCompletedEvent {
	return &CallCompletedEvent{
		CallbackID: "cb-1",
		Method:     "router.open",
		Namespace:  "router",
		Platform:   "lynx",
		Thread:     "main",
		Code:       1,
		CodeName:   "SUCCESS",
		DurationMs: 12,
		Timestamp:  "2026-01-01T00:00:00Z",
	}
}

func TestCommsPublisher_PublishCall_BothSubjects(t *testing.T) {
	nc, cleanup := startTestServer(t, 14330)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)

	granular := make(chan *CallCompletedEvent, 1)
	global := make(chan *CallCompletedEvent, 1)

	sub1, err := nc.Subscribe("bridge.call.completed.router.router_open", func(msg *comms.Msg) {
		event, err := commsutil.DecodeEvent[CallCompletedEvent](msg.Data)
		if err != nil {
			t.Errorf("%s - failed to decode: %v", commsTestPrefix, err)
			return
		}
		granular <- event
	})
	if err != nil {
		t.Fatalf("%s - subscribe granular failed: %v", commsTestPrefix, err)
	}
	defer sub1.Unsubscribe()

	sub2, err := nc.Subscribe("bridge.call.completed", func(msg *comms.Msg) {
		if event, err := commsutil.DecodeEvent[CallCompletedEvent](msg.Data); err == nil {
			global <- event
		}
	})
	if err != nil {
		t.Fatalf("%s - subscribe global failed: %v", commsTestPrefix, err)
	}
	defer sub2.Unsubscribe()

	if err := publisher.PublishCall(context.Background(), sampleCall()); err != nil {
		t.Fatalf("%s - PublishCall failed: %v", commsTestPrefix, err)
	}
	nc.Flush()

	for _, ch := range []struct {
		name string
		ch   chan *CallCompletedEvent
	}{
		{"granular", granular},
		{"global", global},
	} {
		select {
		case got := <-ch.ch:
			if got.Method != "router.open" || got.CallbackID != "cb-1" {
				t.Errorf("%s - %s event = %+v", commsTestPrefix, ch.name, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%s - timeout waiting for %s event", commsTestPrefix, ch.name)
		}
	}
}

func TestCommsPublisher_PublishMethodChanged_CustomSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14331)
	defer cleanup()

	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{MethodSubject: "custom.methods"})

	received := make(chan *MethodChangedEvent, 1)
	sub, err := nc.Subscribe("custom.methods", func(msg *comms.Msg) {
		if event, err := commsutil.DecodeEvent[MethodChangedEvent](msg.Data); err == nil {
			received <- event
		}
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe: %v", commsTestPrefix, err)
	}
	defer sub.Unsubscribe()

	err = publisher.PublishMethodChanged(context.Background(), &MethodChangedEvent{
		Type:   EventMethodRegistered,
		Method: "echo",
		Scope:  "global",
	})
	if err != nil {
		t.Fatalf("%s - PublishMethodChanged failed: %v", commsTestPrefix, err)
	}
	nc.Flush()

	select {
	case got := <-received:
		if got.Type != EventMethodRegistered || got.Method != "echo" {
			t.Errorf("%s - event = %+v", commsTestPrefix, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for method event", commsTestPrefix)
	}
}
