// Package builtin provides the methods every bridge answers regardless of host: echo, bridge.info and
// bridge.ping.
package builtin

import (
	"context"
	"time"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/marshal"
	"github.com/morezero/sparkling-bridge/pkg/registry"
	"github.com/morezero/sparkling-bridge/pkg/semver"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

const (
	MethodEcho = "echo"
	MethodInfo = "bridge.info"
	MethodPing = "bridge.ping"
)

// Params holds what the builtin methods report about the bridge.
type Params struct {
	Registry    *registry.Registry
	Protocol    *semver.Protocol
	ServiceName string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Methods returns the builtin implementations keyed by method name.
func Methods(p Params) map[string]registry.Method {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return map[string]registry.Method{
		MethodEcho: Echo(),
		MethodInfo: &info{reg: p.Registry, protocol: p.Protocol, service: p.ServiceName},
		MethodPing: Ping(now),
	}
}

// Echo returns its params unchanged. It requires "msg".
func Echo() registry.Method {
	return registry.Func(registry.Spec{RequiredKeys: []string{"msg"}, Description: "Returns its params"},
		func(_ context.Context, req *registry.Request, done registry.Completion) {
			done(marshal.Success{Data: req.Params.ToMap()})
		})
}

// Ping answers {pong: true, time: <unix ms>} flattened next to code and msg.
func Ping(now func() time.Time) registry.Method {
	return registry.Func(registry.Spec{Shape: status.ShapeFlattened, Thread: call.ThreadCurrent, Description: "Liveness check"},
		func(_ context.Context, _ *registry.Request, done registry.Completion) {
			done(marshal.Success{Data: map[string]any{"pong": true, "time": now().UnixMilli()}})
		})
}

type info struct {
	reg      *registry.Registry
	protocol *semver.Protocol
	service  string
}

func (i *info) Spec() registry.Spec {
	return registry.Spec{
		Fields:      map[string]string{"range": "range"},
		Thread:      call.ThreadCurrent,
		Description: "Protocol version and registered methods",
	}
}

// Handle reports the protocol version, the methods visible to the calling container and, when the
// caller passes "range", whether the protocol satisfies it.
func (i *info) Handle(_ context.Context, req *registry.Request, done registry.Completion) {
	out := map[string]any{"service": i.service}
	if i.protocol != nil {
		out["protocolVersion"] = i.protocol.Current()
		if rng, ok := req.Params.String("range"); ok {
			out["compatible"] = i.protocol.Satisfies(rng)
		}
	}
	if i.reg != nil {
		scope := registry.Global()
		if req.Call != nil {
			scope = registry.Local(req.Call.ContainerID)
		}
		out["methods"] = i.reg.Names(scope)
	}
	if req.Platform != call.PlatformOther {
		out["platform"] = req.Platform.String()
	}
	done(marshal.Success{Data: out})
}
