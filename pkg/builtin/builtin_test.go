package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/dispatcher"
	"github.com/morezero/sparkling-bridge/pkg/dynamic"
	"github.com/morezero/sparkling-bridge/pkg/registry"
	"github.com/morezero/sparkling-bridge/pkg/semver"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

const builtinTestPrefix = "builtin:builtin_test"

func setup(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	reg := registry.NewRegistry(registry.NewRegistryParams{})
	protocol := semver.MustProtocol("1.2.0", "")
	fixed := time.UnixMilli(1700000000000)
	for name, m := range Methods(Params{Registry: reg, Protocol: protocol, ServiceName: "test", Now: func() time.Time { return fixed }}) {
		if err := reg.Register(name, m, registry.Global()); err != nil {
			t.Fatalf("%s - Register %s: %v", builtinTestPrefix, name, err)
		}
	}
	return dispatcher.NewDispatcher(dispatcher.Params{Registry: reg, Protocol: protocol})
}

func callMethod(t *testing.T, d *dispatcher.Dispatcher, method string, params map[string]any) status.Result {
	t.Helper()
	r, err := d.Call(context.Background(), call.New(call.Params{MethodName: method, Params: dynamic.MapOf(params), Platform: call.PlatformLynx}))
	if err != nil {
		t.Fatalf("%s - Call %s: %v", builtinTestPrefix, method, err)
	}
	return r
}

func TestEcho(t *testing.T) {
	d := setup(t)

	r := callMethod(t, d, MethodEcho, map[string]any{"msg": "hi"})
	if r.Code != status.CodeSuccess {
		t.Fatalf("%s - echo code = %d", builtinTestPrefix, r.Code)
	}
	if msg, _ := r.Data.Get("msg").AsString(); msg != "hi" {
		t.Errorf("%s - echo data = %v", builtinTestPrefix, r.Data.ToAny())
	}

	r = callMethod(t, d, MethodEcho, map[string]any{})
	if r.Code != status.CodeInvalidParam || r.Message != "Missing required parameter(s): msg" {
		t.Errorf("%s - echo without msg = %v", builtinTestPrefix, r)
	}
}

func TestPing_Flattened(t *testing.T) {
	d := setup(t)
	m := callMethod(t, d, MethodPing, nil).ToMap()
	if m["pong"] != true || m["time"] != int64(1700000000000) || m["code"] != 1 {
		t.Errorf("%s - ping = %v", builtinTestPrefix, m)
	}
	if _, nested := m["data"]; nested {
		t.Errorf("%s - ping should be flattened", builtinTestPrefix)
	}
}

func TestInfo(t *testing.T) {
	d := setup(t)

	r := callMethod(t, d, MethodInfo, map[string]any{"range": "^1.0.0"})
	if v, _ := r.Data.Get("protocolVersion").AsString(); v != "1.2.0" {
		t.Errorf("%s - protocolVersion = %q", builtinTestPrefix, v)
	}
	if ok, _ := r.Data.Get("compatible").AsBool(); !ok {
		t.Errorf("%s - 1.2.0 should satisfy ^1.0.0", builtinTestPrefix)
	}
	if n := r.Data.Get("methods").Len(); n != 3 {
		t.Errorf("%s - methods = %v", builtinTestPrefix, r.Data.Get("methods").ToAny())
	}
	if p, _ := r.Data.Get("platform").AsString(); p != "lynx" {
		t.Errorf("%s - platform = %q", builtinTestPrefix, p)
	}

	r = callMethod(t, d, MethodInfo, map[string]any{"range": "2"})
	if ok, _ := r.Data.Get("compatible").AsBool(); ok {
		t.Errorf("%s - 1.2.0 should not satisfy major 2", builtinTestPrefix)
	}
}
