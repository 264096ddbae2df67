package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/dispatcher"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

const policyTestPrefix = "policy:policy_test"

func env(ns, method, container string) *call.Envelope {
	return call.New(call.Params{MethodName: method, Namespace: ns, ContainerID: container})
}

func TestNamespaceAuthority(t *testing.T) {
	a := NewNamespaceAuthority("default", "shop")
	ctx := context.Background()

	if err := a.CheckAuthority(ctx, env("", "echo", "v1")); err != nil {
		t.Errorf("%s - default namespace should be allowed: %v", policyTestPrefix, err)
	}
	err := a.CheckAuthority(ctx, env("admin", "wipe", "v1"))
	var se *status.Error
	if !errors.As(err, &se) || se.Code != status.CodeNoAuthority {
		t.Fatalf("%s - expected NO_AUTHORITY, got %v", policyTestPrefix, err)
	}

	a.Grant("v1", "admin")
	if err := a.CheckAuthority(ctx, env("admin", "wipe", "v1")); err != nil {
		t.Errorf("%s - granted container should pass: %v", policyTestPrefix, err)
	}
	if err := a.CheckAuthority(ctx, env("admin", "wipe", "v2")); err == nil {
		t.Errorf("%s - grant must not leak to other containers", policyTestPrefix)
	}
	a.Revoke("v1")
	if err := a.CheckAuthority(ctx, env("admin", "wipe", "v1")); err == nil {
		t.Errorf("%s - revoked grant should deny", policyTestPrefix)
	}

	if err := NewNamespaceAuthority().CheckAuthority(ctx, env("anything", "x", "")); err != nil {
		t.Errorf("%s - empty allow-list allows all: %v", policyTestPrefix, err)
	}
	if got := a.Allowed(); len(got) != 2 || got[0] != "default" {
		t.Errorf("%s - Allowed() = %v", policyTestPrefix, got)
	}
}

func TestRateLimitGate(t *testing.T) {
	g := NewRateLimitGate(0.0001, 2, ByContainer)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := g.ShouldHandleBridgeCall(ctx, env("", "echo", "v1")); !ok {
			t.Fatalf("%s - call %d within burst should pass", policyTestPrefix, i)
		}
	}
	ok, reason := g.ShouldHandleBridgeCall(ctx, env("", "echo", "v1"))
	if ok || reason != "rate limited" {
		t.Errorf("%s - third call should be limited, got %v %q", policyTestPrefix, ok, reason)
	}
	if ok, _ := g.ShouldHandleBridgeCall(ctx, env("", "echo", "v2")); !ok {
		t.Errorf("%s - other containers have their own bucket", policyTestPrefix)
	}
	g.Forget("v1")
	if ok, _ := g.ShouldHandleBridgeCall(ctx, env("", "echo", "v1")); !ok {
		t.Errorf("%s - forgotten bucket should start full", policyTestPrefix)
	}
}

func TestGates_FirstDeclineWins(t *testing.T) {
	sw := NewMethodSwitch()
	sw.Disable("echo", "A/B off")
	gates := Gates{nil, NewRateLimitGate(1000, 100, ByMethod), sw}

	ok, reason := gates.ShouldHandleBridgeCall(context.Background(), env("", "echo", ""))
	if ok || reason != "A/B off" {
		t.Errorf("%s - expected switch decline, got %v %q", policyTestPrefix, ok, reason)
	}
	sw.Enable("echo")
	if ok, _ := gates.ShouldHandleBridgeCall(context.Background(), env("", "echo", "")); !ok {
		t.Errorf("%s - enabled method should pass", policyTestPrefix)
	}
}

func TestPolicies_InDispatcher(t *testing.T) {
	sw := NewMethodSwitch()
	sw.Disable("echo", "A/B off")
	d := dispatcher.NewDispatcher(dispatcher.Params{Hooks: dispatcher.Hooks{
		Authority: NewNamespaceAuthority("default"),
		Gate:      Gates{sw},
	}})

	r, _ := d.Call(context.Background(), env("admin", "echo", ""))
	if r.Code != status.CodeNoAuthority {
		t.Errorf("%s - expected NO_AUTHORITY, got %v", policyTestPrefix, r)
	}
	r, _ = d.Call(context.Background(), env("", "echo", ""))
	if r.Code != status.CodeCallIntercepted || r.Message != "call intercepted, reason: A/B off" {
		t.Errorf("%s - expected CALL_INTERCEPTED, got %v", policyTestPrefix, r)
	}
}
