package bootstrap

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/marshal"
	"github.com/morezero/sparkling-bridge/pkg/registry"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

const applyTestPrefix = "bootstrap:apply_test"

type releasable struct {
	registry.MethodFunc
	released atomic.Int32
}

func (r *releasable) Release() { r.released.Add(1) }

func outcomeOf(m registry.Method) marshal.Outcome {
	var out marshal.Outcome
	m.Handle(context.Background(), &registry.Request{}, func(o marshal.Outcome) { out = o })
	return out
}

func TestApply(t *testing.T) {
	reg := registry.NewRegistry(registry.NewRegistryParams{})
	m := &Manifest{
		Name: "t",
		Methods: map[string]MethodDecl{
			"echo":        {RequiredKeys: []string{"msg"}, Shape: "flattened"},
			"file.upload": {RequiredKeys: []string{"filePath"}},
		},
		Aliases: map[string]string{"say": "echo"},
	}
	echo := &releasable{MethodFunc: *registry.Func(registry.Spec{Thread: call.ThreadBackground, Description: "own"}, func(_ context.Context, _ *registry.Request, done registry.Completion) {
		done(marshal.Success{Data: "echoed"})
	})}
	extra := registry.Func(registry.Spec{}, func(_ context.Context, _ *registry.Request, done registry.Completion) {
		done(marshal.Success{})
	})

	res, err := Apply(reg, m, map[string]registry.Method{"echo": echo, "extra": extra})
	if err != nil {
		t.Fatalf("%s - Apply: %v", applyTestPrefix, err)
	}
	if len(res.Registered) != 1 || len(res.Stubbed) != 1 || len(res.Aliases) != 1 || len(res.Undeclared) != 1 {
		t.Errorf("%s - result = %+v", applyTestPrefix, res)
	}

	got, ok := reg.Resolve("echo", registry.Global())
	if !ok {
		t.Fatalf("%s - echo not registered", applyTestPrefix)
	}
	if got.Spec.Shape != status.ShapeFlattened || got.Spec.Thread != call.ThreadBackground || got.Spec.Description != "own" {
		t.Errorf("%s - merged spec = %+v", applyTestPrefix, got.Spec)
	}
	if s, ok := outcomeOf(got.Method).(marshal.Success); !ok || s.Data != "echoed" {
		t.Errorf("%s - echo should run the implementation", applyTestPrefix)
	}

	alias, ok := reg.Resolve("say", registry.Global())
	if !ok || alias.Method != got.Method {
		t.Errorf("%s - alias should share the declared instance", applyTestPrefix)
	}

	stub, ok := reg.Resolve("file.upload", registry.Global())
	if !ok {
		t.Fatalf("%s - stub not registered", applyTestPrefix)
	}
	if f, ok := outcomeOf(stub.Method).(marshal.Failure); !ok || f.Code != status.CodeNotImplemented {
		t.Errorf("%s - declared method without an implementation should be a NOT_IMPLEMENTED stub", applyTestPrefix)
	}

	if _, ok := reg.Resolve("extra", registry.Global()); !ok {
		t.Errorf("%s - undeclared implementations should still register", applyTestPrefix)
	}

	reg.Unregister("echo", registry.Global())
	if echo.released.Load() != 1 {
		t.Errorf("%s - Release should reach the implementation", applyTestPrefix)
	}
}

func TestApply_InvalidManifest(t *testing.T) {
	reg := registry.NewRegistry(registry.NewRegistryParams{})
	m := &Manifest{Methods: map[string]MethodDecl{"echo": {Shape: "bogus"}}}
	if _, err := Apply(reg, m, nil); err == nil {
		t.Errorf("%s - expected validation error", applyTestPrefix)
	}
	if len(reg.Names(registry.Global())) != 0 {
		t.Errorf("%s - nothing should be registered from an invalid manifest", applyTestPrefix)
	}
}
