package jsengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/dynamic"
	"github.com/morezero/sparkling-bridge/pkg/marshal"
	"github.com/morezero/sparkling-bridge/pkg/registry"
	"github.com/morezero/sparkling-bridge/pkg/semver"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

// install sets the bridge and console globals. Runs on the main loop.
func (e *Engine) install() {
	vm := e.vm

	bridge := vm.NewObject()
	_ = bridge.Set("containerId", e.id)
	_ = bridge.Set("protocolVersion", e.disp.Protocol().Current())
	_ = bridge.Set("call", e.jsCall)
	_ = bridge.Set("register", e.jsRegister)
	_ = vm.Set("bridge", bridge)

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		level := level
		_ = console.Set(level, func(fc goja.FunctionCall) goja.Value {
			parts := make([]string, len(fc.Arguments))
			for i, arg := range fc.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			e.console(level, strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	_ = vm.Set("console", console)
}

// callOptions is the optional fourth argument of bridge.call.
type callOptions struct {
	Namespace    string
	Thread       call.ThreadPreference
	CancelPolicy call.CancelPolicy
}

func (e *Engine) parseOptions(v goja.Value) (callOptions, error) {
	var o callOptions
	if isAbsent(v) {
		return o, nil
	}
	m, ok := v.Export().(map[string]any)
	if !ok {
		return o, fmt.Errorf("options must be an object")
	}
	var err error
	if s, ok := m["namespace"].(string); ok {
		o.Namespace = s
	}
	if s, ok := m["thread"].(string); ok {
		if o.Thread, err = call.ParseThread(s); err != nil {
			return o, err
		}
	}
	if s, ok := m["cancelPolicy"].(string); ok {
		if o.CancelPolicy, err = call.ParseCancelPolicy(s); err != nil {
			return o, err
		}
	}
	return o, nil
}

// jsCall implements bridge.call(method, params, callback, options) and returns the callback id.
// method may be a reference such as "router/router.open@^1".
func (e *Engine) jsCall(fc goja.FunctionCall) goja.Value {
	vm := e.vm
	if isAbsent(fc.Argument(0)) {
		panic(vm.NewTypeError("bridge.call: method is required"))
	}
	ref, refErr := semver.ParseMethodRef(fc.Argument(0).String())

	var params map[string]any
	if p := fc.Argument(1); !isAbsent(p) {
		m, ok := p.Export().(map[string]any)
		if !ok {
			panic(vm.NewTypeError("bridge.call: params must be an object"))
		}
		params = m
	}

	var fn goja.Callable
	if cb := fc.Argument(2); !isAbsent(cb) {
		f, ok := goja.AssertFunction(cb)
		if !ok {
			panic(vm.NewTypeError("bridge.call: callback must be a function"))
		}
		fn = f
	}

	opts, optErr := e.parseOptions(fc.Argument(3))

	cp := call.Params{
		MethodName:   fc.Argument(0).String(),
		Params:       dynamic.MapOf(params),
		Platform:     e.platform,
		Thread:       opts.Thread,
		ContainerID:  e.id,
		CancelPolicy: opts.CancelPolicy,
		Namespace:    opts.Namespace,
	}
	if refErr == nil {
		cp.MethodName = ref.Method
		if ref.Namespace != "" {
			cp.Namespace = ref.Namespace
		}
		cp.ProtocolVersion = ref.Range
	}
	env := call.New(cp)
	e.track(env, fn)

	switch {
	case refErr != nil:
		e.deliver(env.CallbackID, status.Failure(status.CodeInvalidParam, refErr.Error()))
	case optErr != nil:
		e.deliver(env.CallbackID, status.Failure(status.CodeInvalidParam, optErr.Error()))
	default:
		if _, err := e.disp.Protocol().Negotiate(ref.Range); err != nil {
			e.deliver(env.CallbackID, status.Failure(status.CodeInvalidParam,
				fmt.Sprintf("unsupported protocolVersion %q", ref.Range)))
			break
		}
		id := env.CallbackID
		e.disp.Dispatch(context.Background(), env, func(r status.Result) { e.deliver(id, r) })
	}
	return vm.ToValue(env.CallbackID)
}

// jsRegister implements bridge.register(name, handler, spec). The handler is called as
// handler(params, resolve, reject) on the main loop; returning a value other than undefined
// resolves with it.
func (e *Engine) jsRegister(fc goja.FunctionCall) goja.Value {
	vm := e.vm
	name := fc.Argument(0).String()
	if !semver.ValidateMethodName(name) {
		panic(vm.NewTypeError(fmt.Sprintf("bridge.register: invalid method name %q", name)))
	}
	handler, ok := goja.AssertFunction(fc.Argument(1))
	if !ok {
		panic(vm.NewTypeError("bridge.register: handler must be a function"))
	}

	spec := registry.Spec{Thread: call.ThreadMain}
	if s := fc.Argument(2); !isAbsent(s) {
		if m, ok := s.Export().(map[string]any); ok {
			if keys, ok := m["requiredKeys"].([]any); ok {
				for _, k := range keys {
					spec.RequiredKeys = append(spec.RequiredKeys, fmt.Sprint(k))
				}
			}
			if d, ok := m["description"].(string); ok {
				spec.Description = d
			}
			if sh, ok := m["shape"].(string); ok {
				shape, err := status.ParseShape(sh)
				if err != nil {
					panic(vm.NewTypeError(err.Error()))
				}
				spec.Shape = shape
			}
		}
	}

	m := registry.Func(spec, func(_ context.Context, req *registry.Request, done registry.Completion) {
		params := req.Params.ToMap()
		err := e.loop.Post(func() { e.invokeHandler(name, handler, params, done) })
		if err != nil {
			done(marshal.Fail(status.CodeFail, "container %s is closed", e.id))
		}
	})
	if err := e.Register(name, m); err != nil {
		panic(vm.NewGoError(err))
	}
	return goja.Undefined()
}

func (e *Engine) invokeHandler(name string, handler goja.Callable, params map[string]any, done registry.Completion) {
	vm := e.vm
	resolve := func(fc goja.FunctionCall) goja.Value {
		done(marshal.Success{Data: exportOrNil(fc.Argument(0))})
		return goja.Undefined()
	}
	reject := func(fc goja.FunctionCall) goja.Value {
		code := status.CodeFail
		if c := fc.Argument(0); !isAbsent(c) {
			if parsed, ok := status.ParseCode(int(c.ToInteger())); ok {
				code = parsed
			}
		}
		msg := ""
		if m := fc.Argument(1); !isAbsent(m) {
			msg = m.String()
		}
		done(marshal.Failure{Code: code, Message: msg})
		return goja.Undefined()
	}

	ret, err := handler(goja.Undefined(), vm.ToValue(params), vm.ToValue(resolve), vm.ToValue(reject))
	if err != nil {
		done(marshal.Fail(status.CodeFail, "%s threw: %v", name, err))
		return
	}
	if !isAbsent(ret) {
		done(marshal.Success{Data: ret.Export()})
	}
}

func isAbsent(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func exportOrNil(v goja.Value) any {
	if isAbsent(v) {
		return nil
	}
	return v.Export()
}
