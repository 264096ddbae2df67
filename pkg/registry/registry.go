package registry

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/morezero/sparkling-bridge/pkg/events"
	"github.com/morezero/sparkling-bridge/pkg/marshal"
)

const logPrefix = "registry:registry"

type boxed struct{ m Method }

type entry struct {
	name    string
	spec    Spec
	fields  *marshal.FieldTable
	factory Factory

	mu       sync.Mutex
	instance atomic.Pointer[boxed]
}

func newEntry(name string, spec Spec, fields *marshal.FieldTable, m Method, f Factory) *entry {
	e := &entry{name: name, spec: spec, fields: fields, factory: f}
	if m != nil {
		e.instance.Store(&boxed{m: m})
	}
	return e
}

// method returns the instance, building it from the factory on first use. A failed build is not
// cached.
func (e *entry) method() (Method, error) {
	if b := e.instance.Load(); b != nil {
		return b.m, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if b := e.instance.Load(); b != nil {
		return b.m, nil
	}
	if e.factory == nil {
		return nil, ErrNilFactory
	}
	m, err := e.factory()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNilMethod
	}
	e.instance.Store(&boxed{m: m})
	return m, nil
}

// current returns the instance without building it.
func (e *entry) current() Method {
	if b := e.instance.Load(); b != nil {
		return b.m
	}
	return nil
}

// Registry holds the Global tier and one Local tier per container. Lookups take the read lock only.
type Registry struct {
	mu        sync.RWMutex
	global    map[string]*entry
	locals    map[string]map[string]*entry
	publisher events.EventPublisher
}

// NewRegistryParams holds the parameters for NewRegistry.
type NewRegistryParams struct {
	// Publisher receives registration change events; defaults to a no-op.
	Publisher events.EventPublisher
}

// NewRegistry creates an empty Registry.
func NewRegistry(params NewRegistryParams) *Registry {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Registry{
		global:    make(map[string]*entry),
		locals:    make(map[string]map[string]*entry),
		publisher: pub,
	}
}

// Register binds m to name in scope. The last registration wins; a replaced instance is released
// unless it is m itself.
func (r *Registry) Register(name string, m Method, scope Scope) error {
	if name == "" {
		return ErrEmptyName
	}
	if m == nil {
		return ErrNilMethod
	}
	spec := m.Spec()
	fields, err := marshal.CompileFields(spec.Fields)
	if err != nil {
		return fmt.Errorf("%s - register %s: %w", logPrefix, name, err)
	}
	r.put(newEntry(name, spec, fields, m, nil), scope)
	return nil
}

// RegisterFactory binds a lazily built method to name in scope. spec is needed up front so params can
// be validated before the method exists.
func (r *Registry) RegisterFactory(name string, spec Spec, f Factory, scope Scope) error {
	if name == "" {
		return ErrEmptyName
	}
	if f == nil {
		return ErrNilFactory
	}
	fields, err := marshal.CompileFields(spec.Fields)
	if err != nil {
		return fmt.Errorf("%s - register %s: %w", logPrefix, name, err)
	}
	r.put(newEntry(name, spec, fields, nil, f), scope)
	return nil
}

func (r *Registry) put(e *entry, scope Scope) {
	r.mu.Lock()
	tier := r.tierLocked(scope, true)
	prev := tier[e.name]
	tier[e.name] = e
	r.mu.Unlock()

	if prev != nil {
		if old := prev.current(); old != nil && !sameMethod(old, e.current()) {
			release(old)
		}
	}
	slog.Debug(fmt.Sprintf("%s - Registered %s (%s)", logPrefix, e.name, scope))
	r.publish(events.EventMethodRegistered, e.name, scope)
}

// Unregister removes name from scope and releases its instance. It reports whether anything was removed.
func (r *Registry) Unregister(name string, scope Scope) bool {
	r.mu.Lock()
	tier := r.tierLocked(scope, false)
	prev, ok := tier[name]
	if ok {
		delete(tier, name)
		if !scope.IsGlobal() && len(tier) == 0 {
			delete(r.locals, scope.ContainerID)
		}
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if old := prev.current(); old != nil {
		release(old)
	}
	r.publish(events.EventMethodUnregistered, name, scope)
	return true
}

// Resolve looks name up in scope and, for a Local scope, falls through to Global on a miss.
// A factory that fails is logged and treated as a miss.
func (r *Registry) Resolve(name string, scope Scope) (Resolved, bool) {
	r.mu.RLock()
	var e *entry
	found := Global()
	if !scope.IsGlobal() {
		if tier := r.locals[scope.ContainerID]; tier != nil {
			if e = tier[name]; e != nil {
				found = scope
			}
		}
	}
	if e == nil {
		e = r.global[name]
	}
	r.mu.RUnlock()

	if e == nil {
		return Resolved{}, false
	}
	m, err := e.method()
	if err != nil {
		slog.Error(fmt.Sprintf("%s - factory for %s failed: %v", logPrefix, name, err))
		return Resolved{}, false
	}
	return Resolved{Name: name, Method: m, Spec: e.spec, Fields: e.fields, Scope: found}, true
}

// ReleaseContainer drops a container's Local tier, releasing every instance in it.
func (r *Registry) ReleaseContainer(containerID string) int {
	if containerID == "" {
		return 0
	}
	r.mu.Lock()
	tier := r.locals[containerID]
	delete(r.locals, containerID)
	r.mu.Unlock()

	for _, e := range tier {
		if m := e.current(); m != nil {
			release(m)
		}
	}
	if len(tier) > 0 {
		slog.Info(fmt.Sprintf("%s - Released %d methods for container %s", logPrefix, len(tier), containerID))
	}
	return len(tier)
}

// Names returns the method names visible from scope, sorted. A Local scope includes Global names.
func (r *Registry) Names(scope Scope) []string {
	r.mu.RLock()
	seen := make(map[string]bool, len(r.global))
	for n := range r.global {
		seen[n] = true
	}
	if !scope.IsGlobal() {
		for n := range r.locals[scope.ContainerID] {
			seen[n] = true
		}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Describe lists the registrations visible from scope, Local entries shadowing Global ones.
func (r *Registry) Describe(scope Scope) []MethodInfo {
	r.mu.RLock()
	byName := make(map[string]MethodInfo, len(r.global))
	for n, e := range r.global {
		byName[n] = describe(e, Global())
	}
	if !scope.IsGlobal() {
		for n, e := range r.locals[scope.ContainerID] {
			byName[n] = describe(e, scope)
		}
	}
	r.mu.RUnlock()

	out := make([]MethodInfo, 0, len(byName))
	for _, info := range byName {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func describe(e *entry, scope Scope) MethodInfo {
	return MethodInfo{
		Name:         e.name,
		Scope:        scope.String(),
		RequiredKeys: e.spec.RequiredKeys,
		Shape:        e.spec.Shape.String(),
		Thread:       e.spec.Thread.String(),
		Lazy:         e.factory != nil,
		Description:  e.spec.Description,
	}
}

func (r *Registry) tierLocked(scope Scope, create bool) map[string]*entry {
	if scope.IsGlobal() {
		return r.global
	}
	tier := r.locals[scope.ContainerID]
	if tier == nil && create {
		tier = make(map[string]*entry)
		r.locals[scope.ContainerID] = tier
	}
	return tier
}

func (r *Registry) publish(eventType, name string, scope Scope) {
	evt := &events.MethodChangedEvent{
		Type:        eventType,
		Method:      name,
		Scope:       scope.String(),
		ContainerID: scope.ContainerID,
	}
	if err := r.publisher.PublishMethodChanged(context.Background(), evt); err != nil {
		slog.Warn(fmt.Sprintf("%s - publish %s for %s failed: %v", logPrefix, eventType, name, err))
	}
}

func sameMethod(a, b Method) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func release(m Method) {
	rel, ok := m.(Releaser)
	if !ok {
		return
	}
	defer func() {
		if rv := recover(); rv != nil {
			slog.Error(fmt.Sprintf("%s - release panicked: %v", logPrefix, rv))
		}
	}()
	rel.Release()
}
