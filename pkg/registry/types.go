// Package registry implements the two-tier method registry the dispatcher resolves handlers from.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/marshal"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

var (
	ErrEmptyName  = errors.New("registry: method name is empty")
	ErrNilMethod  = errors.New("registry: method is nil")
	ErrNilFactory = errors.New("registry: factory is nil")
)

// Spec declares how the dispatcher prepares a method's params and shapes its result.
type Spec struct {
	RequiredKeys []string
	// Fields maps logical field names to keypaths in the raw params.
	Fields map[string]string
	Shape  status.Shape
	// Thread is used when the call itself does not state a preference.
	Thread      call.ThreadPreference
	Description string
}

// Request is what a handler receives.
type Request struct {
	Call     *call.Envelope
	Params   *marshal.ParamView
	Platform call.PlatformTag
}

// Completion delivers a handler's single outcome.
type Completion func(marshal.Outcome)

// Method is a named operation implemented by a collaborator.
type Method interface {
	Spec() Spec
	Handle(ctx context.Context, req *Request, done Completion)
}

// Factory lazily builds a Method on first resolve.
type Factory func() (Method, error)

// Releaser is implemented by methods holding resources that must be freed when they are replaced or
// unregistered.
type Releaser interface {
	Release()
}

// MethodFunc adapts a function and a Spec into a Method.
type MethodFunc struct {
	MethodSpec Spec
	Fn         func(ctx context.Context, req *Request, done Completion)
}

func (m *MethodFunc) Spec() Spec { return m.MethodSpec }

func (m *MethodFunc) Handle(ctx context.Context, req *Request, done Completion) {
	m.Fn(ctx, req, done)
}

// Func builds a MethodFunc.
func Func(spec Spec, fn func(ctx context.Context, req *Request, done Completion)) *MethodFunc {
	return &MethodFunc{MethodSpec: spec, Fn: fn}
}

// Stub answers every call with NOT_IMPLEMENTED. It stands in for methods declared in a manifest
// that have no implementation linked in.
type Stub struct {
	Name       string
	MethodSpec Spec
}

func (s *Stub) Spec() Spec { return s.MethodSpec }

func (s *Stub) Handle(_ context.Context, _ *Request, done Completion) {
	done(marshal.Failure{Code: status.CodeNotImplemented, Message: fmt.Sprintf("method %s is not implemented", s.Name)})
}

// Scope selects the tier a registration or lookup targets. The zero Scope is Global.
type Scope struct {
	ContainerID string
}

// Global is the process-wide tier.
func Global() Scope { return Scope{} }

// Local is the tier owned by one container.
func Local(containerID string) Scope { return Scope{ContainerID: containerID} }

// IsGlobal reports whether s is the process-wide tier.
func (s Scope) IsGlobal() bool { return s.ContainerID == "" }

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "local:" + s.ContainerID
}

// Resolved is a successful lookup.
type Resolved struct {
	Name   string
	Method Method
	Spec   Spec
	Fields *marshal.FieldTable
	// Scope is the tier the method was found in.
	Scope Scope
}

// MethodInfo describes a registration for listings.
type MethodInfo struct {
	Name         string   `json:"name"`
	Scope        string   `json:"scope"`
	RequiredKeys []string `json:"requiredKeys,omitempty"`
	Shape        string   `json:"shape"`
	Thread       string   `json:"thread"`
	Lazy         bool     `json:"lazy"`
	Description  string   `json:"description,omitempty"`
}
