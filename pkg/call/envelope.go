package call

import (
	"time"

	"github.com/google/uuid"

	"github.com/morezero/sparkling-bridge/pkg/dynamic"
)

// DefaultNamespace is used when a call does not name one.
const DefaultNamespace = "default"

// Monitoring holds per-call timing. Each field is written by whichever pipeline step currently owns
// the call, never concurrently.
type Monitoring struct {
	Begin              time.Time
	End                time.Time
	BusinessHandlerHit bool
}

// Duration is End-Begin, or zero while the call is still in flight.
func (m *Monitoring) Duration() time.Duration {
	if m == nil || m.End.IsZero() || m.Begin.IsZero() {
		return 0
	}
	return m.End.Sub(m.Begin)
}

// Envelope is one invocation. Its params are an immutable snapshot; rewriting a call produces a new
// Envelope.
type Envelope struct {
	MethodName      string
	Namespace       string
	Platform        PlatformTag
	Thread          ThreadPreference
	CallbackID      string
	ContainerID     string
	ProtocolVersion string
	CancelPolicy    CancelPolicy
	Monitoring      *Monitoring

	params map[string]dynamic.Value
}

// Params holds the fields for New.
type Params struct {
	MethodName      string
	Namespace       string
	Params          map[string]dynamic.Value
	Platform        PlatformTag
	Thread          ThreadPreference
	CallbackID      string
	ContainerID     string
	ProtocolVersion string
	CancelPolicy    CancelPolicy
}

// New creates an Envelope, copying p.Params and filling the namespace and callback id when unset.
func New(p Params) *Envelope {
	ns := p.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	id := p.CallbackID
	if id == "" {
		id = uuid.NewString()
	}
	return &Envelope{
		MethodName:      p.MethodName,
		Namespace:       ns,
		Platform:        p.Platform,
		Thread:          p.Thread,
		CallbackID:      id,
		ContainerID:     p.ContainerID,
		ProtocolVersion: p.ProtocolVersion,
		CancelPolicy:    p.CancelPolicy,
		Monitoring:      &Monitoring{},
		params:          copyParams(p.Params),
	}
}

// Params returns a copy of the raw params.
func (e *Envelope) Params() map[string]dynamic.Value {
	return copyParams(e.params)
}

// Param returns the raw param under key, or Null.
func (e *Envelope) Param(key string) dynamic.Value {
	return e.params[key]
}

// HasParam reports whether key was supplied, even with a Null value.
func (e *Envelope) HasParam(key string) bool {
	_, ok := e.params[key]
	return ok
}

// RewriteParams describes the parts of a call an interceptor may replace. Nil/empty fields keep the
// original value.
type RewriteParams struct {
	MethodName string
	Namespace  string
	Params     map[string]dynamic.Value
	Thread     *ThreadPreference
}

// Rewrite returns a new Envelope with r applied. The receiver is left untouched; the monitoring record
// is shared so the call keeps one timeline.
func (e *Envelope) Rewrite(r RewriteParams) *Envelope {
	out := *e
	if r.MethodName != "" {
		out.MethodName = r.MethodName
	}
	if r.Namespace != "" {
		out.Namespace = r.Namespace
	}
	if r.Params != nil {
		out.params = copyParams(r.Params)
	} else {
		out.params = copyParams(e.params)
	}
	if r.Thread != nil {
		out.Thread = *r.Thread
	}
	if out.Monitoring == nil {
		out.Monitoring = &Monitoring{}
	}
	return &out
}

func copyParams(in map[string]dynamic.Value) map[string]dynamic.Value {
	out := make(map[string]dynamic.Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
