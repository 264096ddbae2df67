package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/dispatcher"
)

const gateLogPrefix = "policy:gate"

// KeyFunc picks the bucket a call is counted against.
type KeyFunc func(env *call.Envelope) string

// ByContainer counts calls per container.
func ByContainer(env *call.Envelope) string { return env.ContainerID }

// ByMethod counts calls per namespace and method.
func ByMethod(env *call.Envelope) string { return env.Namespace + "/" + env.MethodName }

// RateLimitGate declines calls once their bucket runs out of tokens.
type RateLimitGate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	key      KeyFunc
	// maxKeys bounds the limiter map; it is reset when exceeded.
	maxKeys int
}

// NewRateLimitGate creates a gate allowing rps calls per second per key with the given burst. key
// defaults to ByContainer.
func NewRateLimitGate(rps float64, burst int, key KeyFunc) *RateLimitGate {
	if key == nil {
		key = ByContainer
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitGate{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		key:      key,
		maxKeys:  10000,
	}
}

func (g *RateLimitGate) limiter(key string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[key]
	if !ok {
		if len(g.limiters) >= g.maxKeys {
			g.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(g.limit, g.burst)
		g.limiters[key] = l
	}
	return l
}

func (g *RateLimitGate) ShouldHandleBridgeCall(_ context.Context, env *call.Envelope) (bool, string) {
	key := g.key(env)
	if g.limiter(key).Allow() {
		return true, ""
	}
	slog.Warn(fmt.Sprintf("%s - rate limit exceeded for %q (%s)", gateLogPrefix, key, env.MethodName))
	return false, "rate limited"
}

// Forget drops the bucket for key, e.g. when a container is torn down.
func (g *RateLimitGate) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.limiters, key)
}

// MethodSwitch declines calls to methods switched off at runtime.
type MethodSwitch struct {
	mu  sync.RWMutex
	off map[string]string
}

// NewMethodSwitch creates a switch with every method on.
func NewMethodSwitch() *MethodSwitch {
	return &MethodSwitch{off: make(map[string]string)}
}

// Disable turns method off with reason.
func (s *MethodSwitch) Disable(method, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.off[method] = reason
}

// Enable turns method back on.
func (s *MethodSwitch) Enable(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.off, method)
}

func (s *MethodSwitch) ShouldHandleBridgeCall(_ context.Context, env *call.Envelope) (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if reason, off := s.off[env.MethodName]; off {
		return false, reason
	}
	return true, ""
}

// Gates combines gates; the first one to decline wins.
type Gates []dispatcher.OverrideGate

func (gs Gates) ShouldHandleBridgeCall(ctx context.Context, env *call.Envelope) (bool, string) {
	for _, g := range gs {
		if g == nil {
			continue
		}
		if ok, reason := g.ShouldHandleBridgeCall(ctx, env); !ok {
			return false, reason
		}
	}
	return true, ""
}
