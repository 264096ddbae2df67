package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/marshal"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

const chainLogPrefix = "registry:chain"

// Link is one candidate handler in a Chain. An empty Platforms list supports every platform.
type Link struct {
	Name      string
	Method    Method
	Platforms []call.PlatformTag
}

// Supports reports whether the link accepts calls from p.
func (l Link) Supports(p call.PlatformTag) bool {
	if len(l.Platforms) == 0 {
		return true
	}
	for _, tag := range l.Platforms {
		if tag == p {
			return true
		}
	}
	return false
}

// Chain is a Method that picks the first Link supporting the caller's platform. When no link
// supports it, or the chosen link panics or fails, the call goes to Fallback.
type Chain struct {
	MethodSpec Spec
	Links      []Link
	Fallback   Method
}

func (c *Chain) Spec() Spec { return c.MethodSpec }

func (c *Chain) Handle(ctx context.Context, req *Request, done Completion) {
	var chosen *Link
	for i := range c.Links {
		if c.Links[i].Supports(req.Platform) {
			chosen = &c.Links[i]
			break
		}
	}
	if chosen == nil {
		c.fallback(ctx, req, done, fmt.Sprintf("no handler supports platform %s", req.Platform))
		return
	}

	var settled atomic.Bool
	linkDone := func(o marshal.Outcome) {
		if !settled.CompareAndSwap(false, true) {
			return
		}
		if f, failed := o.(marshal.Failure); failed && c.Fallback != nil {
			slog.Debug(fmt.Sprintf("%s - %s failed (%s), trying fallback", chainLogPrefix, chosen.Name, f.Message))
			c.Fallback.Handle(ctx, req, done)
			return
		}
		done(o)
	}

	defer func() {
		if rv := recover(); rv != nil {
			if !settled.CompareAndSwap(false, true) {
				panic(rv)
			}
			slog.Warn(fmt.Sprintf("%s - %s panicked: %v", chainLogPrefix, chosen.Name, rv))
			c.fallback(ctx, req, done, fmt.Sprintf("%v", rv))
		}
	}()
	chosen.Method.Handle(ctx, req, linkDone)
}

func (c *Chain) fallback(ctx context.Context, req *Request, done Completion, reason string) {
	if c.Fallback == nil {
		done(marshal.Failure{Code: status.CodeNotImplemented, Message: reason})
		return
	}
	c.Fallback.Handle(ctx, req, done)
}
