package threadrouter

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/sparkling-bridge/pkg/call"
)

const logPrefix = "threadrouter:router"

// MainQueue is the host's UI-affinity queue. Post returns an error when the queue cannot take work.
type MainQueue interface {
	Post(task func()) error
}

// Route is where a body ended up running.
type Route int

const (
	RouteInline Route = iota
	RouteMain
	RouteBackground
)

func (r Route) String() string {
	switch r {
	case RouteMain:
		return "main"
	case RouteBackground:
		return "background"
	}
	return "inline"
}

// Router resolves thread preferences onto the main queue, per-platform executors, or the calling
// goroutine.
type Router struct {
	mu        sync.RWMutex
	main      MainQueue
	executors map[call.PlatformTag]Executor
}

// New creates a Router. main may be nil; Main-thread work then runs inline.
func New(main MainQueue) *Router {
	return &Router{main: main, executors: make(map[call.PlatformTag]Executor)}
}

// SetMainQueue replaces the main queue.
func (r *Router) SetMainQueue(q MainQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.main = q
}

// RegisterExecutor sets the background executor for calls from platform. A nil executor removes it.
func (r *Router) RegisterExecutor(platform call.PlatformTag, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ex == nil {
		delete(r.executors, platform)
		return
	}
	r.executors[platform] = ex
}

// Run executes body exactly once according to pref:
//   - Current runs inline.
//   - Main (and Unspecified) posts to the main queue, or runs inline when it is missing or refuses.
//   - Background submits to the platform's executor and otherwise behaves as Main.
func (r *Router) Run(pref call.ThreadPreference, platform call.PlatformTag, body func()) Route {
	var once sync.Once
	guarded := func() { once.Do(body) }

	r.mu.RLock()
	main := r.main
	ex := r.executors[platform]
	r.mu.RUnlock()

	switch pref {
	case call.ThreadCurrent:
		guarded()
		return RouteInline
	case call.ThreadBackground:
		if ex != nil {
			err := ex.Submit(guarded)
			if err == nil {
				return RouteBackground
			}
			slog.Warn(fmt.Sprintf("%s - background executor for %s rejected task: %v", logPrefix, platform, err))
		}
	}
	return r.runMain(main, guarded)
}

func (r *Router) runMain(main MainQueue, guarded func()) Route {
	if main != nil {
		err := main.Post(guarded)
		if err == nil {
			return RouteMain
		}
		slog.Debug(fmt.Sprintf("%s - main queue unavailable, running inline: %v", logPrefix, err))
	}
	guarded()
	return RouteInline
}
