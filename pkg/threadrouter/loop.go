package threadrouter

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/eapache/queue"
)

const loopLogPrefix = "threadrouter:loop"

// MainLoop is the single UI-affinity queue: one goroutine runs posted tasks in FIFO order.
type MainLoop struct {
	mu      sync.Mutex
	tasks   *queue.Queue
	running bool
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewMainLoop creates a stopped loop.
func NewMainLoop() *MainLoop {
	return &MainLoop{tasks: queue.New()}
}

// Start launches the loop goroutine. Starting a running loop is a no-op.
func (l *MainLoop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.wake = make(chan struct{}, 1)
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.wake, l.stop, l.done)
	slog.Debug(fmt.Sprintf("%s - Main loop started", loopLogPrefix))
}

// Stop refuses new tasks, runs every task already accepted, and waits for the loop goroutine to exit.
func (l *MainLoop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	stop, done := l.stop, l.done
	l.mu.Unlock()

	close(stop)
	<-done
	slog.Debug(fmt.Sprintf("%s - Main loop stopped", loopLogPrefix))
}

// Running reports whether Post will accept tasks.
func (l *MainLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Pending is the number of accepted tasks not yet run.
func (l *MainLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

// Post enqueues task. It fails with ErrLoopNotRunning when the loop is not accepting work; an
// accepted task always runs.
func (l *MainLoop) Post(task func()) error {
	if l == nil {
		return ErrLoopNotRunning
	}
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return ErrLoopNotRunning
	}
	l.tasks.Add(task)
	wake := l.wake
	l.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
	return nil
}

// Do posts fn and waits for it to finish or for ctx to end.
func (l *MainLoop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *MainLoop) run(wake, stop, done chan struct{}) {
	defer close(done)
	for {
		l.drain()
		select {
		case <-wake:
		case <-stop:
			l.drain()
			return
		}
	}
}

func (l *MainLoop) drain() {
	for {
		l.mu.Lock()
		if l.tasks.Length() == 0 {
			l.mu.Unlock()
			return
		}
		task := l.tasks.Remove().(func())
		l.mu.Unlock()
		runTask(loopLogPrefix, task)
	}
}

func runTask(prefix string, task func()) {
	defer func() {
		if rv := recover(); rv != nil {
			slog.Error(fmt.Sprintf("%s - task panicked: %v\n%s", prefix, rv, debug.Stack()))
		}
	}()
	task()
}
