package threadrouter

import (
	"fmt"
	"log/slog"
	"sync"
)

const poolLogPrefix = "threadrouter:pool"

// Executor runs submitted tasks somewhere other than the caller's goroutine.
type Executor interface {
	Submit(task func()) error
}

// WorkerPool is a fixed-size Executor with a bounded queue.
type WorkerPool struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan func()
	wg     sync.WaitGroup
}

// NewWorkerPool starts workers goroutines sharing a queue of queueSize pending tasks.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{tasks: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	slog.Debug(fmt.Sprintf("%s - Started %d workers (queue %d)", poolLogPrefix, workers, queueSize))
	return p
}

// Submit enqueues task without blocking. It returns ErrExecutorFull when no worker or queue slot is
// free and ErrExecutorClosed after Close.
func (p *WorkerPool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrExecutorClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrExecutorFull
	}
}

// Close stops accepting tasks, lets queued ones finish, and waits for the workers.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		runTask(poolLogPrefix, task)
	}
}
