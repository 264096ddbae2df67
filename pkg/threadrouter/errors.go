// Package threadrouter runs call bodies on the execution context a call asks for.
package threadrouter

import "errors"

var (
	// ErrLoopNotRunning is returned by MainLoop.Post before Start or after Stop.
	ErrLoopNotRunning = errors.New("threadrouter: main loop is not running")
	// ErrExecutorClosed is returned by WorkerPool.Submit after Close.
	ErrExecutorClosed = errors.New("threadrouter: executor closed")
	// ErrExecutorFull is returned by WorkerPool.Submit when its queue is full.
	ErrExecutorFull = errors.New("threadrouter: executor queue full")
)
