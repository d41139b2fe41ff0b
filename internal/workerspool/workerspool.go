// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements a pool of goroutines with a soft limit on parallelism, used to spread
// independent per-sample work (copying and normalizing image samples).
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of tasks running in parallel.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning     int
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return NewWithParallelism(runtime.NumCPU())
}

// NewWithParallelism returns a new Pool with the given maxParallelism. See Pool.SetMaxParallelism.
func NewWithParallelism(maxParallelism int) *Pool {
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsEnabled returns whether parallelism is enabled (maxParallelism is != 0)
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism is a soft-target for parallelism.
// If set to 0 parallelism is disabled.
// If set to -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism.
//
// You should only change the parallelism before any workers start running. If changed during the execution
// the behavior is undefined.
func (w *Pool) SetMaxParallelism(maxParallelism int) {
	w.maxParallelism = maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with workerPool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available to run the task.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.IsUnlimited() {
		go task()
		return
	} else if w.maxParallelism == 0 {
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.lockedRunTaskInGoroutine(task)
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with workerPool.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// ForEach calls task(ii) for every ii in [0, n), spreading the calls over the pool, and returns
// when all of them are finished.
//
// Each index is processed by exactly one call, so tasks writing only to the position of their
// index don't need any further synchronization.
func (w *Pool) ForEach(n int, task func(ii int)) {
	var wg sync.WaitGroup
	for ii := range n {
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			task(ii)
		})
	}
	wg.Wait()
}
