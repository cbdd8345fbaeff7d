// Package workpool runs tasks on a bounded set of goroutines.
package workpool

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Pool runs tasks with at most limit of them in flight. Execute blocks while
// the pool is full.
type Pool struct {
	group   errgroup.Group
	running atomic.Int64
}

// New creates a pool. A limit below one means unbounded.
func New(limit int) *Pool {
	p := &Pool{}
	if limit > 0 {
		p.group.SetLimit(limit)
	}
	return p
}

// Execute schedules task
func (p *Pool) Execute(task func()) {
	p.group.Go(func() error {
		p.running.Add(1)
		defer p.running.Add(-1)
		task()
		return nil
	})
}

// TryExecute schedules task unless the pool is full
func (p *Pool) TryExecute(task func()) bool {
	return p.group.TryGo(func() error {
		p.running.Add(1)
		defer p.running.Add(-1)
		task()
		return nil
	})
}

// Running returns the number of tasks currently executing
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Wait blocks until every scheduled task has returned
func (p *Pool) Wait() {
	_ = p.group.Wait()
}

// Inline runs tasks on the calling goroutine
type Inline struct{}

// Execute runs task immediately
func (Inline) Execute(task func()) {
	task()
}
