// Package dispatch runs chunk I/O off the caller's goroutine and lets callers
// rejoin a batch of outstanding work.
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/hashicorp/go-multierror"
)

var ErrStopped = errors.New("dispatch: queue stopped")

// Queue is an execution context for tasks and completion handlers.
type Queue interface {
	Go(task func()) error
}

// Pool is a bounded worker pool.
type Pool struct {
	p pond.Pool
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{p: pond.NewPool(workers)}
}

func (p *Pool) Go(task func()) error {
	if p.p.Stopped() {
		return ErrStopped
	}
	if err := p.p.Go(task); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// Stop waits for queued tasks to finish and rejects new ones.
func (p *Pool) Stop() { p.p.StopAndWait() }

type Stats struct {
	Workers   int64  `json:"workers"`
	Running   int64  `json:"running"`
	Waiting   uint64 `json:"waiting"`
	Completed uint64 `json:"completed"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   int64(p.p.MaxConcurrency()),
		Running:   p.p.RunningWorkers(),
		Waiting:   p.p.WaitingTasks(),
		Completed: p.p.CompletedTasks(),
	}
}

// Inline runs every task on the calling goroutine.
type Inline struct{}

func (Inline) Go(task func()) error {
	task()
	return nil
}

// Group tracks a batch of tasks and collects their errors.
type Group struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs *multierror.Error
}

func (g *Group) Add(n int) { g.wg.Add(n) }

// Done marks one task finished. A nil err counts as success.
func (g *Group) Done(err error) {
	if err != nil {
		g.mu.Lock()
		g.errs = multierror.Append(g.errs, err)
		g.mu.Unlock()
	}
	g.wg.Done()
}

// Wait blocks until every task added so far has finished.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errs.ErrorOrNil()
}

// Submit runs task on q as part of g. If q rejects the task, the error is
// recorded immediately.
func (g *Group) Submit(q Queue, task func() error) {
	g.Add(1)
	if err := q.Go(func() { g.Done(task()) }); err != nil {
		g.Done(err)
	}
}
