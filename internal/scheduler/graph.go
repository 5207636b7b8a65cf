// Package scheduler runs dependency-ordered fetch work on a bounded worker
// pool.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var ErrNoRootTask = errors.New("task graph has no task without dependencies")

// Task is a node of a Graph. Heavy tasks occupy a worker slot while they run;
// light tasks run inline on the goroutine that completed their last
// dependency.
type Task struct {
	name       string
	heavy      bool
	run        func(ctx context.Context)
	pending    atomic.Int32
	dependents []*Task
}

func (t *Task) Name() string {
	return t.name
}

// DependsOn adds edges so that t starts only after every dep has completed.
// It must be called before the graph runs.
func (t *Task) DependsOn(deps ...*Task) {
	for _, d := range deps {
		d.dependents = append(d.dependents, t)
		t.pending.Add(1)
	}
}

// Graph is a one-shot DAG of tasks.
type Graph struct {
	tasks []*Task
	heavy int
}

func NewGraph() *Graph {
	return &Graph{}
}

// Add registers a task. run receives the context passed to Run.
func (g *Graph) Add(name string, heavy bool, run func(ctx context.Context)) *Task {
	t := &Task{name: name, heavy: heavy, run: run}
	g.tasks = append(g.tasks, t)
	if heavy {
		g.heavy++
	}
	return t
}

func (g *Graph) Len() int {
	return len(g.tasks)
}

// Run executes the graph with at most workers heavy tasks in flight, each of
// them also holding one slot of sem. Once ctx is cancelled, tasks that have
// not started are completed without running so the graph drains; Run then
// returns ctx.Err().
func (g *Graph) Run(ctx context.Context, sem *semaphore.Weighted, workers int) error {
	if len(g.tasks) == 0 {
		return nil
	}

	roots := make([]*Task, 0)
	for _, t := range g.tasks {
		if t.pending.Load() == 0 {
			roots = append(roots, t)
		}
	}
	if len(roots) == 0 {
		return ErrNoRootTask
	}
	if workers < 1 {
		workers = 1
	}

	r := &runner{
		ctx:       ctx,
		sem:       sem,
		ready:     make(chan *Task, g.heavy),
		remaining: int64(len(g.tasks)),
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range r.ready {
				r.execHeavy(t)
			}
		}()
	}

	for _, t := range roots {
		r.dispatch(t)
	}

	wg.Wait()

	return ctx.Err()
}

type runner struct {
	ctx       context.Context
	sem       *semaphore.Weighted
	ready     chan *Task
	remaining int64
	closeOnce sync.Once
}

func (r *runner) dispatch(t *Task) {
	if t.heavy {
		r.ready <- t
		return
	}
	r.exec(t)
}

func (r *runner) execHeavy(t *Task) {
	if r.ctx.Err() != nil {
		r.complete(t)
		return
	}
	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		r.complete(t)
		return
	}
	if r.ctx.Err() == nil {
		t.run(r.ctx)
	}
	r.sem.Release(1)
	r.complete(t)
}

func (r *runner) exec(t *Task) {
	if r.ctx.Err() == nil {
		t.run(r.ctx)
	}
	r.complete(t)
}

func (r *runner) complete(t *Task) {
	for _, d := range t.dependents {
		if d.pending.Add(-1) == 0 {
			r.dispatch(d)
		}
	}
	if atomic.AddInt64(&r.remaining, -1) == 0 {
		r.closeOnce.Do(func() { close(r.ready) })
	}
}
