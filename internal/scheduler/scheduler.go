package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const DefaultWorkers = 4

var ErrNoFrames = errors.New("no animation frames")

// FetchFunc fetches one (item, frame) pair. A returned error marks that pair
// as failed; it never aborts the rest of the batch.
type FetchFunc func(ctx context.Context, item, frame int) error

// Handlers receive the progress of a batch. OnFrame is called once per frame
// in increasing frame order. OnComplete is called once after the last
// OnFrame. Neither is called after the batch is cancelled.
type Handlers struct {
	OnFrame    func(frame int)
	OnComplete func()
}

// Scheduler owns the worker slots of one overlay. At most one batch is active
// at a time; starting a new one cancels the previous.
type Scheduler struct {
	workers int
	sem     *semaphore.Weighted
	logger  logger.Logger

	mu     sync.Mutex
	active *Batch
}

func New(workers int, l logger.Logger) *Scheduler {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Scheduler{
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  l,
	}
}

func (s *Scheduler) Workers() int {
	return s.workers
}

// FetchAll schedules fetch for every item of every frame. Frame f completes
// only after all of its fetches and after frame f-1.
func (s *Scheduler) FetchAll(items, frames int, fetch FetchFunc, h Handlers) (*Batch, error) {
	if frames <= 0 {
		return nil, ErrNoFrames
	}

	ctx, span := telemetry.Tracer().Start(context.Background(), "fetch_batch",
		trace.WithAttributes(
			attribute.Int("tiles", items),
			attribute.Int("frames", frames),
		),
	)
	ctx, cancel := context.WithCancel(ctx)

	b := &Batch{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	prev := s.active
	s.active = b
	s.mu.Unlock()

	if prev != nil {
		s.logger.Debug("cancelling previous fetch batch")
		prev.Cancel()
	}

	g := NewGraph()
	frameDone := make([]*Task, frames)
	for f := 0; f < frames; f++ {
		frame := f
		frameDone[f] = g.Add(fmt.Sprintf("frame-%d-done", frame), false, func(ctx context.Context) {
			metrics.FramesLoaded.Inc()
			span.AddEvent("frame_done", trace.WithAttributes(attribute.Int("frame", frame)))
			if h.OnFrame != nil {
				b.emit(func() { h.OnFrame(frame) })
			}
		})

		for i := 0; i < items; i++ {
			item := i
			t := g.Add(fmt.Sprintf("fetch-%d-%d", item, frame), true, func(ctx context.Context) {
				metrics.WorkersBusy.Inc()
				defer metrics.WorkersBusy.Dec()
				if err := fetch(ctx, item, frame); err != nil {
					b.failures.Add(1)
				}
			})
			frameDone[f].DependsOn(t)
		}

		if f > 0 {
			frameDone[f].DependsOn(frameDone[f-1])
		}
	}

	allDone := g.Add("all-done", false, func(ctx context.Context) {
		if h.OnComplete != nil {
			b.emit(h.OnComplete)
		}
	})
	allDone.DependsOn(frameDone...)

	s.logger.Debug("starting fetch batch", "tiles", items, "frames", frames, "tasks", g.Len())

	go func() {
		defer close(b.done)
		defer span.End()

		err := g.Run(ctx, s.sem, s.workers)
		cancel()

		s.mu.Lock()
		if s.active == b {
			s.active = nil
		}
		s.mu.Unlock()

		if err != nil {
			metrics.Batches.WithLabelValues("cancelled").Inc()
			span.SetStatus(codes.Error, err.Error())
			s.logger.Debug("fetch batch stopped", "error", err)
			return
		}

		metrics.Batches.WithLabelValues("completed").Inc()
		span.SetAttributes(attribute.Int64("failures", b.failures.Load()))
		span.SetStatus(codes.Ok, "")
		s.logger.Debug("fetch batch finished", "failures", b.failures.Load())
	}()

	return b, nil
}

// CancelAll cancels the active batch, if any.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	b := s.active
	s.active = nil
	s.mu.Unlock()

	if b != nil {
		b.Cancel()
	}
}

// Each calls fn for i in [0, n) sharing the worker slots with batches, and
// blocks until every call has returned or ctx is done.
func (s *Scheduler) Each(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	var g errgroup.Group
	for i := 0; i < n; i++ {
		item := i
		g.Go(func() error {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)

			metrics.WorkersBusy.Inc()
			defer metrics.WorkersBusy.Dec()

			fn(ctx, item)
			return nil
		})
	}
	return g.Wait()
}

// Batch is a handle on one FetchAll call.
type Batch struct {
	cancel     context.CancelFunc
	cancelled  atomic.Bool
	failures   atomic.Int64
	emitMu     sync.Mutex
	inCallback atomic.Bool
	done       chan struct{}
}

// Cancel stops the batch. No handler starts after Cancel returns; a handler
// that is already running may finish, and Cancel may be called from inside
// it.
func (b *Batch) Cancel() {
	b.cancelled.Store(true)
	b.cancel()

	if !b.inCallback.Load() {
		b.emitMu.Lock()
		b.emitMu.Unlock()
	}
}

func (b *Batch) Cancelled() bool {
	return b.cancelled.Load()
}

// Failures returns the number of fetches that returned an error so far.
func (b *Batch) Failures() int {
	return int(b.failures.Load())
}

// Done is closed once every task has completed or been skipped.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

func (b *Batch) Wait() {
	<-b.done
}

func (b *Batch) emit(fn func()) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	if b.cancelled.Load() {
		return
	}

	b.inCallback.Store(true)
	defer b.inCallback.Store(false)
	fn()
}
