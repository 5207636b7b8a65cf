// Package animation plays a time-animated tile overlay: it loads every tile
// of a viewport for every frame, then plays the frames back on a clock or
// lets the host scrub through them.
package animation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/fetcher"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/scheduler"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/tile"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// FailedTilePolicy decides whether a tile whose last fetch failed is fetched
// again when the frame changes.
type FailedTilePolicy string

const (
	SkipFailed  FailedTilePolicy = "skip"
	RetryFailed FailedTilePolicy = "retry"
)

// DefaultMaxTiles bounds one viewport; every tile is fetched once per frame.
const DefaultMaxTiles = 1024

type Config struct {
	FrameDuration time.Duration    `validate:"gt=0"`
	MinZoom       int              `validate:"gte=0,lte=20,ltefield=MaxZoom"`
	MaxZoom       int              `validate:"gte=0,lte=20"`
	TileSize      int              `validate:"gt=0"`
	TemplateURLs  []string         `validate:"dive,required"`
	Workers       int              `validate:"gte=1,lte=64"`
	StaticTiles   int              `validate:"gte=1"`
	MaxTiles      int              `validate:"gte=1"`
	FailedTiles   FailedTilePolicy `validate:"oneof=skip retry"`
}

func (c *Config) setDefaults() {
	if c.Workers == 0 {
		c.Workers = scheduler.DefaultWorkers
	}
	if c.StaticTiles == 0 {
		c.StaticTiles = DefaultStaticTiles
	}
	if c.MaxTiles == 0 {
		c.MaxTiles = DefaultMaxTiles
	}
	if c.FailedTiles == "" {
		c.FailedTiles = SkipFailed
	}
}

// Engine owns one overlay. Every mutation of state, frame index and the
// animation set happens under mu; observer and host callbacks are invoked
// after it is released.
type Engine struct {
	cfg       Config
	grid      tile.Grid
	fetcher   fetcher.Fetcher
	scheduler *scheduler.Scheduler
	store     *TileStore
	observer  Observer
	logger    logger.Logger
	statics   singleflight.Group

	mu            sync.Mutex
	state         State
	templates     []string
	frame         int
	frameGen      uint64
	advance       bool
	clock         *FrameClock
	clockGen      uint64
	batch         *scheduler.Batch
	loadGen       uint64
	loaded        int
	complete      func(bool, error)
	playRequested bool
}

func New(cfg Config, f fetcher.Fetcher, obs Observer, l logger.Logger) (*Engine, error) {
	cfg.setDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid animation config: %w", err)
	}

	store, err := NewTileStore(cfg.StaticTiles)
	if err != nil {
		return nil, err
	}

	if obs == nil {
		obs = nopObserver{}
	}
	if l == nil {
		l = logger.NewNop()
	}

	return &Engine{
		cfg: cfg,
		grid: tile.Grid{
			MinZoom:  cfg.MinZoom,
			MaxZoom:  cfg.MaxZoom,
			TileSize: cfg.TileSize,
			MaxTiles: cfg.MaxTiles,
		},
		fetcher:   f,
		scheduler: scheduler.New(cfg.Workers, l),
		store:     store,
		observer:  obs,
		logger:    l,
		templates: append([]string(nil), cfg.TemplateURLs...),
	}, nil
}

// load is one FetchTiles call.
type load struct {
	gen        uint64
	tiles      []*Tile
	frames     int
	onProgress func(int)
	failures   atomic.Int64
	errOnce    sync.Once
	firstErr   error
}

func (ld *load) fail(err error) {
	ld.failures.Add(1)
	ld.errOnce.Do(func() { ld.firstErr = err })
}

// FetchTiles loads every tile covering rect at zoom for every frame.
// onProgress is called once per frame in frame order and onComplete once
// after the last frame. A batch that is cancelled completes with
// ErrCancelled. Errors that prevent the batch from starting are both passed
// to onComplete and returned.
func (e *Engine) FetchTiles(rect tile.Rect, zoom int, onProgress func(frame int), onComplete func(ok bool, err error)) error {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	if onComplete == nil {
		onComplete = func(bool, error) {}
	}

	cells, gridErr := e.grid.Compute(rect, zoom)

	e.mu.Lock()
	templates := e.templates
	if len(templates) == 0 {
		e.mu.Unlock()
		err := &OverlayError{Kind: KindNoFrames, Err: ErrNoFrames}
		e.logger.Warn("fetch requested without frames")
		onComplete(false, err)
		return err
	}
	if gridErr != nil {
		e.mu.Unlock()
		oe := wrap(gridErr, "")
		e.logger.Warn("fetch rejected", "zoom", zoom, "error", gridErr)
		onComplete(false, oe)
		return oe
	}

	tiles := make([]*Tile, len(cells))
	for i, c := range cells {
		tiles[i] = newTile(c, templates)
	}

	var n notes
	e.stopClockLocked()
	e.abortLoadLocked(&n)
	if e.state == Animating || e.state == Scrubbing {
		e.setStateLocked(Stopped, &n)
	}
	e.setStateLocked(Loading, &n)

	ld := &load{
		gen:        e.loadGen,
		tiles:      tiles,
		frames:     len(templates),
		onProgress: onProgress,
	}
	e.loaded = 0
	e.complete = onComplete
	e.mu.Unlock()
	n.flush()

	e.logger.Info("fetching animation tiles", "tiles", len(tiles), "frames", ld.frames, "zoom", zoom)

	b, err := e.scheduler.FetchAll(len(tiles), ld.frames,
		func(ctx context.Context, item, frame int) error {
			return e.fetchFrame(ctx, ld, tiles[item], frame)
		},
		scheduler.Handlers{
			OnFrame:    func(frame int) { e.frameLoaded(ld, frame) },
			OnComplete: func() { e.loadDone(ld) },
		},
	)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.loadGen != ld.gen {
		e.mu.Unlock()
		b.Cancel()
		return nil
	}
	e.batch = b
	e.mu.Unlock()

	return nil
}

func (e *Engine) fetchFrame(ctx context.Context, ld *load, t *Tile, frame int) error {
	url := t.URL(frame)
	img, err := fetcher.Load(ctx, e.fetcher, url)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		t.setFailed(true)
		ld.fail(err)
		e.reportTileError(t.coord, frame, url, err)
		return err
	}

	t.store(frame, img)
	return nil
}

func (e *Engine) frameLoaded(ld *load, frame int) {
	e.mu.Lock()
	if e.loadGen != ld.gen {
		e.mu.Unlock()
		return
	}
	e.loaded = frame + 1
	e.mu.Unlock()

	ld.onProgress(frame)
}

func (e *Engine) loadDone(ld *load) {
	e.mu.Lock()
	if e.loadGen != ld.gen {
		e.mu.Unlock()
		return
	}

	complete := e.complete
	e.complete = nil
	e.batch = nil
	e.loadGen++

	var n notes
	total := int64(len(ld.tiles) * ld.frames)
	if total > 0 && ld.failures.Load() == total {
		e.playRequested = false
		if e.state == Loading {
			e.setStateLocked(Stopped, &n)
		}
		e.mu.Unlock()
		n.flush()

		err := wrap(ld.firstErr, "")
		e.logger.Error("every tile fetch failed", "tiles", len(ld.tiles), "frames", ld.frames, "error", ld.firstErr)
		complete(false, err)
		return
	}

	e.store.ReplaceAnimation(ld.tiles)
	for _, t := range ld.tiles {
		t.show(e.frame)
	}

	var clock *FrameClock
	if e.state == Loading {
		if e.playRequested {
			e.setStateLocked(Animating, &n)
			e.advance = false
			clock = e.startClockLocked()
		} else {
			e.setStateLocked(Stopped, &n)
		}
	}
	e.playRequested = false
	e.mu.Unlock()

	e.logger.Info("animation tiles loaded", "tiles", len(ld.tiles), "frames", ld.frames, "failures", ld.failures.Load())

	n.flush()
	complete(true, nil)
	if clock != nil {
		clock.Start()
	}
}

// StartAnimating starts playback from the current frame. While loading it
// only records the request and playback starts once the batch succeeds.
func (e *Engine) StartAnimating() error {
	e.mu.Lock()
	if len(e.templates) == 0 {
		e.mu.Unlock()
		return &OverlayError{Kind: KindNoFrames, Err: ErrNoFrames}
	}

	switch e.state {
	case Animating:
		e.mu.Unlock()
		return ErrAlreadyAnimating
	case Loading:
		e.playRequested = true
		e.mu.Unlock()
		return nil
	}

	var n notes
	e.setStateLocked(Animating, &n)
	e.advance = false
	clock := e.startClockLocked()
	e.mu.Unlock()

	n.flush()
	clock.Start()
	return nil
}

// PauseAnimating stops the clock, cancels any loading batch and moves to
// Stopped.
func (e *Engine) PauseAnimating() {
	e.mu.Lock()
	var n notes
	e.stopLocked(&n)
	e.mu.Unlock()

	n.flush()
}

// CancelLoading is PauseAnimating restricted to the Loading state.
func (e *Engine) CancelLoading() {
	e.mu.Lock()
	if e.state != Loading {
		e.mu.Unlock()
		return
	}
	var n notes
	e.stopLocked(&n)
	e.mu.Unlock()

	n.flush()
}

// MoveToFrame jumps to frame. A continuous move scrubs: the clock stops and
// the call blocks until the animation set shows frame. A final move stops
// the overlay so the renderer switches to the static path.
func (e *Engine) MoveToFrame(ctx context.Context, frame int, continuous bool) error {
	e.mu.Lock()
	if len(e.templates) == 0 {
		e.mu.Unlock()
		return &OverlayError{Kind: KindNoFrames, Err: ErrNoFrames}
	}
	if n := len(e.templates); frame < 0 || frame >= n {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidFrame, frame, n)
	}

	var n notes
	e.stopClockLocked()
	e.playRequested = false

	if !continuous {
		if e.state == Loading {
			e.abortLoadLocked(&n)
		}
		e.setStateLocked(Stopped, &n)
		e.setFrameLocked(frame)
		obs := e.observer
		e.mu.Unlock()

		n.flush()
		obs.OnFrameAdvanced(frame)
		return nil
	}

	e.setStateLocked(Scrubbing, &n)
	e.store.ClearStatic()
	e.frameGen++
	gen := e.frameGen
	tiles := e.store.AnimationTiles()
	e.mu.Unlock()
	n.flush()

	if err := e.resolveFrame(ctx, tiles, frame); err != nil {
		return err
	}

	e.mu.Lock()
	if e.frameGen != gen || e.state != Scrubbing {
		e.mu.Unlock()
		return nil
	}
	e.setFrameLocked(frame)
	obs := e.observer
	e.mu.Unlock()

	obs.OnFrameAdvanced(frame)
	return nil
}

// CanAnimate reports whether every tile covering rect at zoom is already in
// the animation set.
func (e *Engine) CanAnimate(rect tile.Rect, zoom int) bool {
	coords, err := e.grid.Coordinates(rect, zoom)
	if err != nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.templates) == 0 {
		return false
	}
	return e.store.HasAll(coords)
}

// SetTemplateURLs replaces the frame templates. Playback stops, the frame
// index resets to 0 and both tile caches are dropped.
func (e *Engine) SetTemplateURLs(urls []string) {
	e.mu.Lock()
	var n notes
	e.stopLocked(&n)
	e.templates = append([]string(nil), urls...)
	e.frame = 0
	e.frameGen++
	e.loaded = 0
	e.store.ClearAnimation()
	e.store.ClearStatic()
	e.mu.Unlock()

	e.logger.Info("frame templates replaced", "frames", len(urls))
	n.flush()
}

// AnimationTile returns the animation-set tile for c.
func (e *Engine) AnimationTile(c tile.Coordinate) (Snapshot, bool) {
	c = e.overzoom(c)

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.store.AnimationTile(c)
	if !ok {
		return Snapshot{}, false
	}
	return t.Snapshot(), true
}

// StaticTile returns the static tile for c at the current frame, fetching it
// on a miss. A failed fetch returns a snapshot without an image together with
// the error.
func (e *Engine) StaticTile(ctx context.Context, c tile.Coordinate) (Snapshot, error) {
	c = e.overzoom(c)

	req, err := e.staticRequest(c)
	if err != nil {
		return Snapshot{Coordinate: c}, err
	}

	if snap, ok := e.store.StaticGet(c); ok {
		return snap, nil
	}
	return e.loadStatic(ctx, req, false)
}

// TileAt is the render query. It never blocks on the network: while stopped
// a static miss starts one background fetch and reports absence.
func (e *Engine) TileAt(c tile.Coordinate) (Snapshot, bool) {
	c = e.overzoom(c)

	e.mu.Lock()
	if e.state.UsesAnimationSet() {
		t, ok := e.store.AnimationTile(c)
		e.mu.Unlock()
		if !ok {
			return Snapshot{Coordinate: c}, false
		}
		snap := t.Snapshot()
		return snap, snap.Image != nil
	}
	e.mu.Unlock()

	req, err := e.staticRequest(c)
	if err != nil {
		return Snapshot{Coordinate: c}, false
	}

	if snap, ok := e.store.StaticGet(c); ok && snap.Image != nil {
		return snap, true
	}

	go e.loadStatic(context.Background(), req, true)
	return Snapshot{Coordinate: c}, false
}

// CachedTiles returns the animation tiles with an image that cover rect.
func (e *Engine) CachedTiles(rect tile.Rect, zoom int) []Snapshot {
	coords, err := e.grid.Coordinates(rect, zoom)
	if err != nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var snaps []Snapshot
	for _, c := range coords {
		t, ok := e.store.AnimationTile(c)
		if !ok {
			continue
		}
		if snap := t.Snapshot(); snap.Image != nil {
			snaps = append(snaps, snap)
		}
	}
	return snaps
}

// CachedStaticTiles returns the static tiles with an image that cover rect.
func (e *Engine) CachedStaticTiles(rect tile.Rect, zoom int) []Snapshot {
	coords, err := e.grid.Coordinates(rect, zoom)
	if err != nil {
		return nil
	}

	var snaps []Snapshot
	for _, c := range coords {
		if snap, ok := e.store.StaticPeek(c); ok && snap.Image != nil {
			snaps = append(snaps, snap)
		}
	}
	return snaps
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) CurrentFrame() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

func (e *Engine) NumberOfFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.templates)
}

// LoadedFrames returns how many frames of the current or last batch have
// completed.
func (e *Engine) LoadedFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *Engine) TemplateURLs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.templates...)
}

// Close stops playback and loading.
func (e *Engine) Close() {
	e.PauseAnimating()
	e.scheduler.CancelAll()
}

type staticRequest struct {
	coord tile.Coordinate
	frame int
	gen   uint64
	url   string
}

func (e *Engine) staticRequest(c tile.Coordinate) (staticRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.templates) == 0 {
		return staticRequest{}, &OverlayError{Kind: KindNoFrames, Err: ErrNoFrames}
	}
	return staticRequest{
		coord: c,
		frame: e.frame,
		gen:   e.frameGen,
		url:   tile.Resolve(e.templates[e.frame], c, e.frame),
	}, nil
}

// loadStatic fetches one static tile. Concurrent requests for the same URL
// share one fetch. The result is cached only if the frame has not changed in
// the meantime.
func (e *Engine) loadStatic(ctx context.Context, req staticRequest, async bool) (Snapshot, error) {
	v, err, _ := e.statics.Do(req.url, func() (any, error) {
		if snap, ok := e.store.StaticPeek(req.coord); ok && snap.Frame == req.frame {
			return snap, nil
		}

		snap := Snapshot{
			Coordinate: req.coord,
			Rect:       tile.MapRectForTile(req.coord, e.cfg.TileSize),
			Frame:      req.frame,
		}

		img, err := fetcher.Load(ctx, e.fetcher, req.url)
		if err != nil {
			snap.Failed = true
			if async {
				e.reportTileError(req.coord, req.frame, req.url, err)
			}
			return snap, wrap(err, req.url)
		}
		snap.Image = &img

		e.mu.Lock()
		current := e.frameGen == req.gen
		if current {
			e.store.StaticPut(snap)
		}
		e.mu.Unlock()

		if async && current {
			if to, ok := e.observer.(TileObserver); ok {
				to.OnTileLoaded(req.coord)
			}
		}
		return snap, nil
	})

	return v.(Snapshot), err
}

// resolveFrame makes sure every tile has an image slot for frame, fetching
// the missing ones on the shared workers. It blocks until every fetch has
// settled.
func (e *Engine) resolveFrame(ctx context.Context, tiles []*Tile, frame int) error {
	var pending []*Tile
	for _, t := range tiles {
		if t.slot(frame) != nil {
			continue
		}
		if e.cfg.FailedTiles == SkipFailed && t.Failed() {
			continue
		}
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		return nil
	}

	return e.scheduler.Each(ctx, len(pending), func(ctx context.Context, i int) {
		t := pending[i]
		url := t.URL(frame)
		img, err := fetcher.Load(ctx, e.fetcher, url)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			t.setFailed(true)
			e.reportTileError(t.coord, frame, url, err)
			return
		}
		t.store(frame, img)
		t.setFailed(false)
	})
}

func (e *Engine) tick(ctx context.Context, gen uint64) {
	e.mu.Lock()
	if e.clockGen != gen || e.state != Animating {
		e.mu.Unlock()
		return
	}
	frame := e.frame
	if e.advance {
		frame = (e.frame + 1) % len(e.templates)
	}
	tiles := e.store.AnimationTiles()
	e.mu.Unlock()

	if err := e.resolveFrame(ctx, tiles, frame); err != nil {
		return
	}

	e.mu.Lock()
	if e.clockGen != gen || e.state != Animating || ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.setFrameLocked(frame)
	e.advance = true
	obs := e.observer
	e.mu.Unlock()

	obs.OnFrameAdvanced(frame)
}

func (e *Engine) reportTileError(c tile.Coordinate, frame int, url string, err error) {
	kind := KindOf(err)
	e.logger.Warn("tile fetch failed", "z", c.Z, "x", c.X, "y", c.Y, "frame", frame, "kind", kind.String(), "error", err)
	e.observer.OnError(kind, fmt.Sprintf("tile %s frame %d: %v", c, frame, wrap(err, url)))
}

func (e *Engine) overzoom(c tile.Coordinate) tile.Coordinate {
	if c.Z > e.cfg.MaxZoom {
		return c.Ancestor(e.cfg.MaxZoom)
	}
	return c
}

func (e *Engine) setStateLocked(to State, n *notes) {
	from := e.state
	if from == to {
		return
	}
	if !from.CanTransition(to) {
		e.logger.Warn("ignoring invalid state transition", "from", from.String(), "to", to.String())
		return
	}

	e.state = to
	metrics.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	e.logger.Debug("animation state changed", "from", from.String(), "to", to.String())

	obs := e.observer
	n.add(func() { obs.OnStateChanged(from, to) })
}

// setFrameLocked shows frame on the animation set. Changing the frame
// invalidates the static cache.
func (e *Engine) setFrameLocked(frame int) {
	if frame != e.frame {
		e.frameGen++
		e.store.ClearStatic()
	}
	e.frame = frame
	for _, t := range e.store.AnimationTiles() {
		t.show(frame)
	}
}

func (e *Engine) startClockLocked() *FrameClock {
	e.stopClockLocked()
	gen := e.clockGen
	e.clock = NewFrameClock(e.cfg.FrameDuration, func(ctx context.Context) {
		e.tick(ctx, gen)
	})
	return e.clock
}

func (e *Engine) stopClockLocked() {
	if e.clock != nil {
		e.clock.Stop()
		e.clock = nil
	}
	e.clockGen++
}

// abortLoadLocked invalidates the loading batch. Cancelling it and
// completing it with ErrCancelled are queued on n, because Batch.Cancel waits
// for running handlers that need the engine lock.
func (e *Engine) abortLoadLocked(n *notes) {
	e.loadGen++
	e.playRequested = false

	b := e.batch
	e.batch = nil
	complete := e.complete
	e.complete = nil

	if b != nil {
		n.add(b.Cancel)
	}
	if complete != nil {
		e.logger.Info("animation loading cancelled")
		n.add(func() {
			complete(false, &OverlayError{Kind: KindCancelled, Err: ErrCancelled})
		})
	}
}

func (e *Engine) stopLocked(n *notes) {
	e.stopClockLocked()
	e.abortLoadLocked(n)
	e.setStateLocked(Stopped, n)
}
