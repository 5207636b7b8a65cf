package animation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/tileanim/internal/tile"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
)

const waitTimeout = 5 * time.Second

func pngTile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeFetcher struct {
	body []byte
	// status returns the response code for url; nil means 200 for all
	status func(url string) int
	// gate blocks every fetch until closed
	gate    chan struct{}
	started chan string

	mu    sync.Mutex
	calls map[string]int
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	return &fakeFetcher{
		body:  pngTile(t),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, int, error) {
	f.mu.Lock()
	f.calls[url]++
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- url:
		default:
		}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	if f.status != nil {
		if code := f.status(url); code != http.StatusOK {
			return []byte("not found"), code, nil
		}
	}
	return f.body, http.StatusOK, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) reset() {
	f.mu.Lock()
	f.calls = make(map[string]int)
	f.mu.Unlock()
}

type transition struct {
	prev, cur State
}

type recorder struct {
	mu          sync.Mutex
	transitions []transition
	frames      []int
	errors      []ErrorKind

	frameCh  chan int
	stateCh  chan State
	loadedCh chan tile.Coordinate
}

func newRecorder() *recorder {
	return &recorder{
		frameCh:  make(chan int, 64),
		stateCh:  make(chan State, 64),
		loadedCh: make(chan tile.Coordinate, 64),
	}
}

func (r *recorder) OnStateChanged(prev, cur State) {
	r.mu.Lock()
	r.transitions = append(r.transitions, transition{prev, cur})
	r.mu.Unlock()
	r.stateCh <- cur
}

func (r *recorder) OnFrameAdvanced(frame int) {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	r.frameCh <- frame
}

func (r *recorder) OnError(kind ErrorKind, _ string) {
	r.mu.Lock()
	r.errors = append(r.errors, kind)
	r.mu.Unlock()
}

func (r *recorder) OnTileLoaded(c tile.Coordinate) {
	r.loadedCh <- c
}

func (r *recorder) snapshot() ([]transition, []int, []ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.transitions...),
		append([]int(nil), r.frames...),
		append([]ErrorKind(nil), r.errors...)
}

func templates(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://tiles.test/radar/%d/{z}/{x}/{y}.png", i)
	}
	return urls
}

func testConfig(urls []string) Config {
	return Config{
		FrameDuration: time.Hour,
		MinZoom:       3,
		MaxZoom:       9,
		TileSize:      256,
		TemplateURLs:  urls,
		Workers:       4,
	}
}

// viewport2x2 covers tiles 10..11 x 10..11 at zoom 5.
func viewport2x2() tile.Rect {
	w := tile.WorldTileWidth(5, 256)
	return tile.NewRect(10.5*w, 10.5*w, 11.5*w, 11.5*w)
}

func newTestEngine(t *testing.T, cfg Config, f *fakeFetcher) (*Engine, *recorder) {
	t.Helper()
	rec := newRecorder()
	e, err := New(cfg, f, rec, logger.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e, rec
}

type result struct {
	ok  bool
	err error
}

type loadResult struct {
	mu       sync.Mutex
	progress []int
	calls    int
	done     chan result
}

func newLoadResult() *loadResult {
	return &loadResult{done: make(chan result, 4)}
}

func (l *loadResult) onProgress(frame int) {
	l.mu.Lock()
	l.progress = append(l.progress, frame)
	l.mu.Unlock()
}

func (l *loadResult) onComplete(ok bool, err error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	l.done <- result{ok, err}
}

func (l *loadResult) wait(t *testing.T) result {
	t.Helper()
	select {
	case r := <-l.done:
		return r
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for completion")
		return result{}
	}
}

func (l *loadResult) state() ([]int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.progress...), l.calls
}

func waitFrame(t *testing.T, rec *recorder, want int) {
	t.Helper()
	for {
		select {
		case f := <-rec.frameCh:
			if f == want {
				return
			}
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for frame %d", want)
		}
	}
}

func waitState(t *testing.T, rec *recorder, want State) {
	t.Helper()
	for {
		select {
		case s := <-rec.stateCh:
			if s == want {
				return
			}
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func loadViewport(t *testing.T, e *Engine) {
	t.Helper()
	lr := newLoadResult()
	if err := e.FetchTiles(viewport2x2(), 5, lr.onProgress, lr.onComplete); err != nil {
		t.Fatalf("FetchTiles failed: %v", err)
	}
	if r := lr.wait(t); !r.ok {
		t.Fatalf("expected successful load, got %v", r.err)
	}
}

func TestFetchTilesReportsEveryFrameInOrder(t *testing.T) {
	f := newFakeFetcher(t)
	e, rec := newTestEngine(t, testConfig(templates(3)), f)

	lr := newLoadResult()
	if err := e.FetchTiles(viewport2x2(), 5, lr.onProgress, lr.onComplete); err != nil {
		t.Fatalf("FetchTiles failed: %v", err)
	}

	r := lr.wait(t)
	if !r.ok || r.err != nil {
		t.Fatalf("expected onComplete(true, nil), got (%v, %v)", r.ok, r.err)
	}

	progress, calls := lr.state()
	if fmt.Sprint(progress) != "[0 1 2]" {
		t.Errorf("expected progress [0 1 2], got %v", progress)
	}
	if calls != 1 {
		t.Errorf("expected one completion, got %d", calls)
	}

	if e.State() != Stopped {
		t.Errorf("expected Stopped after load, got %s", e.State())
	}
	if e.LoadedFrames() != 3 {
		t.Errorf("expected 3 loaded frames, got %d", e.LoadedFrames())
	}

	for _, c := range []tile.Coordinate{{X: 10, Y: 10, Z: 5}, {X: 11, Y: 10, Z: 5}, {X: 10, Y: 11, Z: 5}, {X: 11, Y: 11, Z: 5}} {
		snap, ok := e.AnimationTile(c)
		if !ok {
			t.Fatalf("tile %s missing from animation set", c)
		}
		if snap.Image == nil || snap.Frame != 0 {
			t.Errorf("tile %s: expected image for frame 0, got frame %d image %v", c, snap.Frame, snap.Image != nil)
		}
		for frame := 0; frame < 3; frame++ {
			url := tile.Resolve(templates(3)[frame], c, frame)
			if n := f.count(url); n != 1 {
				t.Errorf("expected %s fetched once, got %d", url, n)
			}
		}
	}

	transitions, _, _ := rec.snapshot()
	want := []transition{{Stopped, Loading}, {Loading, Stopped}}
	if fmt.Sprint(transitions) != fmt.Sprint(want) {
		t.Errorf("expected transitions %v, got %v", want, transitions)
	}
}

func TestFetchTilesWithoutFrames(t *testing.T) {
	e, rec := newTestEngine(t, testConfig(nil), newFakeFetcher(t))

	lr := newLoadResult()
	err := e.FetchTiles(viewport2x2(), 5, lr.onProgress, lr.onComplete)
	if !errors.Is(err, ErrNoFrames) {
		t.Fatalf("expected ErrNoFrames, got %v", err)
	}

	select {
	case r := <-lr.done:
		if r.ok || KindOf(r.err) != KindNoFrames {
			t.Errorf("expected onComplete(false, NoFrames), got (%v, %v)", r.ok, r.err)
		}
	default:
		t.Fatal("onComplete was not called synchronously")
	}

	if e.State() != Stopped {
		t.Errorf("expected Stopped, got %s", e.State())
	}
	if transitions, _, _ := rec.snapshot(); len(transitions) != 0 {
		t.Errorf("expected no transitions, got %v", transitions)
	}
}

func TestFetchTilesInvalidZoom(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(templates(2)), newFakeFetcher(t))

	lr := newLoadResult()
	err := e.FetchTiles(viewport2x2(), 25, lr.onProgress, lr.onComplete)
	if KindOf(err) != KindInvalidZoomLevel || !errors.Is(err, ErrInvalidZoomLevel) {
		t.Fatalf("expected InvalidZoomLevel, got %v", err)
	}
	if r := lr.wait(t); r.ok {
		t.Error("expected failed completion")
	}
	if e.State() != Stopped {
		t.Errorf("expected Stopped, got %s", e.State())
	}
}

func TestFetchTilesRejectsOversizedViewport(t *testing.T) {
	cfg := testConfig(templates(2))
	cfg.MaxZoom = tile.ReferenceZoom
	cfg.MaxTiles = 64
	f := newFakeFetcher(t)
	e, _ := newTestEngine(t, cfg, f)
	loadViewport(t, e)
	f.reset()

	world := tile.WorldTileWidth(0, 256)
	lr := newLoadResult()
	err := e.FetchTiles(tile.NewRect(0, 0, world, world), tile.ReferenceZoom, lr.onProgress, lr.onComplete)
	if KindOf(err) != KindTooManyTiles || !errors.Is(err, ErrTooManyTiles) {
		t.Fatalf("expected TooManyTiles, got %v", err)
	}
	var oe *OverlayError
	if !errors.As(err, &oe) {
		t.Errorf("expected an *OverlayError, got %T", err)
	}
	if r := lr.wait(t); r.ok {
		t.Error("expected failed completion")
	}

	if e.State() != Stopped {
		t.Errorf("expected Stopped, got %s", e.State())
	}
	f.mu.Lock()
	calls := len(f.calls)
	f.mu.Unlock()
	if calls != 0 {
		t.Errorf("expected no fetches, got %d", calls)
	}
	if !e.CanAnimate(viewport2x2(), 5) {
		t.Error("a rejected fetch must keep the previous animation set")
	}
}

func TestFailedTileIsSkippedOnFrameChange(t *testing.T) {
	broken := tile.Coordinate{X: 10, Y: 10, Z: 5}
	urls := templates(3)

	f := newFakeFetcher(t)
	f.status = func(url string) int {
		for frame, tmpl := range urls {
			if url == tile.Resolve(tmpl, broken, frame) {
				return http.StatusNotFound
			}
		}
		return http.StatusOK
	}

	e, rec := newTestEngine(t, testConfig(urls), f)
	loadViewport(t, e)

	snap, ok := e.AnimationTile(broken)
	if !ok || !snap.Failed || snap.Image != nil {
		t.Fatalf("expected failed tile without image, got %+v", snap)
	}

	_, _, errs := rec.snapshot()
	if len(errs) != 3 {
		t.Fatalf("expected 3 tile errors, got %v", errs)
	}
	for _, k := range errs {
		if k != KindBadResponseCode {
			t.Errorf("expected BadResponseCode, got %s", k)
		}
	}

	f.reset()
	if err := e.MoveToFrame(context.Background(), 1, true); err != nil {
		t.Fatalf("MoveToFrame failed: %v", err)
	}

	if n := f.count(tile.Resolve(urls[1], broken, 1)); n != 0 {
		t.Errorf("failed tile was fetched %d times", n)
	}
	healthy, _ := e.AnimationTile(tile.Coordinate{X: 11, Y: 11, Z: 5})
	if healthy.Image == nil || healthy.Frame != 1 {
		t.Errorf("expected healthy tile on frame 1, got frame %d", healthy.Frame)
	}
}

func TestRetryFailedPolicyRefetches(t *testing.T) {
	broken := tile.Coordinate{X: 11, Y: 10, Z: 5}
	urls := templates(2)

	f := newFakeFetcher(t)
	f.status = func(url string) int {
		if url == tile.Resolve(urls[1], broken, 1) {
			return http.StatusNotFound
		}
		return http.StatusOK
	}

	cfg := testConfig(urls)
	cfg.FailedTiles = RetryFailed
	e, _ := newTestEngine(t, cfg, f)
	loadViewport(t, e)

	f.reset()
	if err := e.MoveToFrame(context.Background(), 1, true); err != nil {
		t.Fatalf("MoveToFrame failed: %v", err)
	}
	if n := f.count(tile.Resolve(urls[1], broken, 1)); n != 1 {
		t.Errorf("expected one retry, got %d", n)
	}
}

func TestEveryFetchFailingFailsTheBatch(t *testing.T) {
	f := newFakeFetcher(t)
	f.status = func(string) int { return http.StatusInternalServerError }

	e, _ := newTestEngine(t, testConfig(templates(2)), f)

	lr := newLoadResult()
	if err := e.FetchTiles(viewport2x2(), 5, lr.onProgress, lr.onComplete); err != nil {
		t.Fatalf("FetchTiles failed: %v", err)
	}

	r := lr.wait(t)
	if r.ok || KindOf(r.err) != KindBadResponseCode {
		t.Fatalf("expected BadResponseCode failure, got (%v, %v)", r.ok, r.err)
	}
	var oe *OverlayError
	if !errors.As(r.err, &oe) || oe.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status code on error, got %v", r.err)
	}
	if e.State() != Stopped {
		t.Errorf("expected Stopped, got %s", e.State())
	}
	if e.CanAnimate(viewport2x2(), 5) {
		t.Error("failed batch must not replace the animation set")
	}
}

func TestMoveToFrameWhileAnimating(t *testing.T) {
	f := newFakeFetcher(t)
	e, rec := newTestEngine(t, testConfig(templates(3)), f)
	loadViewport(t, e)

	if err := e.StartAnimating(); err != nil {
		t.Fatalf("StartAnimating failed: %v", err)
	}
	waitFrame(t, rec, 0)

	if _, err := e.StaticTile(context.Background(), tile.Coordinate{X: 3, Y: 3, Z: 5}); err != nil {
		t.Fatalf("StaticTile failed: %v", err)
	}
	if e.store.StaticLen() != 1 {
		t.Fatalf("expected one static tile, got %d", e.store.StaticLen())
	}

	if err := e.MoveToFrame(context.Background(), 2, true); err != nil {
		t.Fatalf("MoveToFrame failed: %v", err)
	}

	if e.State() != Scrubbing {
		t.Errorf("expected Scrubbing, got %s", e.State())
	}
	if e.CurrentFrame() != 2 {
		t.Errorf("expected frame 2, got %d", e.CurrentFrame())
	}
	if e.store.StaticLen() != 0 {
		t.Errorf("expected static cache cleared, got %d entries", e.store.StaticLen())
	}

	e.mu.Lock()
	clock := e.clock
	e.mu.Unlock()
	if clock != nil {
		t.Error("expected clock stopped")
	}

	transitions, frames, _ := rec.snapshot()
	if last := transitions[len(transitions)-1]; last != (transition{Animating, Scrubbing}) {
		t.Errorf("expected Animating -> Scrubbing, got %v", last)
	}
	twos := 0
	for _, fr := range frames {
		if fr == 2 {
			twos++
		}
	}
	if twos != 1 {
		t.Errorf("expected OnFrameAdvanced(2) once, got frames %v", frames)
	}

	if err := e.MoveToFrame(context.Background(), 1, false); err != nil {
		t.Fatalf("final MoveToFrame failed: %v", err)
	}
	if e.State() != Stopped || e.CurrentFrame() != 1 {
		t.Errorf("expected Stopped on frame 1, got %s on %d", e.State(), e.CurrentFrame())
	}

	if err := e.MoveToFrame(context.Background(), 3, true); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestClockAdvancesFrames(t *testing.T) {
	cfg := testConfig(templates(3))
	cfg.FrameDuration = 10 * time.Millisecond
	e, rec := newTestEngine(t, cfg, newFakeFetcher(t))
	loadViewport(t, e)

	if err := e.StartAnimating(); err != nil {
		t.Fatalf("StartAnimating failed: %v", err)
	}
	waitFrame(t, rec, 0)
	waitFrame(t, rec, 1)
	waitFrame(t, rec, 2)
	waitFrame(t, rec, 0)

	e.PauseAnimating()
	if e.State() != Stopped {
		t.Errorf("expected Stopped, got %s", e.State())
	}
}

func TestStartAnimatingWhileLoading(t *testing.T) {
	f := newFakeFetcher(t)
	f.gate = make(chan struct{})
	e, rec := newTestEngine(t, testConfig(templates(2)), f)

	lr := newLoadResult()
	if err := e.FetchTiles(viewport2x2(), 5, lr.onProgress, lr.onComplete); err != nil {
		t.Fatalf("FetchTiles failed: %v", err)
	}
	if err := e.StartAnimating(); err != nil {
		t.Fatalf("StartAnimating while loading failed: %v", err)
	}
	if e.State() != Loading {
		t.Fatalf("expected Loading, got %s", e.State())
	}

	close(f.gate)
	if r := lr.wait(t); !r.ok {
		t.Fatalf("expected success, got %v", r.err)
	}
	waitState(t, rec, Animating)
	waitFrame(t, rec, 0)

	if err := e.StartAnimating(); !errors.Is(err, ErrAlreadyAnimating) {
		t.Errorf("expected ErrAlreadyAnimating, got %v", err)
	}

	e.PauseAnimating()
	if e.State() != Stopped {
		t.Errorf("expected Stopped, got %s", e.State())
	}
}

func TestPauseCancelsLoading(t *testing.T) {
	f := newFakeFetcher(t)
	f.gate = make(chan struct{})
	e, _ := newTestEngine(t, testConfig(templates(3)), f)

	lr := newLoadResult()
	if err := e.FetchTiles(viewport2x2(), 5, lr.onProgress, lr.onComplete); err != nil {
		t.Fatalf("FetchTiles failed: %v", err)
	}

	e.PauseAnimating()

	select {
	case r := <-lr.done:
		if r.ok || KindOf(r.err) != KindCancelled {
			t.Errorf("expected cancelled completion, got (%v, %v)", r.ok, r.err)
		}
	default:
		t.Fatal("expected completion before PauseAnimating returned")
	}
	if e.State() != Stopped {
		t.Errorf("expected Stopped, got %s", e.State())
	}

	close(f.gate)
	time.Sleep(50 * time.Millisecond)

	progress, calls := lr.state()
	if len(progress) != 0 || calls != 1 {
		t.Errorf("expected no callbacks after cancel, got progress %v and %d completions", progress, calls)
	}
	if e.CanAnimate(viewport2x2(), 5) {
		t.Error("cancelled batch must not populate the animation set")
	}
}

func TestCancelLoadingOnlyWhileLoading(t *testing.T) {
	e, rec := newTestEngine(t, testConfig(templates(2)), newFakeFetcher(t))
	loadViewport(t, e)

	before, _, _ := rec.snapshot()
	e.CancelLoading()
	after, _, _ := rec.snapshot()
	if len(after) != len(before) {
		t.Errorf("CancelLoading outside Loading changed state: %v", after)
	}
}

func TestNewFetchCancelsPrevious(t *testing.T) {
	f := newFakeFetcher(t)
	f.gate = make(chan struct{})
	e, _ := newTestEngine(t, testConfig(templates(2)), f)

	first := newLoadResult()
	if err := e.FetchTiles(viewport2x2(), 5, first.onProgress, first.onComplete); err != nil {
		t.Fatalf("FetchTiles failed: %v", err)
	}

	second := newLoadResult()
	w := tile.WorldTileWidth(6, 256)
	if err := e.FetchTiles(tile.NewRect(0, 0, w/2, w/2), 6, second.onProgress, second.onComplete); err != nil {
		t.Fatalf("second FetchTiles failed: %v", err)
	}

	if r := first.wait(t); r.ok || KindOf(r.err) != KindCancelled {
		t.Errorf("expected first batch cancelled, got (%v, %v)", r.ok, r.err)
	}

	close(f.gate)
	if r := second.wait(t); !r.ok {
		t.Fatalf("expected second batch to succeed, got %v", r.err)
	}

	if e.CanAnimate(viewport2x2(), 5) {
		t.Error("first viewport should not be animatable")
	}
	if !e.CanAnimate(tile.NewRect(0, 0, w/2, w/2), 6) {
		t.Error("second viewport should be animatable")
	}
}

func TestCanAnimate(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(templates(2)), newFakeFetcher(t))

	if e.CanAnimate(viewport2x2(), 5) {
		t.Error("nothing loaded yet")
	}

	loadViewport(t, e)

	if !e.CanAnimate(viewport2x2(), 5) {
		t.Error("expected loaded viewport to be animatable")
	}

	w := tile.WorldTileWidth(5, 256)
	if !e.CanAnimate(tile.NewRect(10.2*w, 10.2*w, 10.8*w, 10.8*w), 5) {
		t.Error("expected a sub-rectangle to be animatable")
	}
	if e.CanAnimate(tile.NewRect(10.5*w, 10.5*w, 12.5*w, 11.5*w), 5) {
		t.Error("expected a wider viewport not to be animatable")
	}
	if e.CanAnimate(viewport2x2(), 25) {
		t.Error("invalid zoom cannot animate")
	}
}

func TestTileAtStaticMissFetchesOnce(t *testing.T) {
	f := newFakeFetcher(t)
	f.gate = make(chan struct{})
	f.started = make(chan string, 16)
	e, rec := newTestEngine(t, testConfig(templates(2)), f)

	c := tile.Coordinate{X: 7, Y: 9, Z: 6}
	for i := 0; i < 5; i++ {
		if _, ok := e.TileAt(c); ok {
			t.Fatal("expected a miss on an empty static cache")
		}
	}

	select {
	case <-f.started:
	case <-time.After(waitTimeout):
		t.Fatal("static fetch never started")
	}
	close(f.gate)

	select {
	case got := <-rec.loadedCh:
		if got != c {
			t.Errorf("expected %s loaded, got %s", c, got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for OnTileLoaded")
	}

	snap, ok := e.TileAt(c)
	if !ok || snap.Image == nil {
		t.Fatal("expected static tile after load")
	}

	if n := f.count(tile.Resolve(templates(2)[0], c, 0)); n != 1 {
		t.Errorf("expected exactly one fetch, got %d", n)
	}
}

func TestTileAtOverzoomUsesAncestor(t *testing.T) {
	f := newFakeFetcher(t)
	e, _ := newTestEngine(t, testConfig(templates(1)), f)

	deep := tile.Coordinate{X: 2048, Y: 1024, Z: 12}
	snap, err := e.StaticTile(context.Background(), deep)
	if err != nil {
		t.Fatalf("StaticTile failed: %v", err)
	}

	want := tile.Coordinate{X: 256, Y: 128, Z: 9}
	if snap.Coordinate != want {
		t.Errorf("expected %s, got %s", want, snap.Coordinate)
	}
	if n := f.count(tile.Resolve(templates(1)[0], want, 0)); n != 1 {
		t.Errorf("expected ancestor fetched once, got %d", n)
	}
}

func TestStaticTileFailure(t *testing.T) {
	f := newFakeFetcher(t)
	f.status = func(string) int { return http.StatusNotFound }
	e, _ := newTestEngine(t, testConfig(templates(1)), f)

	snap, err := e.StaticTile(context.Background(), tile.Coordinate{X: 1, Y: 1, Z: 4})
	if KindOf(err) != KindBadResponseCode {
		t.Fatalf("expected BadResponseCode, got %v", err)
	}
	if snap.Image != nil || !snap.Failed {
		t.Errorf("expected failed snapshot without image, got %+v", snap)
	}
	if e.store.StaticLen() != 0 {
		t.Error("failed fetches must not be cached")
	}
}

func TestCachedTiles(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(templates(2)), newFakeFetcher(t))
	loadViewport(t, e)

	if got := len(e.CachedTiles(viewport2x2(), 5)); got != 4 {
		t.Errorf("expected 4 cached animation tiles, got %d", got)
	}

	c := tile.Coordinate{X: 10, Y: 10, Z: 5}
	if _, err := e.StaticTile(context.Background(), c); err != nil {
		t.Fatalf("StaticTile failed: %v", err)
	}
	static := e.CachedStaticTiles(viewport2x2(), 5)
	if len(static) != 1 || static[0].Coordinate != c {
		t.Errorf("expected one cached static tile, got %+v", static)
	}
}

func TestSetTemplateURLs(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(templates(3)), newFakeFetcher(t))
	loadViewport(t, e)

	if err := e.MoveToFrame(context.Background(), 2, false); err != nil {
		t.Fatalf("MoveToFrame failed: %v", err)
	}

	e.SetTemplateURLs(templates(5))

	if e.NumberOfFrames() != 5 {
		t.Errorf("expected 5 frames, got %d", e.NumberOfFrames())
	}
	if e.CurrentFrame() != 0 {
		t.Errorf("expected frame reset to 0, got %d", e.CurrentFrame())
	}
	if e.State() != Stopped {
		t.Errorf("expected Stopped, got %s", e.State())
	}
	if e.CanAnimate(viewport2x2(), 5) {
		t.Error("animation set must be dropped")
	}

	e.SetTemplateURLs(nil)
	if err := e.StartAnimating(); KindOf(err) != KindNoFrames {
		t.Errorf("expected NoFrames, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"min above max", func(c *Config) { c.MinZoom = 10 }},
		{"zoom beyond reference", func(c *Config) { c.MaxZoom = 21 }},
		{"no tile size", func(c *Config) { c.TileSize = 0 }},
		{"no frame duration", func(c *Config) { c.FrameDuration = 0 }},
		{"unknown policy", func(c *Config) { c.FailedTiles = "sometimes" }},
		{"empty template", func(c *Config) { c.TemplateURLs = []string{""} }},
		{"negative tile limit", func(c *Config) { c.MaxTiles = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(templates(1))
			tt.modify(&cfg)
			if _, err := New(cfg, newFakeFetcher(t), nil, nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if _, err := New(testConfig(templates(1)), newFakeFetcher(t), nil, nil); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestMoveToFrameRacesTemplateChanges(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(templates(3)), newFakeFetcher(t))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			e.SetTemplateURLs(templates(1 + i%4))
		}
	}()

	for i := 0; i < 500; i++ {
		err := e.MoveToFrame(context.Background(), 5, false)
		if !errors.Is(err, ErrInvalidFrame) {
			t.Fatalf("expected ErrInvalidFrame, got %v", err)
		}
		if n, frame := e.NumberOfFrames(), e.CurrentFrame(); n > 0 && frame >= n {
			t.Fatalf("frame %d outside %d frames", frame, n)
		}
	}
	close(stop)
	wg.Wait()
}
