package animation

import "github.com/jaennil/guide_helper/backend/tileanim/internal/tile"

// Observer receives engine notifications. Methods may be called from
// scheduler and clock goroutines, never while the engine is locked, so they
// may call back into the engine.
type Observer interface {
	OnStateChanged(prev, cur State)
	OnFrameAdvanced(frame int)
	OnError(kind ErrorKind, msg string)
}

// TileObserver is implemented by observers that want to know when an
// asynchronous static fetch started by TileAt has landed.
type TileObserver interface {
	OnTileLoaded(c tile.Coordinate)
}

type nopObserver struct{}

func (nopObserver) OnStateChanged(State, State) {}
func (nopObserver) OnFrameAdvanced(int)         {}
func (nopObserver) OnError(ErrorKind, string)   {}

// notes queues observer calls made under the engine lock so they run after
// it is released.
type notes []func()

func (n *notes) add(fn func()) {
	*n = append(*n, fn)
}

func (n notes) flush() {
	for _, fn := range n {
		fn()
	}
}
