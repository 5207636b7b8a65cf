package animation

// State is the playback state of an overlay.
type State int

const (
	Stopped State = iota
	Loading
	Animating
	Scrubbing
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Loading:
		return "loading"
	case Animating:
		return "animating"
	case Scrubbing:
		return "scrubbing"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	Stopped:   {Loading, Animating, Scrubbing},
	Loading:   {Animating, Stopped, Scrubbing},
	Animating: {Stopped, Scrubbing},
	Scrubbing: {Stopped, Animating},
}

// CanTransition reports whether the state machine allows moving from s to
// to. Staying in the same state is not a transition.
func (s State) CanTransition(to State) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// UsesAnimationSet reports whether tiles are read from the animation set in
// this state. Stopped reads from the static cache.
func (s State) UsesAnimationSet() bool {
	return s != Stopped
}
