package wasm

import "sync"

// State is a step of an instantiation's lifecycle.
//
//	Uninitialized -> Loading -> Instantiating -> Ready
//	any non-terminal state -> Failed
//
// Loading is skipped when the bytes are already in memory.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateInstantiating
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateInstantiating:
		return "instantiating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// lifecycle records forward-only state transitions.
type lifecycle struct {
	mu    sync.Mutex
	state State
	trace []State
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		state: StateUninitialized,
		trace: []State{StateUninitialized},
	}
}

// advance moves to the given state. Re-entering the current state is a no-op.
// It reports false for transitions out of a terminal state or backwards.
func (l *lifecycle) advance(to State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == to {
		return true
	}
	if l.state.Terminal() {
		return false
	}
	if to != StateFailed && to < l.state {
		return false
	}
	l.state = to
	l.trace = append(l.trace, to)
	return true
}

func (l *lifecycle) current() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *lifecycle) history() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, len(l.trace))
	copy(out, l.trace)
	return out
}
