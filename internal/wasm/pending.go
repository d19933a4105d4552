package wasm

import (
	"context"
	"sync"
)

// Pending is the deferred completion returned by Loader.Init.
// It resolves exactly once to an *InitOutput or an error.
type Pending struct {
	lc   *lifecycle
	done chan struct{}

	mu        sync.Mutex
	resolved  bool
	discarded bool
	out       *InitOutput
	err       error
}

func newPending() *Pending {
	return &Pending{
		lc:   newLifecycle(),
		done: make(chan struct{}),
	}
}

// Done is closed once the initialization has resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Await blocks until the initialization resolves or ctx is done.
// Giving up on ctx does not stop the initialization; call Discard for that.
func (p *Pending) Await(ctx context.Context) (*InitOutput, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.discarded {
		return nil, ErrDiscarded
	}
	return p.out, p.err
}

// State returns the current lifecycle state.
func (p *Pending) State() State {
	return p.lc.current()
}

// Trace returns every state visited so far, in order.
func (p *Pending) Trace() []State {
	return p.lc.history()
}

// Discard abandons the initialization. An output that is or becomes ready is
// closed instead of being handed to the caller.
func (p *Pending) Discard(ctx context.Context) {
	p.mu.Lock()
	if p.discarded {
		p.mu.Unlock()
		return
	}
	p.discarded = true
	out := p.out
	resolved := p.resolved
	p.mu.Unlock()

	if resolved && out != nil {
		_ = out.Close(ctx)
	}
}

func (p *Pending) resolve(out *InitOutput, err error) {
	p.mu.Lock()
	p.resolved = true
	p.out, p.err = out, err
	discarded := p.discarded
	p.mu.Unlock()

	close(p.done)

	if discarded && out != nil {
		_ = out.Close(context.Background())
	}
}
