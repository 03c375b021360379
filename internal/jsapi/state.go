package jsapi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type InitState uint32

const (
	Uninitialized InitState = iota
	Initializing
	Initialized
)

func (s InitState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Lifecycle is the at-most-one-handshake state machine. Only the caller that
// moves it out of Uninitialized runs the handshake; a failed handshake puts it
// back to Uninitialized so a later call can retry. Initialized is terminal.
type Lifecycle struct {
	state atomic.Uint32
	await bool

	mu       sync.Mutex
	inflight *attempt
}

var errHandshakeAborted = errors.New("handshake aborted")

type attempt struct {
	done chan struct{}
	err  error
	// set when the handshake failed after the winner's own context ended
	abandoned bool
}

// NewLifecycle builds a state machine. With await set, callers that find a
// handshake in flight wait for it and share its result instead of failing with
// ErrStillInitializing.
func NewLifecycle(await bool) *Lifecycle {
	return &Lifecycle{await: await}
}

func (l *Lifecycle) State() InitState {
	return InitState(l.state.Load())
}

func (l *Lifecycle) Ensure(ctx context.Context, handshake func(context.Context) error) error {
	for {
		switch l.State() {
		case Initialized:
			return nil
		case Uninitialized:
			if a := l.begin(); a != nil {
				return l.run(ctx, a, handshake)
			}
		case Initializing:
			if !l.await {
				return ErrStillInitializing
			}
			l.mu.Lock()
			a := l.inflight
			l.mu.Unlock()
			if a == nil {
				continue
			}
			select {
			case <-a.done:
				// the winner gave up on its own context; ours may still be live
				if (a.abandoned || isContextErr(a.err)) && ctx.Err() == nil {
					continue
				}
				return a.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (l *Lifecycle) begin() *attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.CompareAndSwap(uint32(Uninitialized), uint32(Initializing)) {
		return nil
	}
	l.inflight = &attempt{done: make(chan struct{})}
	return l.inflight
}

// run settles the attempt even when handshake panics, so the state never
// stays at Initializing and waiters are always released.
func (l *Lifecycle) run(ctx context.Context, a *attempt, handshake func(context.Context) error) (err error) {
	returned := false
	defer func() {
		if !returned {
			err = errHandshakeAborted
		}
		l.mu.Lock()
		if err == nil {
			l.state.Store(uint32(Initialized))
		} else {
			l.state.Store(uint32(Uninitialized))
		}
		l.inflight = nil
		a.err = err
		a.abandoned = err != nil && ctx.Err() != nil
		l.mu.Unlock()
		close(a.done)
	}()

	err = handshake(ctx)
	returned = true
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
