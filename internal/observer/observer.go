// Package observer implements the change-signaling mechanism long-poll
// streaming (C12) waits on: a Signaler attached to a buffer notifies every
// attached Observer of the smallest sequence number it has seen since the
// observer was last reset.
package observer

import (
	"context"
	"math"
	"sync"
	"time"
)

const unsignaled = math.MaxUint64

// Observer tracks the smallest sequence number it has been signaled with
// since construction or the last Reset. UINT64_MAX means unsignaled.
type Observer struct {
	mu        sync.Mutex
	seq       uint64
	notifyCh  chan struct{}
	signalers map[*Signaler]struct{}
}

// NewObserver builds an unsignaled Observer.
func NewObserver() *Observer {
	return &Observer{
		seq:       unsignaled,
		notifyCh:  make(chan struct{}),
		signalers: make(map[*Signaler]struct{}),
	}
}

// Wait blocks until signaled, until timeout elapses, or until ctx is
// canceled, returning the smallest signaled sequence and whether the call
// returned by timeout/cancellation rather than a signal. A zero timeout
// disables the timer; the call still honors ctx.
func (o *Observer) Wait(ctx context.Context, timeout time.Duration) (seq uint64, timedOut bool) {
	o.mu.Lock()
	if o.seq != unsignaled {
		seq := o.seq
		o.mu.Unlock()
		return seq, false
	}
	ch := o.notifyCh
	o.mu.Unlock()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ch:
		o.mu.Lock()
		seq := o.seq
		o.mu.Unlock()
		return seq, false
	case <-timeoutCh:
		return unsignaled, true
	case <-ctx.Done():
		return unsignaled, true
	}
}

// Reset returns the observer to the unsignaled state.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq = unsignaled
}

// Close deregisters the observer from every signaler it is attached to, so
// no dangling notification can fire afterward.
func (o *Observer) Close() {
	o.mu.Lock()
	sigs := make([]*Signaler, 0, len(o.signalers))
	for s := range o.signalers {
		sigs = append(sigs, s)
	}
	o.signalers = make(map[*Signaler]struct{})
	o.mu.Unlock()

	for _, s := range sigs {
		s.Detach(o)
	}
}

func (o *Observer) signal(seq uint64) {
	o.mu.Lock()
	if o.seq == unsignaled || o.seq > seq {
		o.seq = seq
	}
	ch := o.notifyCh
	o.notifyCh = make(chan struct{})
	o.mu.Unlock()
	close(ch)
}

func (o *Observer) trackSignaler(s *Signaler) {
	o.mu.Lock()
	o.signalers[s] = struct{}{}
	o.mu.Unlock()
}

func (o *Observer) forgetSignaler(s *Signaler) {
	o.mu.Lock()
	delete(o.signalers, s)
	o.mu.Unlock()
}

// Signaler holds the set of observers attached to one buffer (or one
// data-item's change stream) and wakes them on Signal.
type Signaler struct {
	mu        sync.Mutex
	observers map[*Observer]struct{}
}

// NewSignaler builds an empty Signaler.
func NewSignaler() *Signaler {
	return &Signaler{observers: make(map[*Observer]struct{})}
}

// Attach registers o to receive future signals.
func (s *Signaler) Attach(o *Observer) {
	s.mu.Lock()
	s.observers[o] = struct{}{}
	s.mu.Unlock()
	o.trackSignaler(s)
}

// Detach deregisters o.
func (s *Signaler) Detach(o *Observer) {
	s.mu.Lock()
	delete(s.observers, o)
	s.mu.Unlock()
	o.forgetSignaler(s)
}

// Signal notifies every attached observer that seq is now available,
// lowering each observer's pending sequence if seq is smaller than what it
// already holds.
func (s *Signaler) Signal(seq uint64) {
	s.mu.Lock()
	observers := make([]*Observer, 0, len(s.observers))
	for o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o.signal(seq)
	}
}

// Close detaches every observer still attached, so destroying the signaler
// cannot leave a dangling registration on either side.
func (s *Signaler) Close() {
	s.mu.Lock()
	observers := make([]*Observer, 0, len(s.observers))
	for o := range s.observers {
		observers = append(observers, o)
	}
	s.observers = make(map[*Observer]struct{})
	s.mu.Unlock()

	for _, o := range observers {
		o.forgetSignaler(s)
	}
}
