package runloop

import "sync"

// FutureState describes where a future is in its lifecycle.
type FutureState uint8

const (
	// Pending means the future has not settled.
	Pending FutureState = iota
	// Fulfilled means the future settled with a value.
	Fulfilled
	// Rejected means the future settled with an error.
	Rejected
	// Canceled means the future settled with the distinct cancelled
	// status. Cancellation is a deliberate early termination, not an
	// error, and never escalates to the fatal sink.
	Canceled
)

func (st FutureState) String() string {
	switch st {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result is the settled outcome of a Future. Exactly one of the three
// shapes holds: a value, an error, or Canceled set.
type Result struct {
	Value    any
	Err      error
	Canceled bool
}

// Future is a single-settlement completion value. Settling and
// attaching continuations happen on the scheduler's logical thread;
// continuations run as low-tier microtasks. Wait, Done and Result are
// safe from any goroutine, which is how external threads consume a
// completion by blocking.
type Future struct {
	s    *Scheduler
	done chan struct{}

	mu        sync.Mutex
	state     FutureState
	result    Result
	callbacks []func(Result)
	observed  bool
}

// NewFuture creates a pending future bound to the scheduler.
func (s *Scheduler) NewFuture() *Future {
	return &Future{s: s, done: make(chan struct{})}
}

// State reports the current lifecycle state.
func (f *Future) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Then registers fn to run with the settled result, as a low-tier
// microtask. If the future already settled, fn is still scheduled, not
// invoked synchronously. Registering a continuation observes the
// future for rejection-escalation purposes.
func (f *Future) Then(fn func(Result)) *Future {
	f.mu.Lock()
	f.observed = true
	if f.state == Pending {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return f
	}
	res := f.result
	f.mu.Unlock()
	f.s.Schedule(KindMicrotaskLow, func() { fn(res) })
	return f
}

// Done returns a channel closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	f.mu.Lock()
	f.observed = true
	f.mu.Unlock()
	return f.done
}

// Wait blocks the calling goroutine until the future settles and
// returns the result. It must not be called from the scheduler's
// logical thread, which would deadlock the loop against itself.
func (f *Future) Wait() Result {
	<-f.Done()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// Result returns the settled result. It is only meaningful once the
// future has settled.
func (f *Future) Result() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = true
	return f.result
}

// Fulfill settles the future with a value. It reports whether this
// call performed the settlement.
func (f *Future) Fulfill(v any) bool {
	return f.settle(Fulfilled, Result{Value: v})
}

// Reject settles the future with an error. If nothing observes the
// future by the time a follow-up low-tier check runs, the error
// escalates to the scheduler's fatal sink: silently swallowing it
// would hide corruption.
func (f *Future) Reject(err error) bool {
	if !f.settle(Rejected, Result{Err: err}) {
		return false
	}
	f.mu.Lock()
	observed := f.observed
	f.mu.Unlock()
	if !observed {
		f.s.Schedule(KindMicrotaskLow, func() {
			f.mu.Lock()
			observed := f.observed
			f.mu.Unlock()
			if !observed {
				f.s.fatalError("future", err)
			}
		})
	}
	return true
}

// Cancel settles the future with the cancelled status. An offloaded
// job backing the future still runs to completion on its worker
// thread; its result is discarded. Cancel reports whether this call
// performed the settlement.
func (f *Future) Cancel() bool {
	return f.settle(Canceled, Result{Canceled: true})
}

func (f *Future) settle(st FutureState, res Result) bool {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return false
	}
	f.state = st
	f.result = res
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn := fn
		f.s.Schedule(KindMicrotaskLow, func() { fn(res) })
	}
	return true
}
