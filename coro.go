package runloop

import (
	"fmt"
	"time"

	"github.com/webriots/coro"
)

// Coro is a cooperative coroutine running on the scheduler's logical
// thread. It lets sequential-looking code suspend on futures instead
// of chaining continuations: Await parks the coroutine until the
// future settles, then resumes it in the same microtask that delivered
// the result. Suspension is cooperative mark-and-check; nothing is
// preempted.
type Coro struct {
	s          *Scheduler
	resume     func(Result) (struct{}, bool)
	cancel     func()
	suspend    func() Result
	completion *Future
}

// Go starts fn as a coroutine and returns the future that settles with
// its return values. The coroutine begins on the next high-tier
// microtask drain. A coroutine still suspended when the loop exits is
// cancelled: its parked goroutine unwinds and its completion settles
// with the cancelled status.
func Go(s *Scheduler, fn func(co *Coro) (any, error)) *Future {
	co := &Coro{s: s, completion: s.NewFuture()}

	resume, cancel := coro.New(func(yield func(struct{}) Result, suspend func() Result) (z struct{}) {
		co.suspend = suspend
		v, err := co.invoke(fn)
		delete(s.coros, co)
		if err != nil {
			co.completion.Reject(err)
		} else {
			co.completion.Fulfill(v)
		}
		return
	})
	co.resume = resume
	co.cancel = cancel

	if s.coros == nil {
		s.coros = make(map[*Coro]struct{})
	}
	s.coros[co] = struct{}{}

	s.Schedule(KindMicrotaskHigh, func() { co.resume(Result{}) })
	return co.completion
}

// cancelCoros unwinds every coroutine still suspended when the loop
// exits, releasing the parked goroutines. Their completions settle as
// cancelled first, so the unwind cannot report a spurious rejection.
func (s *Scheduler) cancelCoros() {
	for co := range s.coros {
		delete(s.coros, co)
		co.completion.Cancel()
		co.cancel()
	}
}

func (co *Coro) invoke(fn func(co *Coro) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("runloop: coroutine panic: %v", r)
		}
	}()
	return fn(co)
}

// Await suspends the coroutine until f settles and returns its
// outcome. A cancelled future surfaces as ErrCanceled. A future that
// already settled resumes without suspending.
func (co *Coro) Await(f *Future) (any, error) {
	var res Result
	if f.State() != Pending {
		res = f.Result()
	} else {
		f.Then(func(r Result) { co.resume(r) })
		res = co.suspend()
	}
	if res.Canceled {
		return nil, ErrCanceled
	}
	return res.Value, res.Err
}

// Offload submits a blocking request to the pool and awaits its
// completion, giving coroutine code a synchronous-looking call over
// the worker-thread bridge.
func (co *Coro) Offload(request any) (any, error) {
	return co.Await(co.s.Offload(request))
}

// Sleep suspends the coroutine for at least d.
func (co *Coro) Sleep(d time.Duration) {
	co.s.ScheduleTimer(func() { co.resume(Result{}) }, d, false)
	co.suspend()
}

// Yield suspends the coroutine until the next check phase, letting the
// rest of the current iteration run.
func (co *Coro) Yield() {
	co.s.Schedule(KindImmediate, func() { co.resume(Result{}) })
	co.suspend()
}
