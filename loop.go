package runloop

import (
	"context"
	"time"
)

// Run drives the phase loop until nothing keeps it alive: no queued
// work in any phase, no referenced timer, and no outstanding offload
// job. The optional main closure is scheduled as an immediate task
// before the first iteration.
//
// Each iteration executes the phases in fixed order: timers, pending
// io-callback overflow, internal bookkeeping, poll, check, close. Both
// microtask tiers drain to exhaustion between every phase and after
// every executed task.
//
// There is no abort operation: individual tasks, timers and jobs are
// cancelled independently and the loop exits naturally. The context is
// handed to the offload executor for cooperative cancellation of
// blocking work; it does not terminate the loop.
func (s *Scheduler) Run(ctx context.Context, main func(ctx context.Context)) error {
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	defer func() { s.running = false }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx = WithScheduler(ctx, s)

	if main != nil {
		s.Schedule(KindImmediate, func() { main(ctx) })
	}

	s.bridge.start(ctx)
	defer s.bridge.stop()

	s.log.Debug().Int("workers", s.bridge.workers).Log("loop started")

	// Microtasks scheduled before Run drain ahead of the first timers
	// pass, preserving the cross-tier ordering for already-due timers.
	s.drainMicrotasks()

	for s.alive() {
		s.runTimers()
		s.drainMicrotasks()

		s.runPhase("pending", &s.pending)
		s.drainMicrotasks()

		s.bookkeeping()
		s.drainMicrotasks()

		s.poll()
		s.drainMicrotasks()

		s.runPhase("check", &s.immediates)
		s.drainMicrotasks()

		s.runPhase("close", &s.closers)
		s.drainMicrotasks()
	}

	s.cancelCoros()

	s.log.Debug().Uint64("ticks", s.tick).Log("loop finished")
	return nil
}

// alive reports whether anything can still produce work: queued tasks,
// referenced timers, or outstanding pool jobs. Unreferenced timers do
// not count; they are abandoned when nothing else remains.
func (s *Scheduler) alive() bool {
	return s.microHigh.len() > 0 ||
		s.microLow.len() > 0 ||
		s.immediates.len() > 0 ||
		s.pending.len() > 0 ||
		s.closers.len() > 0 ||
		s.refTimers > 0 ||
		s.bridge.outstanding.Load() > 0
}

// runPhase executes the tasks queued in q at phase entry. Tasks the
// phase itself enqueues run on the next pass, matching the fixed
// relative ordering the phases exist to provide.
func (s *Scheduler) runPhase(origin string, q *taskQueue) {
	for n := q.len(); n > 0; n-- {
		s.runTask(origin, q.pop())
		s.drainMicrotasks()
	}
}

func (s *Scheduler) bookkeeping() {
	s.tick++
	s.log.Trace().
		Uint64("tick", s.tick).
		Int("immediates", s.immediates.len()).
		Int("pending", s.pending.len()).
		Int("timers", len(s.timers)).
		Int("ref_timers", s.refTimers).
		Int64("outstanding", s.bridge.outstanding.Load()).
		Log("tick")
}

// poll blocks for pool completions when nothing else is runnable,
// bounded by the next timer deadline, then surfaces completions in
// worker finish order. Completions beyond the per-iteration batch
// budget carry over to the next iteration's pending phase.
func (s *Scheduler) poll() {
	s.pollWait()

	batch := s.bridge.drain()
	for i, c := range batch {
		if i < s.pendingBatch {
			c := c
			s.execute("poll", func() { s.bridge.deliver(c) })
			s.drainMicrotasks()
			continue
		}
		c := c
		s.taskSeq++
		s.pending.push(&task{
			id:   s.taskSeq,
			kind: KindIOCallback,
			fn:   func() { s.bridge.deliver(c) },
		})
	}
}

func (s *Scheduler) pollWait() {
	// Runnable work elsewhere makes the poll non-blocking.
	if s.immediates.len() > 0 || s.pending.len() > 0 || s.closers.len() > 0 {
		return
	}

	// Nothing left that can keep the loop alive: waiting out a
	// deadline would only delay exit. Unreferenced timers never block
	// termination.
	if s.refTimers == 0 && s.bridge.outstanding.Load() == 0 {
		return
	}

	deadline, hasTimer := s.nextDeadline()
	if hasTimer {
		timeout := deadline.Sub(s.clock())
		if timeout <= 0 {
			return
		}
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-s.bridge.wake:
		case <-t.C:
		}
		return
	}

	if s.bridge.outstanding.Load() > 0 {
		// Completions are the only thing that can happen next.
		<-s.bridge.wake
	}
}
