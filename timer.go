package runloop

import (
	"container/heap"
	"time"
)

type timerEntry struct {
	fn       func()
	deadline time.Time
	delay    time.Duration
	interval time.Duration
	repeat   bool
	seq      uint64
	index    int // position in the heap, -1 when not queued
	ref      bool
	canceled bool
	s        *Scheduler
}

// timerHeap is a binary min-heap ordered by deadline, with insertion
// order as the tie-break so timers with equal deadlines fire FIFO.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerHandle identifies a scheduled timer. All methods must be called
// from the scheduler's logical thread.
type TimerHandle struct {
	e *timerEntry
}

// Cancel removes the timer so it never fires. It returns true if the
// timer was still pending, false if it already fired (and was not
// repeating) or was already cancelled. A cancelled timer's closure is
// guaranteed never to execute.
func (h *TimerHandle) Cancel() bool {
	e := h.e
	if e.canceled {
		return false
	}
	e.canceled = true
	if e.index < 0 {
		return false
	}
	if e.ref {
		e.s.refTimers--
	}
	heap.Remove(&e.s.timers, e.index)
	return true
}

// Refresh resets the deadline to now plus the original delay without
// allocating a new handle. A timer that already fired (and did not
// repeat) is re-armed. Refreshing a cancelled timer is a no-op.
func (h *TimerHandle) Refresh() {
	e := h.e
	if e.canceled {
		return
	}
	e.deadline = e.s.clock().Add(e.delay)
	e.seq = e.s.nextTimerSeq()
	if e.index >= 0 {
		heap.Fix(&e.s.timers, e.index)
		return
	}
	heap.Push(&e.s.timers, e)
	if e.ref {
		e.s.refTimers++
	}
}

// Ref marks the timer as able to keep the scheduler loop alive on its
// own. Timers start referenced.
func (h *TimerHandle) Ref() {
	e := h.e
	if e.ref {
		return
	}
	e.ref = true
	if e.index >= 0 {
		e.s.refTimers++
	}
}

// Unref marks the timer as unable to keep the scheduler loop alive. If
// no other work remains, the loop exits without firing it.
func (h *TimerHandle) Unref() {
	e := h.e
	if !e.ref {
		return
	}
	e.ref = false
	if e.index >= 0 {
		e.s.refTimers--
	}
}

// ScheduleTimer arranges for fn to run after delay, and every interval
// equal to delay thereafter when repeat is set. A delay of zero or less
// fires on the next timer-phase pass, never synchronously. Repeating
// timers reschedule from the current time after firing: a loop stalled
// for several intervals produces one fire, not a backlog.
func (s *Scheduler) ScheduleTimer(fn func(), delay time.Duration, repeat bool) *TimerHandle {
	if fn == nil {
		panic("runloop: ScheduleTimer called with nil closure")
	}
	if delay < 0 {
		delay = 0
	}
	e := &timerEntry{
		fn:       fn,
		deadline: s.clock().Add(delay),
		delay:    delay,
		interval: delay,
		repeat:   repeat,
		seq:      s.nextTimerSeq(),
		index:    -1,
		ref:      true,
		s:        s,
	}
	heap.Push(&s.timers, e)
	s.refTimers++
	return &TimerHandle{e: e}
}

func (s *Scheduler) nextTimerSeq() uint64 {
	s.timerSeq++
	return s.timerSeq
}

// nextDeadline reports the earliest pending timer deadline, regardless
// of liveness. Unreferenced timers still fire while other work keeps
// the loop alive.
func (s *Scheduler) nextDeadline() (time.Time, bool) {
	if len(s.timers) == 0 {
		return time.Time{}, false
	}
	return s.timers[0].deadline, true
}

// runTimers executes every entry due at phase entry as a timer task.
// The due set is collected before any callback runs, so entries
// re-queued during the pass (repeats under a coarse or held clock,
// refreshed handles) wait for the next pass instead of refiring within
// this one. Repeating entries are re-queued with a deadline measured
// from after the callback ran.
func (s *Scheduler) runTimers() {
	now := s.clock()
	var due []*timerEntry
	for len(s.timers) > 0 && !s.timers[0].deadline.After(now) {
		e := heap.Pop(&s.timers).(*timerEntry)
		if e.ref {
			s.refTimers--
		}
		due = append(due, e)
	}
	for _, e := range due {
		// Cancelled or re-armed by an earlier callback in this pass.
		if e.canceled || e.index >= 0 {
			continue
		}
		s.execute("timers", e.fn)
		if e.repeat && !e.canceled && e.index < 0 {
			e.deadline = s.clock().Add(e.interval)
			e.seq = s.nextTimerSeq()
			heap.Push(&s.timers, e)
			if e.ref {
				s.refTimers++
			}
		}
		s.drainMicrotasks()
	}
}
