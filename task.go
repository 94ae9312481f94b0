package runloop

import "github.com/gammazero/deque"

// Kind classifies a schedulable unit of work. The kind decides which
// queue holds the task and therefore which point in the phase cycle
// executes it.
type Kind uint8

const (
	// KindTimer tasks are produced by the timer heap when a deadline
	// elapses. They cannot be scheduled directly; use ScheduleTimer.
	KindTimer Kind = iota
	// KindImmediate tasks run during the check phase of the current or
	// next iteration.
	KindImmediate
	// KindMicrotaskHigh tasks drain to exhaustion between phases,
	// before the low tier. Intended for same-operation continuations.
	KindMicrotaskHigh
	// KindMicrotaskLow tasks drain after the high tier empties.
	// Intended for batched reactions.
	KindMicrotaskLow
	// KindIOCallback tasks are produced by the offload pool bridge.
	// They cannot be scheduled directly; use Offload.
	KindIOCallback
	// KindClose tasks run during the close phase, after everything
	// else in the iteration.
	KindClose
)

func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindImmediate:
		return "immediate"
	case KindMicrotaskHigh:
		return "microtask-high"
	case KindMicrotaskLow:
		return "microtask-low"
	case KindIOCallback:
		return "io-callback"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

type task struct {
	id       uint64
	kind     Kind
	fn       func()
	canceled bool
	executed bool
}

// TaskHandle identifies a scheduled task so it can be cancelled before
// it runs. Handles are owned by the scheduler's logical thread.
type TaskHandle struct {
	t *task
}

// Cancel prevents the task from executing. It returns true if the task
// had not yet run and was not already cancelled. Cancelling a task
// whose execution has started or finished is a no-op. The cancellation
// flag is checked again immediately before execution, so a task that
// was dequeued before Cancel was observed still never runs.
func (h *TaskHandle) Cancel() bool {
	if h == nil || h.t == nil || h.t.executed || h.t.canceled {
		return false
	}
	h.t.canceled = true
	return true
}

type taskQueue struct {
	q deque.Deque[*task]
}

func (tq *taskQueue) push(t *task) {
	tq.q.PushBack(t)
}

func (tq *taskQueue) pop() *task {
	return tq.q.PopFront()
}

func (tq *taskQueue) len() int {
	return tq.q.Len()
}
