package runloop

import (
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/logiface"
)

// Clock supplies the monotonic now used for timer deadlines. It is
// injectable so tests can run many independent schedulers against
// controlled time sources.
type Clock func() time.Time

const defaultPendingBatch = 1024

// Scheduler owns the task queues, the timer heap and the offload pool
// bridge, and drives them from a single logical thread. It is not
// ambient process state: construct as many independent schedulers as
// needed and pass them explicitly into stream and timer constructors.
//
// All scheduling entry points must be called from the goroutine
// driving Run (or before Run starts). The only cross-thread paths are
// the pool completion inbox's producer side and Future.Wait.
type Scheduler struct {
	noCopy noCopy

	id     string
	log    *logiface.Logger[logiface.Event]
	clock  Clock
	fatal  FatalHandler
	bridge *poolBridge

	microHigh  taskQueue
	microLow   taskQueue
	immediates taskQueue
	pending    taskQueue
	closers    taskQueue

	timers    timerHeap
	timerSeq  uint64
	taskSeq   uint64
	refTimers int
	coros     map[*Coro]struct{}

	pendingBatch int
	tick         uint64
	running      bool
}

type config struct {
	log          *logiface.Logger[logiface.Event]
	clock        Clock
	fatal        FatalHandler
	exec         Executor
	workers      int
	pendingBatch int
}

// Option configures a Scheduler at construction.
type Option func(*config)

// WithLogger attaches a structured logger. A nil logger is valid and
// disables logging.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(c *config) { c.log = log }
}

// WithClock replaces the monotonic clock source used for timer
// deadlines. The default is time.Now.
func WithClock(clock Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithFatalHandler installs the process-wide fatal-error sink. The
// default sink logs the error and panics, terminating the process.
func WithFatalHandler(fn FatalHandler) Option {
	return func(c *config) { c.fatal = fn }
}

// WithExecutor replaces the blocking-operation executor backing
// Offload. The default executes function-shaped requests directly.
func WithExecutor(exec Executor) Option {
	return func(c *config) { c.exec = exec }
}

// WithPoolWorkers sets the fixed offload worker count. The default is
// the available CPU parallelism.
func WithPoolWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithPendingBatch caps how many pool completions one poll phase
// executes inline; the excess carries over to the next iteration's
// pending phase.
func WithPendingBatch(n int) Option {
	return func(c *config) { c.pendingBatch = n }
}

// New constructs an idle scheduler. Nothing runs until Run is called.
func New(opts ...Option) *Scheduler {
	cfg := &config{clock: time.Now, pendingBatch: defaultPendingBatch}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	s := &Scheduler{
		id:           uuid.NewString(),
		clock:        cfg.clock,
		fatal:        cfg.fatal,
		pendingBatch: cfg.pendingBatch,
	}
	if cfg.log != nil {
		if c := cfg.log.Clone(); c != nil {
			s.log = c.Str("scheduler", s.id).Logger()
		}
	}
	s.bridge = newPoolBridge(s, cfg.exec, cfg.workers)
	return s
}

// ID returns the scheduler's unique instance identifier, as attached
// to its log context.
func (s *Scheduler) ID() string { return s.id }

// Now returns the current time from the scheduler's clock source.
func (s *Scheduler) Now() time.Time { return s.clock() }

// Logger exposes the scheduler's logger for components built on top of
// it. It may be nil-valued and is always safe to build events on.
func (s *Scheduler) Logger() *logiface.Logger[logiface.Event] { return s.log }

// Schedule enqueues a closure of the given kind and returns a handle
// that can cancel it before execution. Valid kinds are KindImmediate,
// KindMicrotaskHigh, KindMicrotaskLow and KindClose; timer and
// io-callback tasks are created by ScheduleTimer and Offload.
func (s *Scheduler) Schedule(kind Kind, fn func()) *TaskHandle {
	if fn == nil {
		panic("runloop: Schedule called with nil closure")
	}
	s.taskSeq++
	t := &task{id: s.taskSeq, kind: kind, fn: fn}
	switch kind {
	case KindImmediate:
		s.immediates.push(t)
	case KindMicrotaskHigh:
		s.microHigh.push(t)
	case KindMicrotaskLow:
		s.microLow.push(t)
	case KindClose:
		s.closers.push(t)
	default:
		panic("runloop: cannot schedule task of kind " + kind.String())
	}
	return &TaskHandle{t: t}
}

// runTask executes one dequeued task, honoring its cancellation flag
// at the last possible moment.
func (s *Scheduler) runTask(origin string, t *task) {
	if t.canceled {
		return
	}
	t.executed = true
	s.execute(origin, t.fn)
}

// execute runs a closure with the fatal-sink guard. An uncaught panic
// is not retried; it is handed to the sink, and the default sink
// re-panics to terminate the process.
func (s *Scheduler) execute(origin string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			s.fatalError(origin, v)
		}
	}()
	fn()
}

func (s *Scheduler) fatalError(origin string, v any) {
	ferr := &FatalError{Origin: origin, Value: v}
	s.log.Err().
		Str("origin", origin).
		Interface("value", v).
		Log("fatal error")
	if s.fatal != nil {
		s.fatal(ferr)
		return
	}
	panic(ferr)
}

// drainMicrotasks empties the high tier, then the low tier, repeating
// until both are empty so transitively scheduled microtasks run before
// control returns to any phase. High-tier tasks scheduled by low-tier
// tasks still preempt the remaining low tier.
func (s *Scheduler) drainMicrotasks() {
	for {
		if s.microHigh.len() > 0 {
			s.runTask("microtask-high", s.microHigh.pop())
			continue
		}
		if s.microLow.len() > 0 {
			s.runTask("microtask-low", s.microLow.pop())
			continue
		}
		return
	}
}
