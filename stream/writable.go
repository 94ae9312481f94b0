package stream

import (
	"fmt"

	"github.com/gammazero/deque"
	"github.com/webriots/runloop"
)

// WriteFunc is the underlying sink hook. It receives one chunk at a
// time and must invoke done exactly once, synchronously or later, with
// the outcome. The node never has more than one write in flight.
type WriteFunc func(chunk any, done func(error))

// FinalFunc runs after the last buffered chunk flushed, before the
// node reports Finished. It must invoke done exactly once.
type FinalFunc func(done func(error))

// Writable is the sink side of a stream: an ordered chunk buffer
// bounded by a high-water mark, flushed one chunk at a time to a
// WriteFunc. Write returning false is the backpressure signal;
// exactly one drain notification follows once the buffer empties.
type Writable struct {
	s       *runloop.Scheduler
	hwm     int
	hardCap int

	state      WState
	buf        deque.Deque[any]
	writeFn    WriteFunc
	finalFn    FinalFunc
	inflight   bool
	flushing   bool
	needDrain  bool
	endCalled  bool
	finalizing bool
	finalized  bool
	err        error

	drainFns  []func()
	finishFns []func()
	errFns    []func(error)
	closeFns  []func()

	// stall holds flushing while a downstream coupling has no room;
	// onDestroy routes teardown to an owning composite node.
	stall     func() bool
	onDestroy func(error)
}

// NewWritable constructs a sink node around the given write hook.
func NewWritable(s *runloop.Scheduler, writeFn WriteFunc, opts ...NodeOption) *Writable {
	if writeFn == nil {
		panic("stream: NewWritable called with nil write hook")
	}
	cfg := resolveNodeOptions(opts)
	return &Writable{
		s:       s,
		hwm:     cfg.hwm,
		hardCap: cfg.hardCap,
		writeFn: writeFn,
		finalFn: cfg.final,
	}
}

// State reports the writable lifecycle state.
func (w *Writable) State() WState { return w.state }

// Err returns the error the node was destroyed with, if any.
func (w *Writable) Err() error { return w.err }

// Len reports the number of buffered chunks.
func (w *Writable) Len() int { return w.buf.Len() }

// Write accepts a chunk into the buffer. It returns false exactly when
// the buffer length has reached the high-water mark after accepting:
// the producer must stop until the drain notification. A producer that
// keeps writing is not honored past the hard cap; the node errors
// instead of growing unbounded. Writing after End errors the node.
func (w *Writable) Write(chunk any) bool {
	if w.finalized {
		return false
	}
	if w.endCalled || w.state == WFinishing || w.state == WFinished {
		w.Destroy(ErrWriteAfterEnd)
		return false
	}
	w.buf.PushBack(chunk)
	if w.buf.Len() > w.hardCap {
		w.Destroy(ErrBufferOverflow)
		return false
	}
	if w.state == WWritable {
		w.scheduleFlush()
	}
	if w.buf.Len() >= w.hwm {
		w.needDrain = true
		return false
	}
	return true
}

// Cork holds flushing so subsequent writes batch in the buffer until
// Uncork.
func (w *Writable) Cork() {
	if w.state == WWritable {
		w.state = WCorked
	}
}

// Uncork resumes flushing of writes batched while corked.
func (w *Writable) Uncork() {
	if w.state == WCorked {
		w.state = WWritable
		w.scheduleFlush()
	}
}

// End declares that no further writes follow. The node moves to
// WFinishing, flushes the remaining buffer, runs the finalizer if one
// is installed, and reports WFinished.
func (w *Writable) End() {
	if w.finalized || w.endCalled {
		return
	}
	w.endCalled = true
	w.state = WFinishing
	w.scheduleFlush()
}

// OnDrain registers a callback for the backpressure-cleared signal.
// The signal fires once a backlog that produced a false Write has
// fully flushed to the sink, not when it merely falls back below the
// high-water mark.
func (w *Writable) OnDrain(fn func()) { w.drainFns = append(w.drainFns, fn) }

// OnFinish registers a callback for the WFinished transition.
func (w *Writable) OnFinish(fn func()) { w.finishFns = append(w.finishFns, fn) }

// OnError registers a callback for destroy-with-error.
func (w *Writable) OnError(fn func(error)) { w.errFns = append(w.errFns, fn) }

// OnClose registers a callback that runs in the close phase after the
// node is destroyed.
func (w *Writable) OnClose(fn func()) { w.closeFns = append(w.closeFns, fn) }

// Destroy tears the node down, releasing its buffer exactly once.
// Destroying a finished or already-destroyed node is a no-op.
func (w *Writable) Destroy(err error) {
	if w.finalized {
		return
	}
	w.finalized = true
	w.buf = deque.Deque[any]{}
	if err != nil {
		w.err = err
		w.state = WErrored
		w.s.Logger().Debug().
			Str("component", "stream").
			Str("node", "writable").
			Err(err).
			Log("destroyed with error")
		w.s.Schedule(runloop.KindMicrotaskHigh, func() {
			for _, fn := range w.errFns {
				fn(err)
			}
		})
	} else {
		w.state = WDestroyed
	}
	w.s.Schedule(runloop.KindClose, func() {
		for _, fn := range w.closeFns {
			fn()
		}
	})
	if w.onDestroy != nil {
		w.onDestroy(err)
	}
}

func (w *Writable) scheduleFlush() {
	if w.flushing {
		return
	}
	w.flushing = true
	w.s.Schedule(runloop.KindMicrotaskHigh, w.flush)
}

// flush pushes at most one chunk into the write hook, continuing from
// its completion. Chunks leave in write order; the hook sees them one
// at a time.
func (w *Writable) flush() {
	w.flushing = false
	if w.finalized || w.inflight || w.state == WCorked {
		return
	}

	if w.buf.Len() > 0 {
		if w.stall != nil && w.stall() {
			return
		}
		chunk := w.buf.PopFront()
		w.inflight = true
		w.invokeWrite(chunk, w.once(func(err error) {
			w.inflight = false
			if w.finalized {
				return
			}
			if err != nil {
				w.Destroy(err)
				return
			}
			if w.needDrain && w.buf.Len() == 0 {
				w.needDrain = false
				w.emitDrain()
			}
			w.scheduleFlush()
		}))
		return
	}

	if w.endCalled && !w.finalizing {
		w.finalize()
	}
}

func (w *Writable) finalize() {
	w.finalizing = true
	if w.finalFn == nil {
		w.finish()
		return
	}
	w.inflight = true
	w.invokeFinal(w.once(func(err error) {
		w.inflight = false
		if w.finalized {
			return
		}
		if err != nil {
			w.Destroy(err)
			return
		}
		w.finish()
	}))
}

// finish marks graceful completion. A finished node cannot be
// destroyed afterwards; its buffer is already empty.
func (w *Writable) finish() {
	w.state = WFinished
	w.finalized = true
	for _, fn := range w.finishFns {
		fn()
	}
}

func (w *Writable) emitDrain() {
	fns := w.drainFns
	w.s.Schedule(runloop.KindMicrotaskHigh, func() {
		if w.finalized {
			return
		}
		for _, fn := range fns {
			fn()
		}
	})
}

// once guards a completion callback against double invocation by a
// misbehaving hook.
func (w *Writable) once(fn func(error)) func(error) {
	called := false
	return func(err error) {
		if called {
			panic("stream: write completion invoked twice")
		}
		called = true
		fn(err)
	}
}

func (w *Writable) invokeWrite(chunk any, done func(error)) {
	defer func() {
		if v := recover(); v != nil {
			w.inflight = false
			w.Destroy(fmt.Errorf("stream: sink panic: %v", v))
		}
	}()
	w.writeFn(chunk, done)
}

func (w *Writable) invokeFinal(done func(error)) {
	defer func() {
		if v := recover(); v != nil {
			w.inflight = false
			w.Destroy(fmt.Errorf("stream: finalizer panic: %v", v))
		}
	}()
	w.finalFn(done)
}
