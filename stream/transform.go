package stream

import (
	"github.com/webriots/runloop"
)

// TransformFunc processes one input chunk, pushing zero or more output
// chunks, and must invoke done exactly once. Chunks are processed one
// at a time in arrival order; outputs are never reordered relative to
// inputs.
type TransformFunc func(chunk any, push func(any), done func(error))

// FlushFunc runs after the writable side ends, before the readable
// side signals exhaustion. It may push trailing chunks and must invoke
// done exactly once.
type FlushFunc func(push func(any), done func(error))

// Transform is a node with both sides: input arrives on the writable
// side, the transform hook produces output on the readable side, and
// backpressure couples the two: input stops flushing while the output
// buffer is at its high-water mark.
type Transform struct {
	s *runloop.Scheduler
	r *Readable
	w *Writable

	finalized  bool
	errEmitted bool
	destroying bool
	err        error

	errFns   []func(error)
	closeFns []func()
}

// NewTransform constructs a transform node around the given hook.
func NewTransform(s *runloop.Scheduler, fn TransformFunc, opts ...NodeOption) *Transform {
	if fn == nil {
		panic("stream: NewTransform called with nil transform hook")
	}
	cfg := resolveNodeOptions(opts)
	t := &Transform{s: s}

	t.r = NewReadable(s, nil, opts...)
	push := func(out any) { t.r.Push(out) }

	t.w = NewWritable(s, func(chunk any, done func(error)) {
		fn(chunk, push, done)
	}, opts...)
	t.w.finalFn = func(done func(error)) {
		if cfg.flush == nil {
			t.r.PushEnd()
			done(nil)
			return
		}
		cfg.flush(push, func(err error) {
			if err != nil {
				done(err)
				return
			}
			t.r.PushEnd()
			done(nil)
		})
	}

	// Couple the sides: input flushing stalls while the output buffer
	// is full, and resumes as the consumer makes room.
	t.w.stall = func() bool { return t.r.Len() >= t.r.hwm }
	t.r.onSpace = t.w.scheduleFlush

	t.r.onDestroy = t.sideDestroyed
	t.w.onDestroy = t.sideDestroyed
	return t
}

// PassThrough constructs an identity transform: every input chunk is
// pushed through unchanged.
func PassThrough(s *runloop.Scheduler, opts ...NodeOption) *Transform {
	return NewTransform(s, func(chunk any, push func(any), done func(error)) {
		push(chunk)
		done(nil)
	}, opts...)
}

// ReadState reports the readable-side state.
func (t *Transform) ReadState() RState { return t.r.State() }

// WriteState reports the writable-side state.
func (t *Transform) WriteState() WState { return t.w.State() }

// Err returns the error the node was destroyed with, if any.
func (t *Transform) Err() error { return t.err }

// Write accepts an input chunk; see Writable.Write.
func (t *Transform) Write(chunk any) bool { return t.w.Write(chunk) }

// End declares the input exhausted; the flush hook runs, the output
// side ends once drained.
func (t *Transform) End() { t.w.End() }

// Cork holds input flushing; see Writable.Cork.
func (t *Transform) Cork() { t.w.Cork() }

// Uncork resumes input flushing; see Writable.Uncork.
func (t *Transform) Uncork() { t.w.Uncork() }

// OnDrain registers for the input-side backpressure-cleared signal.
func (t *Transform) OnDrain(fn func()) { t.w.OnDrain(fn) }

// OnFinish registers for the input side reaching WFinished.
func (t *Transform) OnFinish(fn func()) { t.w.OnFinish(fn) }

// OnData registers a consumer for output chunks.
func (t *Transform) OnData(fn func(any)) { t.r.OnData(fn) }

// OnEnd registers for output exhaustion.
func (t *Transform) OnEnd(fn func()) { t.r.OnEnd(fn) }

// Pause suspends output delivery.
func (t *Transform) Pause() { t.r.Pause() }

// Resume restarts output delivery.
func (t *Transform) Resume() { t.r.Resume() }

// Read pulls one output chunk; see Readable.Read.
func (t *Transform) Read() (any, bool) { return t.r.Read() }

// OnError registers a callback for destroy-with-error. An error on
// either side surfaces here exactly once.
func (t *Transform) OnError(fn func(error)) { t.errFns = append(t.errFns, fn) }

// OnClose registers a callback that runs in the close phase after the
// node is destroyed.
func (t *Transform) OnClose(fn func()) { t.closeFns = append(t.closeFns, fn) }

// Destroy tears down both sides exactly once.
func (t *Transform) Destroy(err error) {
	if t.finalized {
		return
	}
	t.finalized = true
	t.err = err
	t.destroying = true
	t.w.Destroy(err)
	t.r.Destroy(err)
	t.destroying = false
	if err != nil && !t.errEmitted {
		t.errEmitted = true
		t.s.Schedule(runloop.KindMicrotaskHigh, func() {
			for _, fn := range t.errFns {
				fn(err)
			}
		})
	}
	t.s.Schedule(runloop.KindClose, func() {
		for _, fn := range t.closeFns {
			fn()
		}
	})
}

// sideDestroyed propagates teardown initiated inside one side (write
// error, buffer overflow) to the whole node.
func (t *Transform) sideDestroyed(err error) {
	if t.destroying {
		return
	}
	t.Destroy(err)
}
