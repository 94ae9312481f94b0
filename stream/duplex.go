package stream

import "github.com/webriots/runloop"

// Duplex is a node with independent readable and writable sides, for
// endpoints like sockets where what is read is unrelated to what is
// written. Unlike Transform, nothing couples the two sides except
// teardown, which is shared.
type Duplex struct {
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

// NewDuplex constructs a duplex node from a source hook and a sink
// hook. Either may be nil for a half that is driven externally.
func NewDuplex(s *runloop.Scheduler, readFn ReadFunc, writeFn WriteFunc, opts ...NodeOption) *Duplex {
	if writeFn == nil {
		panic("stream: NewDuplex called with nil write hook")
	}
	d := &Duplex{s: s}
	d.r = NewReadable(s, readFn, opts...)
	d.w = NewWritable(s, writeFn, opts...)
	d.r.onDestroy = d.sideDestroyed
	d.w.onDestroy = d.sideDestroyed
	return d
}

// ReadState reports the readable-side state.
func (d *Duplex) ReadState() RState { return d.r.State() }

// WriteState reports the writable-side state.
func (d *Duplex) WriteState() WState { return d.w.State() }

// Err returns the error the node was destroyed with, if any.
func (d *Duplex) Err() error { return d.err }

// Push feeds the readable side; see Readable.Push.
func (d *Duplex) Push(chunk any) bool { return d.r.Push(chunk) }

// PushEnd signals readable-side exhaustion; see Readable.PushEnd.
func (d *Duplex) PushEnd() { d.r.PushEnd() }

// Write accepts a chunk on the writable side; see Writable.Write.
func (d *Duplex) Write(chunk any) bool { return d.w.Write(chunk) }

// End declares the writable side done; see Writable.End.
func (d *Duplex) End() { d.w.End() }

// Cork holds writable-side flushing; see Writable.Cork.
func (d *Duplex) Cork() { d.w.Cork() }

// Uncork resumes writable-side flushing; see Writable.Uncork.
func (d *Duplex) Uncork() { d.w.Uncork() }

// OnDrain registers for the writable-side backpressure-cleared signal.
func (d *Duplex) OnDrain(fn func()) { d.w.OnDrain(fn) }

// OnFinish registers for the writable side reaching WFinished.
func (d *Duplex) OnFinish(fn func()) { d.w.OnFinish(fn) }

// OnData registers a consumer for readable-side chunks.
func (d *Duplex) OnData(fn func(any)) { d.r.OnData(fn) }

// OnEnd registers for readable-side exhaustion.
func (d *Duplex) OnEnd(fn func()) { d.r.OnEnd(fn) }

// Pause suspends readable-side delivery.
func (d *Duplex) Pause() { d.r.Pause() }

// Resume restarts readable-side delivery.
func (d *Duplex) Resume() { d.r.Resume() }

// Read pulls one readable-side chunk; see Readable.Read.
func (d *Duplex) Read() (any, bool) { return d.r.Read() }

// OnError registers a callback for destroy-with-error. An error on
// either side surfaces here exactly once.
func (d *Duplex) OnError(fn func(error)) { d.errFns = append(d.errFns, fn) }

// OnClose registers a callback that runs in the close phase after the
// node is destroyed.
func (d *Duplex) OnClose(fn func()) { d.closeFns = append(d.closeFns, fn) }

// Destroy tears down both sides exactly once.
func (d *Duplex) Destroy(err error) {
	if d.finalized {
		return
	}
	d.finalized = true
	d.err = err
	d.destroying = true
	d.w.Destroy(err)
	d.r.Destroy(err)
	d.destroying = false
	if err != nil && !d.errEmitted {
		d.errEmitted = true
		d.s.Schedule(runloop.KindMicrotaskHigh, func() {
			for _, fn := range d.errFns {
				fn(err)
			}
		})
	}
	d.s.Schedule(runloop.KindClose, func() {
		for _, fn := range d.closeFns {
			fn()
		}
	})
}

func (d *Duplex) sideDestroyed(err error) {
	if d.destroying {
		return
	}
	d.Destroy(err)
}
