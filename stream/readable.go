package stream

import (
	"fmt"

	"github.com/gammazero/deque"
	"github.com/webriots/runloop"
)

// ReadFunc is the underlying source hook. The node calls it whenever
// it wants more data: the hook pushes zero or more chunks via Push,
// immediately or later, and signals exhaustion with PushEnd. It is not
// called again until a push acknowledges the previous demand.
type ReadFunc func(r *Readable)

// Readable is the source side of a stream: an ordered chunk buffer
// bounded by a high-water mark, filled on demand by a ReadFunc and
// drained to data consumers while flowing.
type Readable struct {
	s       *runloop.Scheduler
	hwm     int
	hardCap int

	state      RState
	buf        deque.Deque[any]
	readFn     ReadFunc
	reading    bool
	pumping    bool
	ended      bool
	endEmitted bool
	finalized  bool
	err        error

	dataFns  []func(any)
	endFns   []func()
	errFns   []func(error)
	closeFns []func()

	// onSpace fires when the buffer falls back below the high-water
	// mark. onDestroy routes teardown to an owning composite node.
	onSpace   func()
	onDestroy func(error)
}

// NewReadable constructs a source node. readFn may be nil for
// push-driven sources that call Push from their own callbacks.
func NewReadable(s *runloop.Scheduler, readFn ReadFunc, opts ...NodeOption) *Readable {
	cfg := resolveNodeOptions(opts)
	return &Readable{
		s:       s,
		hwm:     cfg.hwm,
		hardCap: cfg.hardCap,
		readFn:  readFn,
	}
}

// FromSlice constructs a source that emits the given chunks in order
// and then ends.
func FromSlice(s *runloop.Scheduler, chunks []any, opts ...NodeOption) *Readable {
	i := 0
	return NewReadable(s, func(r *Readable) {
		for i < len(chunks) {
			chunk := chunks[i]
			i++
			if !r.Push(chunk) && i < len(chunks) {
				return
			}
		}
		r.PushEnd()
	}, opts...)
}

// State reports the readable lifecycle state.
func (r *Readable) State() RState { return r.state }

// Err returns the error the node was destroyed with, if any.
func (r *Readable) Err() error { return r.err }

// Len reports the number of buffered chunks.
func (r *Readable) Len() int { return r.buf.Len() }

// Push appends a chunk to the internal buffer, delivering it to
// consumers on the next pump if the node is flowing. It returns false
// when the buffer has reached the high-water mark and the source
// should stop producing until demanded again. Pushing after PushEnd
// errors the node.
func (r *Readable) Push(chunk any) bool {
	if r.finalized {
		return false
	}
	if r.ended {
		r.Destroy(ErrPushAfterEnd)
		return false
	}
	r.reading = false
	r.buf.PushBack(chunk)
	if r.buf.Len() > r.hardCap {
		r.Destroy(ErrBufferOverflow)
		return false
	}
	if r.state == RFlowing {
		r.schedulePump()
	}
	return r.buf.Len() < r.hwm
}

// PushEnd signals source exhaustion. The node reports REnded once the
// buffer fully drains to consumers.
func (r *Readable) PushEnd() {
	if r.finalized || r.ended {
		return
	}
	r.ended = true
	r.reading = false
	r.schedulePump()
}

// Read pulls one buffered chunk. The second result is false when
// nothing is buffered. Pulling the last chunk of an exhausted source
// transitions the node to REnded.
func (r *Readable) Read() (any, bool) {
	if r.finalized || r.buf.Len() == 0 {
		r.maybeEnd()
		r.maybeRead()
		return nil, false
	}
	wasFull := r.buf.Len() >= r.hwm
	chunk := r.buf.PopFront()
	if wasFull && r.buf.Len() < r.hwm && r.onSpace != nil {
		r.onSpace()
	}
	r.maybeEnd()
	r.maybeRead()
	return chunk, true
}

// Pause stops delivery to data consumers until Resume.
func (r *Readable) Pause() {
	if r.state == RFlowing {
		r.state = RPaused
	}
}

// Resume switches the node to flowing, delivering buffered and future
// chunks to data consumers.
func (r *Readable) Resume() {
	if r.finalized || r.endEmitted {
		return
	}
	if r.state == RIdle || r.state == RPaused {
		r.state = RFlowing
		r.schedulePump()
		r.maybeRead()
	}
}

// OnData registers a consumer for delivered chunks. The first data
// consumer starts the flow.
func (r *Readable) OnData(fn func(any)) {
	r.dataFns = append(r.dataFns, fn)
	if r.state == RIdle {
		r.Resume()
	}
}

// OnEnd registers a callback for the REnded transition.
func (r *Readable) OnEnd(fn func()) { r.endFns = append(r.endFns, fn) }

// OnError registers a callback for destroy-with-error.
func (r *Readable) OnError(fn func(error)) { r.errFns = append(r.errFns, fn) }

// OnClose registers a callback that runs in the close phase after the
// node is destroyed.
func (r *Readable) OnClose(fn func()) { r.closeFns = append(r.closeFns, fn) }

// Destroy tears the node down, releasing its buffer exactly once. A
// non-nil err moves the node to RErrored and notifies error consumers;
// close callbacks run in the scheduler's close phase either way.
// Destroying an already-finalized node is a no-op.
func (r *Readable) Destroy(err error) {
	if r.finalized {
		return
	}
	r.finalized = true
	r.buf = deque.Deque[any]{}
	if err != nil {
		r.err = err
		r.state = RErrored
		r.s.Logger().Debug().
			Str("component", "stream").
			Str("node", "readable").
			Err(err).
			Log("destroyed with error")
		r.s.Schedule(runloop.KindMicrotaskHigh, func() {
			for _, fn := range r.errFns {
				fn(err)
			}
		})
	} else {
		r.state = RDestroyed
	}
	r.s.Schedule(runloop.KindClose, func() {
		for _, fn := range r.closeFns {
			fn()
		}
	})
	if r.onDestroy != nil {
		r.onDestroy(err)
	}
}

func (r *Readable) schedulePump() {
	if r.pumping {
		return
	}
	r.pumping = true
	r.s.Schedule(runloop.KindMicrotaskHigh, r.pump)
}

// pump delivers buffered chunks to data consumers while flowing,
// notifying the space hook as the buffer falls below the high-water
// mark, then either signals end or demands more data.
func (r *Readable) pump() {
	r.pumping = false
	if r.finalized {
		return
	}
	for r.state == RFlowing && r.buf.Len() > 0 {
		wasFull := r.buf.Len() >= r.hwm
		chunk := r.buf.PopFront()
		for _, fn := range r.dataFns {
			fn(chunk)
		}
		if r.finalized {
			return
		}
		if wasFull && r.buf.Len() < r.hwm && r.onSpace != nil {
			r.onSpace()
		}
	}
	r.maybeEnd()
	if r.state == RFlowing {
		r.maybeRead()
	}
}

func (r *Readable) maybeEnd() {
	if r.finalized || r.endEmitted || !r.ended || r.buf.Len() > 0 {
		return
	}
	r.endEmitted = true
	r.state = REnded
	for _, fn := range r.endFns {
		fn()
	}
}

// maybeRead demands more data from the source when the buffer has
// room, exactly one demand in flight at a time.
func (r *Readable) maybeRead() {
	if r.readFn == nil || r.reading || r.ended || r.finalized {
		return
	}
	if r.buf.Len() >= r.hwm {
		return
	}
	r.reading = true
	r.s.Schedule(runloop.KindMicrotaskHigh, func() {
		if r.finalized || r.ended {
			return
		}
		r.invokeRead()
	})
}

// invokeRead guards the source hook: a panic becomes a stream error
// handled by teardown, never an escalation to the fatal sink.
func (r *Readable) invokeRead() {
	defer func() {
		if v := recover(); v != nil {
			r.Destroy(fmt.Errorf("stream: source panic: %v", v))
		}
	}()
	r.readFn(r)
}
