package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webriots/runloop"
)

// syncSink collects chunks and acknowledges each write immediately.
func syncSink(into *[]any) WriteFunc {
	return func(chunk any, done func(error)) {
		*into = append(*into, chunk)
		done(nil)
	}
}

func TestWritableBackpressureRoundTrip(t *testing.T) {
	r := require.New(t)

	var (
		sunk    []any
		accepts []bool
		drains  int
	)
	s := runloop.New()
	w := NewWritable(s, syncSink(&sunk), WithHighWaterMark(2))
	err := s.Run(context.Background(), func(context.Context) {
		w.OnDrain(func() {
			drains++
			accepts = append(accepts, w.Write("c"))
			w.End()
		})
		accepts = append(accepts, w.Write("a"))
		accepts = append(accepts, w.Write("b"))
	})

	r.NoError(err)
	r.Equal([]bool{true, false, true}, accepts)
	r.Equal(1, drains)
	r.Equal([]any{"a", "b", "c"}, sunk)
	r.Equal(WFinished, w.State())
}

func TestWritableDrainOncePerBackpressure(t *testing.T) {
	r := require.New(t)

	var sunk []any
	drains := 0
	s := runloop.New()
	w := NewWritable(s, syncSink(&sunk), WithHighWaterMark(1))
	err := s.Run(context.Background(), func(context.Context) {
		w.OnDrain(func() { drains++ })
		w.Write(1)
		w.Write(2)
		w.Write(3)
	})

	r.NoError(err)
	r.Equal([]any{1, 2, 3}, sunk)
	r.Equal(1, drains)
}

func TestWritableChunksFlushOneAtATime(t *testing.T) {
	r := require.New(t)

	var sunk []any
	inflight := 0
	s := runloop.New()
	w := NewWritable(s, func(chunk any, done func(error)) {
		inflight++
		r.Equal(1, inflight)
		s.ScheduleTimer(func() {
			inflight--
			sunk = append(sunk, chunk)
			done(nil)
		}, time.Millisecond, false)
	})
	finished := false
	err := s.Run(context.Background(), func(context.Context) {
		w.OnFinish(func() { finished = true })
		w.Write("x")
		w.Write("y")
		w.Write("z")
		w.End()
	})

	r.NoError(err)
	r.Equal([]any{"x", "y", "z"}, sunk)
	r.True(finished)
	r.Equal(WFinished, w.State())
}

func TestWritableFinalizerRunsBeforeFinish(t *testing.T) {
	r := require.New(t)

	var order []string
	s := runloop.New()
	w := NewWritable(s, func(chunk any, done func(error)) {
		order = append(order, chunk.(string))
		done(nil)
	}, WithFinal(func(done func(error)) {
		order = append(order, "final")
		done(nil)
	}))
	err := s.Run(context.Background(), func(context.Context) {
		w.OnFinish(func() { order = append(order, "finish") })
		w.Write("data")
		w.End()
	})

	r.NoError(err)
	r.Equal([]string{"data", "final", "finish"}, order)
}

func TestWritableFinalizerErrorDestroys(t *testing.T) {
	r := require.New(t)

	boom := errors.New("final failed")
	var streamErr error
	var sunk []any
	s := runloop.New()
	w := NewWritable(s, syncSink(&sunk),
		WithFinal(func(done func(error)) { done(boom) }))
	err := s.Run(context.Background(), func(context.Context) {
		w.OnError(func(e error) { streamErr = e })
		w.Write(1)
		w.End()
	})

	r.NoError(err)
	r.ErrorIs(streamErr, boom)
	r.Equal(WErrored, w.State())
}

func TestWritableCorkBatchesWrites(t *testing.T) {
	r := require.New(t)

	var sunk []any
	s := runloop.New()
	w := NewWritable(s, syncSink(&sunk))
	err := s.Run(context.Background(), func(context.Context) {
		w.Cork()
		w.Write(1)
		w.Write(2)
		s.Schedule(runloop.KindImmediate, func() {
			r.Empty(sunk)
			w.Uncork()
		})
	})

	r.NoError(err)
	r.Equal([]any{1, 2}, sunk)
}

func TestWritableWriteAfterEnd(t *testing.T) {
	r := require.New(t)

	var streamErr error
	var sunk []any
	s := runloop.New()
	w := NewWritable(s, syncSink(&sunk))
	err := s.Run(context.Background(), func(context.Context) {
		w.OnError(func(e error) { streamErr = e })
		w.Write(1)
		w.End()
		r.False(w.Write(2))
	})

	r.NoError(err)
	r.ErrorIs(streamErr, ErrWriteAfterEnd)
	r.Equal(WErrored, w.State())
}

func TestWritableSinkErrorDestroys(t *testing.T) {
	r := require.New(t)

	boom := errors.New("write refused")
	var streamErr error
	closed := false
	s := runloop.New()
	w := NewWritable(s, func(_ any, done func(error)) { done(boom) })
	err := s.Run(context.Background(), func(context.Context) {
		w.OnError(func(e error) { streamErr = e })
		w.OnClose(func() { closed = true })
		w.Write("doomed")
	})

	r.NoError(err)
	r.ErrorIs(streamErr, boom)
	r.True(closed)
	r.Equal(WErrored, w.State())
	r.ErrorIs(w.Err(), boom)
}

func TestWritableSinkPanicBecomesStreamError(t *testing.T) {
	r := require.New(t)

	var streamErr error
	s := runloop.New()
	w := NewWritable(s, func(any, func(error)) { panic("bad sink") })
	err := s.Run(context.Background(), func(context.Context) {
		w.OnError(func(e error) { streamErr = e })
		w.Write(1)
	})

	r.NoError(err)
	r.Error(streamErr)
	r.Contains(streamErr.Error(), "bad sink")
}

func TestWritableHardCapOverflow(t *testing.T) {
	r := require.New(t)

	var streamErr error
	s := runloop.New()
	w := NewWritable(s, func(any, func(error)) {}, // never acknowledges
		WithHighWaterMark(1), WithHardCap(3))
	err := s.Run(context.Background(), func(context.Context) {
		w.OnError(func(e error) { streamErr = e })
		for i := range 4 {
			w.Write(i)
		}
	})

	r.NoError(err)
	r.ErrorIs(streamErr, ErrBufferOverflow)
	r.Equal(WErrored, w.State())
}

func TestWritableDestroyAfterFinishIsNoop(t *testing.T) {
	r := require.New(t)

	var sunk []any
	s := runloop.New()
	w := NewWritable(s, syncSink(&sunk))
	err := s.Run(context.Background(), func(context.Context) {
		w.OnFinish(func() {
			w.Destroy(errors.New("too late"))
			r.Equal(WFinished, w.State())
		})
		w.Write(1)
		w.End()
	})

	r.NoError(err)
	r.NoError(w.Err())
}
