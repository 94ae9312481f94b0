package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webriots/runloop"
)

func TestTransformPreservesOrder(t *testing.T) {
	r := require.New(t)

	var got []any
	ended := false
	s := runloop.New()
	tr := NewTransform(s, func(chunk any, push func(any), done func(error)) {
		push(fmt.Sprintf("out-%d", chunk))
		done(nil)
	})
	err := s.Run(context.Background(), func(context.Context) {
		tr.OnData(func(chunk any) { got = append(got, chunk) })
		tr.OnEnd(func() { ended = true })
		for i := range 5 {
			tr.Write(i)
		}
		tr.End()
	})

	r.NoError(err)
	r.Equal([]any{"out-0", "out-1", "out-2", "out-3", "out-4"}, got)
	r.True(ended)
	r.Equal(REnded, tr.ReadState())
	r.Equal(WFinished, tr.WriteState())
}

func TestTransformAsyncHookPreservesOrder(t *testing.T) {
	r := require.New(t)

	var got []any
	s := runloop.New()
	tr := NewTransform(s, func(chunk any, push func(any), done func(error)) {
		s.ScheduleTimer(func() {
			push(chunk)
			done(nil)
		}, time.Millisecond, false)
	})
	err := s.Run(context.Background(), func(context.Context) {
		tr.OnData(func(chunk any) { got = append(got, chunk) })
		tr.Write("a")
		tr.Write("b")
		tr.Write("c")
		tr.End()
	})

	r.NoError(err)
	r.Equal([]any{"a", "b", "c"}, got)
}

func TestTransformExpandsAndFilters(t *testing.T) {
	r := require.New(t)

	var got []any
	s := runloop.New()
	tr := NewTransform(s, func(chunk any, push func(any), done func(error)) {
		// Drop even chunks entirely, duplicate odd ones.
		if n := chunk.(int); n%2 != 0 {
			push(n)
			push(n)
		}
		done(nil)
	})
	err := s.Run(context.Background(), func(context.Context) {
		tr.OnData(func(chunk any) { got = append(got, chunk) })
		for i := range 4 {
			tr.Write(i)
		}
		tr.End()
	})

	r.NoError(err)
	r.Equal([]any{1, 1, 3, 3}, got)
}

func TestTransformFlushPushesTrailer(t *testing.T) {
	r := require.New(t)

	var got []any
	s := runloop.New()
	tr := NewTransform(s, func(chunk any, push func(any), done func(error)) {
		push(chunk)
		done(nil)
	}, WithFlush(func(push func(any), done func(error)) {
		push("trailer")
		done(nil)
	}))
	err := s.Run(context.Background(), func(context.Context) {
		tr.OnData(func(chunk any) { got = append(got, chunk) })
		tr.Write("body")
		tr.End()
	})

	r.NoError(err)
	r.Equal([]any{"body", "trailer"}, got)
}

func TestTransformHookErrorTearsDownBothSides(t *testing.T) {
	r := require.New(t)

	boom := errors.New("transform failed")
	var streamErr error
	closes := 0
	s := runloop.New()
	tr := NewTransform(s, func(chunk any, push func(any), done func(error)) {
		if chunk.(int) == 2 {
			done(boom)
			return
		}
		push(chunk)
		done(nil)
	})
	err := s.Run(context.Background(), func(context.Context) {
		tr.OnData(func(any) {})
		tr.OnError(func(e error) { streamErr = e })
		tr.OnClose(func() { closes++ })
		for i := range 4 {
			tr.Write(i)
		}
	})

	r.NoError(err)
	r.ErrorIs(streamErr, boom)
	r.Equal(1, closes)
	r.ErrorIs(tr.Err(), boom)
	r.Equal(RErrored, tr.ReadState())
	r.Equal(WErrored, tr.WriteState())
}

func TestTransformStallsOnFullOutput(t *testing.T) {
	r := require.New(t)

	processed := 0
	s := runloop.New()
	tr := NewTransform(s, func(chunk any, push func(any), done func(error)) {
		processed++
		push(chunk)
		done(nil)
	}, WithHighWaterMark(1))
	err := s.Run(context.Background(), func(context.Context) {
		// No consumer attached: the output buffer fills to its
		// high-water mark and input flushing stalls.
		for i := range 5 {
			tr.Write(i)
		}
		s.Schedule(runloop.KindImmediate, func() {
			r.Equal(1, processed)
			tr.Destroy(nil)
		})
	})

	r.NoError(err)
	r.Equal(1, processed)
}

func TestTransformConsumerReleasesStall(t *testing.T) {
	r := require.New(t)

	var got []any
	s := runloop.New()
	tr := PassThrough(s, WithHighWaterMark(1))
	err := s.Run(context.Background(), func(context.Context) {
		for i := range 5 {
			tr.Write(i)
		}
		tr.End()
		// Attach the consumer after the stall is established.
		s.ScheduleTimer(func() {
			tr.OnData(func(chunk any) { got = append(got, chunk) })
		}, 5*time.Millisecond, false)
	})

	r.NoError(err)
	r.Equal([]any{0, 1, 2, 3, 4}, got)
	r.Equal(REnded, tr.ReadState())
	r.Equal(WFinished, tr.WriteState())
}

func TestDuplexSidesAreIndependent(t *testing.T) {
	r := require.New(t)

	var (
		read []any
		sunk []any
	)
	s := runloop.New()
	d := NewDuplex(s, nil, syncSink(&sunk))
	err := s.Run(context.Background(), func(context.Context) {
		d.OnData(func(chunk any) { read = append(read, chunk) })
		d.Push("inbound")
		d.PushEnd()
		d.Write("outbound")
		d.End()
	})

	r.NoError(err)
	r.Equal([]any{"inbound"}, read)
	r.Equal([]any{"outbound"}, sunk)
	r.Equal(REnded, d.ReadState())
	r.Equal(WFinished, d.WriteState())
}

func TestDuplexSharedTeardown(t *testing.T) {
	r := require.New(t)

	boom := errors.New("socket reset")
	var streamErr error
	closes := 0
	s := runloop.New()
	d := NewDuplex(s, nil, func(_ any, done func(error)) { done(boom) })
	err := s.Run(context.Background(), func(context.Context) {
		d.OnError(func(e error) { streamErr = e })
		d.OnClose(func() { closes++ })
		d.Write("doomed")
	})

	r.NoError(err)
	r.ErrorIs(streamErr, boom)
	r.Equal(1, closes)
	r.Equal(RErrored, d.ReadState())
	r.Equal(WErrored, d.WriteState())
}
