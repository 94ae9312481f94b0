package runloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoroOffloadSequence(t *testing.T) {
	r := require.New(t)

	var got Result
	s := New()
	err := s.Run(context.Background(), func(context.Context) {
		Go(s, func(co *Coro) (any, error) {
			n := 0
			for range 4 {
				v, err := co.Offload(func() (any, error) { return n + 1, nil })
				if err != nil {
					return nil, err
				}
				n = v.(int)
			}
			return n, nil
		}).Then(func(res Result) { got = res })
	})

	r.NoError(err)
	r.NoError(got.Err)
	r.Equal(4, got.Value)
}

func TestCoroStartsAsynchronously(t *testing.T) {
	r := require.New(t)

	var order []string
	s := New()
	err := s.Run(context.Background(), func(context.Context) {
		Go(s, func(*Coro) (any, error) {
			order = append(order, "coro")
			return nil, nil
		}).Then(func(Result) {})
		order = append(order, "main")
	})

	r.NoError(err)
	r.Equal([]string{"main", "coro"}, order)
}

func TestCoroSleepLetsTimersRun(t *testing.T) {
	r := require.New(t)

	var order []string
	s := New()
	err := s.Run(context.Background(), func(context.Context) {
		s.ScheduleTimer(func() { order = append(order, "timer") }, 5*time.Millisecond, false)
		Go(s, func(co *Coro) (any, error) {
			co.Sleep(20 * time.Millisecond)
			order = append(order, "woke")
			return nil, nil
		}).Then(func(Result) {})
	})

	r.NoError(err)
	r.Equal([]string{"timer", "woke"}, order)
}

func TestCoroAwaitSettledFuture(t *testing.T) {
	r := require.New(t)

	var got Result
	s := New()
	err := s.Run(context.Background(), func(context.Context) {
		f := s.NewFuture()
		f.Fulfill("ready")
		Go(s, func(co *Coro) (any, error) {
			return co.Await(f)
		}).Then(func(res Result) { got = res })
	})

	r.NoError(err)
	r.Equal("ready", got.Value)
}

func TestCoroAwaitRejected(t *testing.T) {
	r := require.New(t)

	boom := errors.New("offloaded failure")
	var got Result
	s := New()
	err := s.Run(context.Background(), func(context.Context) {
		Go(s, func(co *Coro) (any, error) {
			return co.Offload(func() error { return boom })
		}).Then(func(res Result) { got = res })
	})

	r.NoError(err)
	r.ErrorIs(got.Err, boom)
}

func TestCoroAwaitCanceled(t *testing.T) {
	r := require.New(t)

	var got Result
	s := New()
	err := s.Run(context.Background(), func(context.Context) {
		f := s.NewFuture()
		Go(s, func(co *Coro) (any, error) {
			return co.Await(f)
		}).Then(func(res Result) { got = res })
		s.ScheduleTimer(func() { f.Cancel() }, time.Millisecond, false)
	})

	r.NoError(err)
	r.ErrorIs(got.Err, ErrCanceled)
}

func TestCoroPanicRejectsCompletion(t *testing.T) {
	r := require.New(t)

	var got Result
	s := New()
	err := s.Run(context.Background(), func(context.Context) {
		Go(s, func(*Coro) (any, error) {
			panic("coroutine blew up")
		}).Then(func(res Result) { got = res })
	})

	r.NoError(err)
	r.Error(got.Err)
	r.Contains(got.Err.Error(), "coroutine blew up")
}

func TestNestedCoros(t *testing.T) {
	r := require.New(t)

	var got Result
	s := New()
	err := s.Run(context.Background(), func(context.Context) {
		Go(s, func(co *Coro) (any, error) {
			child := Go(s, func(co *Coro) (any, error) {
				return co.Offload(func() (any, error) { return "inner", nil })
			})
			v, err := co.Await(child)
			if err != nil {
				return nil, err
			}
			return v.(string) + "-outer", nil
		}).Then(func(res Result) { got = res })
	})

	r.NoError(err)
	r.Equal("inner-outer", got.Value)
}

func TestSuspendedCoroCanceledWhenLoopExits(t *testing.T) {
	r := require.New(t)

	s := New()
	var fut *Future
	err := s.Run(context.Background(), func(context.Context) {
		fut = Go(s, func(co *Coro) (any, error) {
			// Awaits a future nothing ever settles.
			return co.Await(s.NewFuture())
		})
	})

	r.NoError(err)
	r.Equal(Canceled, fut.State())
	r.True(fut.Result().Canceled)
	r.Empty(s.coros)
}

func TestCoroYield(t *testing.T) {
	r := require.New(t)

	var order []string
	s := New()
	err := s.Run(context.Background(), func(context.Context) {
		s.Schedule(KindImmediate, func() { order = append(order, "immediate") })
		Go(s, func(co *Coro) (any, error) {
			order = append(order, "before")
			co.Yield()
			order = append(order, "after")
			return nil, nil
		}).Then(func(Result) {})
	})

	r.NoError(err)
	r.Equal([]string{"before", "immediate", "after"}, order)
}
