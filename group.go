package runloop

// All returns a future that fulfills with the values of futs in
// argument order once every one fulfills, or rejects with the first
// error among them. A cancelled member counts as ErrCanceled. An empty
// input fulfills immediately with an empty slice.
func All(s *Scheduler, futs ...*Future) *Future {
	out := s.NewFuture()
	if len(futs) == 0 {
		out.Fulfill([]any{})
		return out
	}

	values := make([]any, len(futs))
	remaining := len(futs)
	for i, f := range futs {
		i := i
		f.Then(func(r Result) {
			if out.State() != Pending {
				return
			}
			switch {
			case r.Canceled:
				out.Reject(ErrCanceled)
			case r.Err != nil:
				out.Reject(r.Err)
			default:
				values[i] = r.Value
				remaining--
				if remaining == 0 {
					out.Fulfill(values)
				}
			}
		})
	}
	return out
}

// Race returns a future that settles the same way as whichever of futs
// settles first.
func Race(s *Scheduler, futs ...*Future) *Future {
	out := s.NewFuture()
	for _, f := range futs {
		f.Then(func(r Result) {
			switch {
			case r.Canceled:
				out.Cancel()
			case r.Err != nil:
				out.Reject(r.Err)
			default:
				out.Fulfill(r.Value)
			}
		})
	}
	return out
}
