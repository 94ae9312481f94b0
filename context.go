package runloop

import "context"

// schedulerContextKey is a unique type used as a key for storing a
// Scheduler in a context.
type schedulerContextKey struct{}

// WithScheduler returns a context carrying the scheduler. Run attaches
// the scheduler to the context it passes to the main closure and to
// the offload executor.
func WithScheduler(ctx context.Context, s *Scheduler) context.Context {
	return context.WithValue(ctx, schedulerContextKey{}, s)
}

// FromContext retrieves the scheduler from a context. It returns the
// scheduler and whether one was present.
func FromContext(ctx context.Context) (*Scheduler, bool) {
	s, ok := ctx.Value(schedulerContextKey{}).(*Scheduler)
	return s, ok
}

// MustFromContext retrieves the scheduler from a context, panicking if
// not found. Useful when the caller expects the context to definitely
// carry one, such as inside an executor invoked by Run.
func MustFromContext(ctx context.Context) *Scheduler {
	s, ok := FromContext(ctx)
	if !ok {
		panic("runloop: scheduler not found in context")
	}
	return s
}
