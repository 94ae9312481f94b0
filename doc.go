// Package runloop provides a single-logical-thread cooperative
// scheduler that interleaves timer-driven work, completion-driven work
// from an offloaded worker pool, and two priority tiers of deferred
// callbacks.
//
// Key components:
//
//   - Scheduler: owns the task queues, the timer heap and the offload
//     pool bridge, and drives them through a repeating cycle of fixed
//     phases (timers, pending, poll, check, close). Both microtask
//     tiers drain to exhaustion between every phase.
//
//   - TaskHandle/TimerHandle: cancellation handles for scheduled
//     closures and timers. Cancellation is cooperative mark-and-check;
//     a cancelled closure never executes, even if already dequeued.
//
//   - Future: a single-settlement completion value with Then-style
//     continuations on the loop thread and blocking Wait consumption
//     from other goroutines. Cancellation is a distinct settled state,
//     not an error.
//
//   - Offload: submits opaque blocking requests to a fixed-size worker
//     pool. Workers never touch scheduler state; they push completion
//     records into an inbox the poll phase drains, in finish order.
//
//   - Coro: a coroutine adapter letting sequential-looking code
//     suspend on futures (Await, Sleep, Offload) while remaining on
//     the scheduler's single logical thread.
//
//   - All/Race/Single: composition over futures for fan-in, first
//     winner, and in-flight deduplication.
//
// Everything scheduled runs sequentially on one logical thread, which
// is what makes the phase-ordering contract meaningful. The only true
// concurrency is the pool's workers, confined to the completion
// inbox's producer side.
package runloop
