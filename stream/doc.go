// Package stream provides backpressure-aware streaming nodes on top
// of a runloop scheduler: sources, sinks, transforms and duplexes with
// explicit lifecycle states, plus a pipeline orchestrator that wires
// them together with automatic flow control and exactly-once error
// teardown.
//
// Every node holds an ordered chunk buffer bounded by a high-water
// mark. A sink's Write returning false is the backpressure signal;
// exactly one drain notification follows once the buffer empties. A
// producer that ignores the signal does not grow the buffer without
// bound: a hard cap errors the node instead.
//
// All node operations run on the owning scheduler's logical thread.
// Data delivery, write flushing and drain signals ride the scheduler's
// high microtask tier; destroy notifications ride the close phase.
package stream
