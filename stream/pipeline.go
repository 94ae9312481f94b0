package stream

import "github.com/webriots/runloop"

// Source is the readable face of a pipeline node.
type Source interface {
	OnData(func(any))
	OnEnd(func())
	OnError(func(error))
	OnClose(func())
	Pause()
	Resume()
	Destroy(error)
}

// Sink is the writable face of a pipeline node.
type Sink interface {
	Write(any) bool
	End()
	OnDrain(func())
	OnFinish(func())
	OnError(func(error))
	OnClose(func())
	Destroy(error)
}

type pipeNode struct {
	destroy   func(error)
	completed bool
}

type pipeline struct {
	s     *runloop.Scheduler
	nodes []pipeNode
	fut   *runloop.Future
	done  bool
}

// Pipe wires source through the given nodes in order: every node
// before the last must also be a Source (a Transform or Duplex), and
// the last is the terminal sink. Data flows with backpressure handled
// automatically: a false Write pauses the upstream until the drain
// signal.
//
// The returned completion future fulfills when the source ends, every
// transform finishes and the sink finishes. On the first error or
// premature close anywhere in the graph, every node is destroyed
// exactly once and the completion rejects with that single error.
func Pipe(s *runloop.Scheduler, source Source, sinks ...Sink) *runloop.Future {
	if source == nil {
		panic("stream: Pipe called with nil source")
	}
	if len(sinks) == 0 {
		panic("stream: Pipe requires at least one sink")
	}

	p := &pipeline{s: s, fut: s.NewFuture()}

	// The teardown path observes stream errors; the completion value
	// reports them exactly once without escalating to the fatal sink.
	p.fut.Then(func(runloop.Result) {})

	sources := make([]Source, len(sinks))
	sources[0] = source
	for i := 0; i < len(sinks)-1; i++ {
		src, ok := sinks[i].(Source)
		if !ok {
			panic("stream: intermediate pipe node must be readable and writable")
		}
		sources[i+1] = src
	}

	p.nodes = make([]pipeNode, len(sinks)+1)
	p.nodes[0] = pipeNode{destroy: source.Destroy}
	for i, snk := range sinks {
		p.nodes[i+1] = pipeNode{destroy: snk.Destroy}
	}

	watch := func(i int, onErr func(func(error)), onClose func(func())) {
		onErr(func(err error) { p.fail(err) })
		onClose(func() {
			if !p.done && !p.nodes[i].completed {
				p.fail(ErrPrematureClose)
			}
		})
	}
	watch(0, source.OnError, source.OnClose)
	for i, snk := range sinks {
		watch(i+1, snk.OnError, snk.OnClose)
	}

	last := len(sinks) - 1
	sinks[last].OnFinish(func() {
		p.nodes[len(p.nodes)-1].completed = true
		p.succeed()
	})

	for i := range sinks {
		i := i
		up := sources[i]
		down := sinks[i]
		up.OnEnd(func() {
			p.nodes[i].completed = true
			if !p.done {
				down.End()
			}
		})
		down.OnDrain(func() {
			if !p.done {
				up.Resume()
			}
		})
		up.OnData(func(chunk any) {
			if p.done {
				return
			}
			if !down.Write(chunk) {
				up.Pause()
			}
		})
	}

	return p.fut
}

// fail destroys every node exactly once and rejects the completion
// with the first error. Nodes that already tore themselves down no-op
// on the repeated destroy.
func (p *pipeline) fail(err error) {
	if p.done {
		return
	}
	p.done = true
	p.s.Logger().Debug().
		Str("component", "stream").
		Int("nodes", len(p.nodes)).
		Err(err).
		Log("pipeline teardown")
	for _, n := range p.nodes {
		n.destroy(err)
	}
	p.fut.Reject(err)
}

func (p *pipeline) succeed() {
	if p.done {
		return
	}
	p.done = true
	p.fut.Fulfill(nil)
}
