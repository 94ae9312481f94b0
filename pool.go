package runloop

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
)

// Executor runs a blocking operation on behalf of the offload pool. It
// is the host platform's hook for file, DNS and similar work: the core
// treats requests as opaque. An Executor must return errors as values;
// a panic is recovered by the worker and converted to an error result,
// never raised across the thread boundary.
type Executor interface {
	Execute(ctx context.Context, request any) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, request any) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, request any) (any, error) {
	return f(ctx, request)
}

// defaultExecutor executes function-shaped requests directly.
var defaultExecutor = ExecutorFunc(func(ctx context.Context, request any) (any, error) {
	switch fn := request.(type) {
	case func(context.Context) (any, error):
		return fn(ctx)
	case func() (any, error):
		return fn()
	case func() error:
		return nil, fn()
	case func():
		fn()
		return nil, nil
	default:
		return nil, fmt.Errorf("runloop: unsupported offload request type %T", request)
	}
})

type poolJob struct {
	request any
	fut     *Future
}

type completion struct {
	job *poolJob
	val any
	err error
}

// poolBridge owns a fixed set of worker goroutines pulling from a FIFO
// job queue, and a completion inbox consumed only by the scheduler's
// poll phase. The inbox producer side is the sole point of true
// concurrent mutation in the module.
type poolBridge struct {
	s       *Scheduler
	exec    Executor
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	jobs   deque.Deque[*poolJob]
	closed bool

	inboxMu sync.Mutex
	inbox   deque.Deque[completion]
	wake    chan struct{}

	outstanding atomic.Int64
	wg          sync.WaitGroup
	started     bool
}

func newPoolBridge(s *Scheduler, exec Executor, workers int) *poolBridge {
	if exec == nil {
		exec = defaultExecutor
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	b := &poolBridge{s: s, exec: exec, workers: workers, wake: make(chan struct{}, 1)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Offload submits a blocking request to the pool and returns the
// future that settles with its result. Exactly one completion is
// surfaced per submission, in worker finish order, not submission
// order. When every worker is busy the job waits in a FIFO queue
// rather than spawning additional threads.
func (s *Scheduler) Offload(request any) *Future {
	return s.bridge.submit(request)
}

func (b *poolBridge) submit(request any) *Future {
	fut := b.s.NewFuture()
	job := &poolJob{request: request, fut: fut}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		fut.Reject(ErrPoolClosed)
		return fut
	}
	b.outstanding.Add(1)
	b.jobs.PushBack(job)
	b.mu.Unlock()
	b.cond.Signal()

	b.s.log.Debug().
		Str("component", "pool").
		Int64("outstanding", b.outstanding.Load()).
		Log("job submitted")
	return fut
}

func (b *poolBridge) start(ctx context.Context) {
	if b.started {
		return
	}
	b.started = true
	b.mu.Lock()
	b.closed = false
	b.mu.Unlock()
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx)
	}
}

func (b *poolBridge) stop() {
	if !b.started {
		return
	}
	b.started = false
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
	b.wg.Wait()
}

func (b *poolBridge) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		for b.jobs.Len() == 0 && !b.closed {
			b.cond.Wait()
		}
		if b.jobs.Len() == 0 {
			b.mu.Unlock()
			return
		}
		job := b.jobs.PopFront()
		b.mu.Unlock()

		val, err := b.execute(ctx, job.request)
		b.complete(completion{job: job, val: val, err: err})
	}
}

// execute runs the blocking operation, converting a panic into an
// error result so nothing unwinds across the thread boundary.
func (b *poolBridge) execute(ctx context.Context, request any) (val any, err error) {
	defer func() {
		if v := recover(); v != nil {
			val = nil
			err = fmt.Errorf("runloop: offload panic: %v", v)
		}
	}()
	return b.exec.Execute(ctx, request)
}

// complete pushes one completion record into the inbox and nudges the
// poll phase. Multi-producer, single-consumer: workers only ever touch
// this path.
func (b *poolBridge) complete(c completion) {
	b.inboxMu.Lock()
	b.inbox.PushBack(c)
	b.inboxMu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *poolBridge) drain() []completion {
	b.inboxMu.Lock()
	defer b.inboxMu.Unlock()
	if b.inbox.Len() == 0 {
		return nil
	}
	batch := make([]completion, 0, b.inbox.Len())
	for b.inbox.Len() > 0 {
		batch = append(batch, b.inbox.PopFront())
	}
	return batch
}

// deliver turns a completion record into the io-callback that settles
// the job's future. A cancelled job already settled, so its result is
// discarded here.
func (b *poolBridge) deliver(c completion) {
	b.outstanding.Add(-1)
	if c.job.fut.State() == Canceled {
		b.s.log.Debug().
			Str("component", "pool").
			Log("discarded result of canceled job")
		return
	}
	if c.err != nil {
		c.job.fut.Reject(c.err)
		return
	}
	c.job.fut.Fulfill(c.val)
}
