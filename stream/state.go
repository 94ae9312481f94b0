package stream

import "errors"

// RState is the readable-side lifecycle state.
type RState uint8

const (
	// RIdle means no data consumer has attached yet.
	RIdle RState = iota
	// RFlowing means buffered chunks are being delivered to consumers.
	RFlowing
	// RPaused means delivery is suspended until Resume.
	RPaused
	// REnded means the source signaled exhaustion and the buffer has
	// fully drained to consumers.
	REnded
	// RDestroyed means the node was torn down without error.
	RDestroyed
	// RErrored means the node was torn down with an error.
	RErrored
)

func (st RState) String() string {
	switch st {
	case RIdle:
		return "idle"
	case RFlowing:
		return "flowing"
	case RPaused:
		return "paused"
	case REnded:
		return "ended"
	case RDestroyed:
		return "destroyed"
	case RErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// WState is the writable-side lifecycle state.
type WState uint8

const (
	// WWritable accepts writes and flushes them to the underlying sink.
	WWritable WState = iota
	// WCorked accepts writes but holds flushing until Uncork.
	WCorked
	// WFinishing means End was called and buffered data is flushing.
	WFinishing
	// WFinished means all buffered data reached the underlying sink.
	WFinished
	// WDestroyed means the node was torn down without error.
	WDestroyed
	// WErrored means the node was torn down with an error.
	WErrored
)

func (st WState) String() string {
	switch st {
	case WWritable:
		return "writable"
	case WCorked:
		return "corked"
	case WFinishing:
		return "finishing"
	case WFinished:
		return "finished"
	case WDestroyed:
		return "destroyed"
	case WErrored:
		return "errored"
	default:
		return "unknown"
	}
}

var (
	// ErrPrematureClose reports a pipeline node destroyed before it
	// completed its role in the graph.
	ErrPrematureClose = errors.New("stream: premature close")

	// ErrWriteAfterEnd reports a write against a node that already
	// ended, finished or was destroyed.
	ErrWriteAfterEnd = errors.New("stream: write after end")

	// ErrPushAfterEnd reports a source pushing data after signaling
	// exhaustion.
	ErrPushAfterEnd = errors.New("stream: push after end of stream")

	// ErrBufferOverflow reports a buffer grown past its hard cap. A
	// producer ignoring backpressure is a bug in the producer, but the
	// node still refuses to grow without bound.
	ErrBufferOverflow = errors.New("stream: buffer exceeded hard cap")
)

const (
	defaultHighWaterMark = 16
	hardCapFactor        = 16
)

type nodeConfig struct {
	hwm     int
	hardCap int
	final   FinalFunc
	flush   FlushFunc
}

// NodeOption configures a stream node at construction.
type NodeOption func(*nodeConfig)

// WithHighWaterMark sets the buffer threshold (in chunks) past which
// the node signals backpressure. Minimum 1; the default is 16.
func WithHighWaterMark(n int) NodeOption {
	return func(c *nodeConfig) { c.hwm = n }
}

// WithHardCap sets the absolute buffer bound. A producer that keeps
// writing past backpressure errors the node at this cap instead of
// growing the buffer unbounded. The default is 16x the high-water
// mark.
func WithHardCap(n int) NodeOption {
	return func(c *nodeConfig) { c.hardCap = n }
}

// WithFinal installs a finalizer on a writable node, invoked after the
// last buffered chunk flushes and before the node reports Finished.
func WithFinal(fn FinalFunc) NodeOption {
	return func(c *nodeConfig) { c.final = fn }
}

// WithFlush installs a flush hook on a transform, invoked after the
// writable side ends and before the readable side signals exhaustion.
// It may push trailing chunks.
func WithFlush(fn FlushFunc) NodeOption {
	return func(c *nodeConfig) { c.flush = fn }
}

func resolveNodeOptions(opts []NodeOption) *nodeConfig {
	cfg := &nodeConfig{hwm: defaultHighWaterMark}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.hwm < 1 {
		cfg.hwm = 1
	}
	if cfg.hardCap < cfg.hwm {
		cfg.hardCap = cfg.hwm * hardCapFactor
	}
	return cfg
}
