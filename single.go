package runloop

// Single deduplicates in-flight work by key: while a future started
// for a key is still pending, further requests for that key share it
// instead of starting again. Owned by the scheduler's logical thread;
// no locking is needed or provided.
type Single struct {
	m map[any]*Future
}

// Do returns the in-flight future for key, starting one via start if
// none exists. The entry clears when the future settles, so later
// calls start fresh work. Sharing a future observes it, so a rejection
// reaches every caller rather than the fatal sink.
func (g *Single) Do(key any, start func() *Future) *Future {
	if f, ok := g.m[key]; ok {
		return f
	}

	f := start()
	if g.m == nil {
		g.m = make(map[any]*Future)
	}
	g.m[key] = f

	f.Then(func(Result) {
		if g.m[key] == f {
			delete(g.m, key)
		}
	})
	return f
}

// Forget drops the in-flight entry for key, so the next Do starts
// fresh work even if the prior future has not settled.
func (g *Single) Forget(key any) {
	delete(g.m, key)
}
