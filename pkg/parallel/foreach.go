// Package parallel implements the single concurrency primitive the index
// builders dispatch work through: a worker pool of P goroutines draining a
// shared [0,N) index counter. Modeled on itchio/wharf's hand-rolled
// block-worker pool (itchio/wharf/bsdiff.Do), simplified to the spec's
// literal "shared counter under a mutex" shape since this primitive only
// needs index dispatch and a join barrier, not wharf's result-streaming
// channels.
package parallel

import "sync"

// ForEach dispatches f(i) for every i in [0, N) across P worker goroutines
// sharing a mutex-protected counter. f must be safe to call concurrently;
// the idiomatic pattern is for f to write into a distinct slot of a
// pre-sized output slice per i, so workers never contend on payload.
//
// Returns nil if every call to f returned nil. If one or more calls
// returned a non-nil error, ForEach returns the last non-nil error
// observed (implementation-defined which "last" means under concurrency,
// but stable across runs for a deterministic f, per spec §7). A worker
// that observes an error keeps running to completion on its current call;
// ForEach always joins every worker before returning.
func ForEach(p, n int, f func(i int) error) error {
	if n <= 0 {
		return nil
	}
	if p < 1 {
		p = 1
	}
	if p > n {
		p = n
	}

	var mu sync.Mutex
	next := 0
	var lastErr error

	var wg sync.WaitGroup
	wg.Add(p)
	for w := 0; w < p; w++ {
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				if next >= n {
					mu.Unlock()
					return
				}
				i := next
				next++
				mu.Unlock()

				err := f(i)

				if err != nil {
					mu.Lock()
					lastErr = err
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return lastErr
}
