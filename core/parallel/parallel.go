// Package parallel fans index ranges out over a bounded number of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Workers resolves an n_jobs style setting: values <= 0 mean one worker per
// CPU core.
func Workers(nJobs int) int {
	if nJobs <= 0 {
		return runtime.NumCPU()
	}
	return nJobs
}

// Parallelize is ParallelizeN with one worker per CPU core.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeN(runtime.NumCPU(), items, fn)
}

// chunks splits [0, items) into at most workers contiguous, non-empty ranges
// of ceil(items/workers) indices.
func chunks(workers, items int) [][2]int {
	if workers > items {
		workers = items
	}
	size := (items + workers - 1) / workers
	out := make([][2]int, 0, workers)
	for start := 0; start < items; start += size {
		end := start + size
		if end > items {
			end = items
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// ParallelizeN runs fn on contiguous ranges covering [0, items) with at most
// workers goroutines and returns once every range is done. Ranges are
// disjoint, so fn may write to per-index slots without locking.
//
// A panic in fn is re-raised on the calling goroutine after the other ranges
// finish, so callers can recover it as usual.
func ParallelizeN(workers, items int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ranges := chunks(workers, items)
	if len(ranges) == 1 {
		fn(0, items)
		return
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		panicked interface{}
	)
	for _, r := range ranges {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					once.Do(func() { panicked = p })
				}
			}()
			fn(s, e)
		}(r[0], r[1])
	}
	wg.Wait()
	if panicked != nil {
		panic(panicked)
	}
}

// ParallelizeWithThreshold runs fn sequentially when items <= threshold and
// with ParallelizeN(workers, ...) otherwise.
func ParallelizeWithThreshold(workers, items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	ParallelizeN(workers, items, fn)
}
