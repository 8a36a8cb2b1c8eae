package tensor

import (
	"runtime"
	"sync"
)

// ParallelFor calls fn(i) for every i in [0, n), spreading contiguous index
// ranges across up to GOMAXPROCS goroutines. It returns once all calls have
// finished. fn must be safe to run concurrently for distinct i.
func ParallelFor(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	workers := min(runtime.GOMAXPROCS(0), n)
	if workers <= 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := range workers {
		rs := w * chunk
		re := min(rs+chunk, n)
		if rs >= re {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := rs; i < re; i++ {
				fn(i)
			}
		}()
	}
	wg.Wait()
}
