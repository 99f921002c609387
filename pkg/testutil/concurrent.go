package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/sentinel"
)

// ConcurrentResult counts the outcomes of a RunConcurrent call.
type ConcurrentResult struct {
	Successes int32
	Errors    int32
	Conflicts int32
	NotFounds int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Conflicts + r.NotFounds
}

// RunConcurrent starts n goroutines, releases them together so they race,
// and tallies their errors. Conflict and NotFound are recognized both as
// store sentinels and as domain codes; anything else counts under Errors.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var successes, errs, conflicts, notFounds atomic.Int32
	race(n, func(idx int) {
		err := fn(idx)
		switch {
		case err == nil:
			successes.Add(1)
		case errors.Is(err, sentinel.ErrConflict), dErrors.HasCode(err, dErrors.CodeConflict):
			conflicts.Add(1)
		case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
			notFounds.Add(1)
		default:
			errs.Add(1)
		}
	})
	return &ConcurrentResult{
		Successes: successes.Load(),
		Errors:    errs.Load(),
		Conflicts: conflicts.Load(),
		NotFounds: notFounds.Load(),
	}
}

// RunConcurrentCollect is RunConcurrent for callers that need the errors
// themselves.
func RunConcurrentCollect(n int, fn func(idx int) error) (successes int32, errs []error) {
	var mu sync.Mutex
	var ok atomic.Int32
	race(n, func(idx int) {
		if err := fn(idx); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			return
		}
		ok.Add(1)
	})
	return ok.Load(), errs
}

func race(n int, fn func(idx int)) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			<-start
			fn(i)
		})
	}
	close(start)
	wg.Wait()
}
