// Package parallel runs independent jobs on a worker pool and hands results
// back in submission order.
package parallel

import (
	"runtime"
	"sync"
)

// Item is one unit of work tagged with its submission sequence number.
type Item[T any] struct {
	Seq   int
	Value T
}

// Result is the output of one item.
type Result[T, R any] struct {
	Seq   int
	Value T
	Out   R
	Err   error
}

// Feed returns a closed, buffered channel holding values in order.
func Feed[T any](values []T) <-chan Item[T] {
	ch := make(chan Item[T], len(values))
	for i, v := range values {
		ch <- Item[T]{Seq: i, Value: v}
	}
	close(ch)
	return ch
}

// Run applies fn to items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func Run[T, R any](items <-chan Item[T], workers int, fn func(T) (R, error)) <-chan Result[T, R] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan Result[T, R], 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				out, err := fn(item.Value)
				results <- Result[T, R]{
					Seq:   item.Seq,
					Value: item.Value,
					Out:   out,
					Err:   err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// Out-of-order results wait in a pending map until the next expected
// sequence number arrives. Blocks until the results channel is closed.
func OrderedCollect[T, R any](results <-chan Result[T, R], fn func(Result[T, R]) error) error {
	pending := make(map[int]Result[T, R])
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}

// Map applies fn to every value with the given number of workers and returns
// outputs and errors indexed like values.
func Map[T, R any](values []T, workers int, fn func(T) (R, error)) ([]R, []error) {
	outs := make([]R, len(values))
	errs := make([]error, len(values))
	_ = OrderedCollect(Run(Feed(values), workers, fn), func(r Result[T, R]) error {
		outs[r.Seq] = r.Out
		errs[r.Seq] = r.Err
		return nil
	})
	return outs, errs
}
