// Package workerpool runs a function over a stream of jobs on a fixed
// number of goroutines.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Func processes one job. ok=false means the job produced no result.
type Func[J, R any] func(ctx context.Context, job J) (result R, ok bool)

// Pool manages concurrent execution of Func across multiple workers.
type Pool[J, R any] struct {
	workers int
	fn      Func[J, R]
	jobs    chan J
	results chan R
	wg      sync.WaitGroup
}

// New creates a pool with the given number of workers.
// The channels are buffered at workers*2 to allow some pipelining.
func New[J, R any](workers int, fn Func[J, R]) *Pool[J, R] {
	if workers <= 0 {
		workers = 1
	}
	return &Pool[J, R]{
		workers: workers,
		fn:      fn,
		jobs:    make(chan J, workers*2),
		results: make(chan R, workers*2),
	}
}

// Start launches the worker goroutines.
func (p *Pool[J, R]) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool[J, R]) worker(ctx context.Context) {
	defer p.wg.Done()

	for j := range p.jobs {
		func() {
			// One bad job must not take the pool down.
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("worker recovered from panic")
				}
			}()

			// Drain remaining jobs without running them once cancelled.
			if ctx.Err() != nil {
				return
			}
			if res, ok := p.fn(ctx, j); ok {
				p.results <- res
			}
		}()
	}
}

// Submit adds a job to the queue. It blocks if the queue is full.
func (p *Pool[J, R]) Submit(j J) {
	p.jobs <- j
}

// Close signals that no more jobs will be submitted, waits for all workers
// to finish and closes the results channel.
func (p *Pool[J, R]) Close() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}

// Results is the channel results are delivered on. It must be drained
// concurrently with Submit or the pool will stall.
func (p *Pool[J, R]) Results() <-chan R {
	return p.results
}

// Map runs fn over jobs on workers goroutines and collects the results.
// Result order is not related to job order.
func Map[J, R any](ctx context.Context, workers int, jobs []J, fn Func[J, R]) []R {
	p := New(workers, fn)
	p.Start(ctx)

	go func() {
		for _, j := range jobs {
			p.Submit(j)
		}
		p.Close()
	}()

	var out []R
	for r := range p.Results() {
		out = append(out, r)
	}
	return out
}
