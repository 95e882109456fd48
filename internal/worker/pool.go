package worker

import (
	"context"
	"sort"
	"sync"
)

// Job is a unit of work executed by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of a Job
type Result interface {
	GetError() error
}

type indexedJob struct {
	index int
	job   Job
}

type indexedResult struct {
	index  int
	result Result
}

// Pool runs jobs on a fixed number of workers and returns results in submission order
type Pool struct {
	workers   int
	jobQueue  chan indexedJob
	results   chan indexedResult
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	submitted int
	closeOnce sync.Once
	onResult  func(Result)
	collected []indexedResult
	done      chan struct{}
}

// NewPool creates a pool bound to ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:  workers,
		jobQueue: make(chan indexedJob, workers*2),
		results:  make(chan indexedResult, workers*2),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// OnResult registers a callback invoked from the collecting goroutine for each finished job.
// It must be called before Start.
func (p *Pool) OnResult(fn func(Result)) {
	p.onResult = fn
}

// Start launches the workers and the result collector
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	go p.collect()
}

func (p *Pool) collect() {
	defer close(p.done)
	for r := range p.results {
		if p.onResult != nil {
			p.onResult(r.result)
		}
		p.collected = append(p.collected, r)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case item, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := item.job.Execute(p.ctx)
			select {
			case p.results <- indexedResult{index: item.index, result: result}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It blocks while the queue is full and is a no-op after cancellation.
// Submit must not be called concurrently with Wait.
func (p *Pool) Submit(job Job) {
	if p.ctx.Err() != nil {
		return
	}
	item := indexedJob{index: p.submitted, job: job}
	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- item:
		p.submitted++
	}
}

// Wait closes the queue, waits for all workers and returns results ordered by submission
func (p *Pool) Wait() []Result {
	close(p.jobQueue)

	p.wg.Wait()
	p.closeResults()
	<-p.done

	collected := p.collected
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	out := make([]Result, len(collected))
	for i, r := range collected {
		out[i] = r.result
	}
	return out
}

// Shutdown cancels outstanding jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.closeResults()
}

// Submitted returns the number of accepted jobs
func (p *Pool) Submitted() int {
	return p.submitted
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
