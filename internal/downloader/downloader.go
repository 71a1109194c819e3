package downloader

import (
	"context"
	"iter"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"
)

// JobFetcher performs one job. *Fetcher implements it.
type JobFetcher interface {
	Fetch(ctx context.Context, job Job) Outcome
}

// Scheduler runs jobs through a JobFetcher with bounded concurrency.
type Scheduler struct {
	fetcher JobFetcher
	limit   int64
}

// NewScheduler creates a scheduler admitting at most limit concurrent
// fetches. A non-positive limit is treated as 1.
func NewScheduler(fetcher JobFetcher, limit int) *Scheduler {
	if limit <= 0 {
		limit = 1
	}
	return &Scheduler{
		fetcher: fetcher,
		limit:   int64(limit),
	}
}

// Limit returns the concurrency limit.
func (s *Scheduler) Limit() int {
	return int(s.limit)
}

// Run fetches every job and returns one outcome per job, in job order.
func (s *Scheduler) Run(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	s.Each(ctx, slices.Values(jobs), func(i int, o Outcome) {
		outcomes[i] = o
	})
	return outcomes
}

// Each fetches every job yielded by jobs and calls fn with its index and
// outcome. fn is never called concurrently. Each returns once every job has
// produced an outcome.
//
// A failing job never affects the others. If ctx is cancelled, jobs that
// have not been admitted yet are reported as failed with ctx.Err().
func (s *Scheduler) Each(ctx context.Context, jobs iter.Seq[Job], fn func(int, Outcome)) {
	sem := semaphore.NewWeighted(s.limit)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	emit := func(i int, o Outcome) {
		if fn == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fn(i, o)
	}

	i := 0
	for job := range jobs {
		idx := i
		i++

		err := ctx.Err()
		if err == nil {
			err = sem.Acquire(ctx, 1)
		}
		if err != nil {
			emit(idx, Outcome{Descriptor: job.Descriptor, Status: StatusFailed, Err: err})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			emit(idx, s.fetcher.Fetch(ctx, job))
		}()
	}

	wg.Wait()
}
