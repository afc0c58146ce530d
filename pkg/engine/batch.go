package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/issue"
)

// Job is one document in a batch validation request.
type Job struct {
	// ID identifies the job in the batch result. Left empty, it is
	// assigned a random UUID when the job runs.
	ID string

	// Document is the JSON document to validate.
	Document []byte

	// Profiles is an optional list of additional canonical URLs to
	// validate against, on top of what the document declares.
	Profiles []string
}

// JobResult is the outcome of a single job.
type JobResult struct {
	// ID matches the Job.ID that produced this result.
	ID string

	// Result is the validation result.
	Result *issue.Result

	// Error holds any run failure, such as context cancellation.
	Error error

	// Duration is the time taken to validate the document.
	Duration time.Duration
}

// BatchResult aggregates results from a batch validation.
type BatchResult struct {
	// Results holds one entry per job, in submission order. Jobs that
	// never ran because the context was cancelled are left nil.
	Results []*JobResult

	// TotalJobs is the number of jobs submitted.
	TotalJobs int

	// CompletedJobs is the number of jobs that ran to completion.
	CompletedJobs int

	// FailedJobs is the number of jobs that failed with an error.
	FailedJobs int

	// TotalDuration is the wall-clock time of the whole batch.
	TotalDuration time.Duration
}

// HasErrors reports whether any job failed to run or produced
// validation errors.
func (br *BatchResult) HasErrors() bool {
	for _, r := range br.Results {
		if r == nil {
			continue
		}
		if r.Error != nil {
			return true
		}
		if r.Result != nil && r.Result.HasErrors() {
			return true
		}
	}
	return false
}

// ErrorCount returns the total number of error issues across all results.
func (br *BatchResult) ErrorCount() int {
	count := 0
	for _, r := range br.Results {
		if r != nil && r.Result != nil {
			count += r.Result.ErrorCount()
		}
	}
	return count
}

// ValidateBatch validates a batch of jobs, fanning work out to a
// bounded worker pool. Results come back in submission order.
func (e *Engine) ValidateBatch(ctx context.Context, jobs []Job, mode Mode) *BatchResult {
	start := time.Now()

	br := &BatchResult{
		Results:   make([]*JobResult, len(jobs)),
		TotalJobs: len(jobs),
	}
	if len(jobs) == 0 {
		return br
	}

	// Small batches are not worth the goroutine overhead.
	if len(jobs) <= 2 {
		e.runSequential(ctx, jobs, mode, br)
	} else {
		e.runParallel(ctx, jobs, mode, br)
	}

	br.TotalDuration = time.Since(start)
	return br
}

// ValidateDocuments validates plain documents as an anonymous batch.
func (e *Engine) ValidateDocuments(ctx context.Context, documents [][]byte, mode Mode) *BatchResult {
	jobs := make([]Job, len(documents))
	for i, doc := range documents {
		jobs[i] = Job{Document: doc}
	}
	return e.ValidateBatch(ctx, jobs, mode)
}

func (e *Engine) runJob(ctx context.Context, job *Job, mode Mode) *JobResult {
	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}

	start := time.Now()
	result, err := e.ValidateWithProfiles(ctx, job.Document, mode, job.Profiles...)
	return &JobResult{
		ID:       id,
		Result:   result,
		Error:    err,
		Duration: time.Since(start),
	}
}

func (e *Engine) runSequential(ctx context.Context, jobs []Job, mode Mode, br *BatchResult) {
	for i := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		br.Results[i] = e.runJob(ctx, &jobs[i], mode)
		br.CompletedJobs++
		if br.Results[i].Error != nil {
			br.FailedJobs++
		}
	}
}

func (e *Engine) runParallel(ctx context.Context, jobs []Job, mode Mode, br *BatchResult) {
	workers := e.config.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers <= 0 {
		workers = 1
	}

	type indexedResult struct {
		index  int
		result *JobResult
	}

	// Both channels are buffered to batch size, so neither the
	// submitter nor the workers can block on a send.
	jobCh := make(chan int, len(jobs))
	resultCh := make(chan indexedResult, len(jobs))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				select {
				case <-ctx.Done():
					return
				default:
				}

				resultCh <- indexedResult{index: idx, result: e.runJob(ctx, &jobs[idx], mode)}
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for i := range jobs {
			select {
			case <-ctx.Done():
				return
			case jobCh <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for ir := range resultCh {
		br.Results[ir.index] = ir.result
		br.CompletedJobs++
		if ir.result.Error != nil {
			br.FailedJobs++
		}
	}
}
