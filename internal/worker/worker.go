package worker

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/bobarin/rendercast/internal/models"
	"github.com/bobarin/rendercast/internal/queue"
)

// DefaultConcurrency is the number of jobs processed at once when the
// limit is not configured.
const DefaultConcurrency = 3

// Pool pulls job IDs off the queue and runs them through the pipeline.
// Admission is gated by a weighted semaphore so at most `limit` renders
// hold CPU and ffmpeg processes at any moment, regardless of how many
// consumer goroutines are dequeuing.
type Pool struct {
	store    Store
	queue    *queue.Queue
	pipeline *Pipeline
	sem      *semaphore.Weighted
	limit    int
}

func NewPool(store Store, q *queue.Queue, pipeline *Pipeline, limit int) *Pool {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Pool{
		store:    store,
		queue:    q,
		pipeline: pipeline,
		sem:      semaphore.NewWeighted(int64(limit)),
		limit:    limit,
	}
}

// Limit reports the configured concurrency, for the health endpoint.
func (p *Pool) Limit() int { return p.limit }

// Start launches the consumer goroutines and blocks until ctx is
// cancelled and every in-flight job has finished. New dequeues stop at
// shutdown; running steps complete and checkpoint, which is what makes
// restart resumption cheap.
func (p *Pool) Start(ctx context.Context) {
	log.Printf("Worker pool started with concurrency: %d", p.limit)

	var wg sync.WaitGroup
	for i := 0; i < p.limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.consume(ctx)
		}()
	}

	wg.Wait()
	log.Println("Worker pool stopped")
}

func (p *Pool) consume(ctx context.Context) {
	for {
		jobID, err := p.queue.Dequeue(ctx)
		if err != nil {
			// Context cancelled; shut this consumer down.
			return
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		p.runOne(ctx, jobID)
		p.sem.Release(1)
	}
}

// runOne processes a single job. Failures are recorded on the job and
// logged; the consumer then moves on to the next job.
func (p *Pool) runOne(ctx context.Context, jobID string) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("Dropping queued job %s: %v", jobID, err)
		return
	}

	switch job.Status {
	case models.JobStatusCompleted, models.JobStatusFailed:
		log.Printf("Job %s already %s, skipping", jobID, job.Status)
		return
	}

	if err := p.store.SetJobStatus(ctx, jobID, models.JobStatusProcessing); err != nil {
		log.Printf("Could not mark job %s processing: %v", jobID, err)
		return
	}

	log.Printf("Processing job %s (mode: %s, step: %q)", jobID, job.Payload.VideoMode, job.Step)

	if err := p.pipeline.Run(ctx, job); err != nil {
		// Pipeline.Run already marked the job failed and logged the step.
		return
	}

	log.Printf("Job %s completed successfully", jobID)
}
