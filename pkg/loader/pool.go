package loader

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// BatchResult pairs a submitted batch's ID with its outcome. Err is set
// for a structurally invalid document or a context cancellation; a
// malformed individual entry within an otherwise valid document is
// never an Err here, only a Result.Rejected count.
type BatchResult struct {
	BatchID string
	Result  Result
	Err     error
}

type batchJob struct {
	id     string
	reader io.Reader
	result chan<- BatchResult
}

// Pool concurrently feeds submitted documents through a Loader,
// bounding how many are decoded and inserted at once. Adapted from
// warming/worker_pool.go's fixed-worker/buffered-queue shape; dropped
// is that pool's per-task retry-with-backoff, since a malformed feed
// document fails the same way on every retry (see DESIGN.md). Unlike
// that pool's single shared result queue, each Submit call gets its
// own result channel, so concurrent callers never race over each
// other's outcomes.
type Pool struct {
	loader *Loader
	queue  chan batchJob
	active atomic.Int32
	wg     sync.WaitGroup
}

// NewPool creates a pool of numWorkers goroutines draining a queue of
// capacity queueDepth, each ingesting batches through loader.
func NewPool(loader *Loader, numWorkers, queueDepth int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueDepth <= 0 {
		queueDepth = numWorkers
	}

	p := &Pool{
		loader: loader,
		queue:  make(chan batchJob, queueDepth),
	}

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for job := range p.queue {
		p.active.Add(1)
		res, err := p.loader.LoadReader(context.Background(), job.reader)
		p.active.Add(-1)
		job.result <- BatchResult{BatchID: job.id, Result: res, Err: err}
		close(job.result)
	}
}

// Submit queues one document for ingestion under id and returns a
// channel receiving its single BatchResult once processed. It blocks
// if the queue is full; callers needing non-blocking admission should
// select on a context themselves before calling Submit.
func (p *Pool) Submit(id string, r io.Reader) <-chan BatchResult {
	result := make(chan BatchResult, 1)
	p.queue <- batchJob{id: id, reader: r, result: result}
	return result
}

// ActiveCount returns the number of documents currently being ingested.
func (p *Pool) ActiveCount() int {
	return int(p.active.Load())
}

// QueueSize returns the number of documents waiting to start.
func (p *Pool) QueueSize() int {
	return len(p.queue)
}

// Shutdown closes the submission queue and waits for in-flight and
// queued documents to finish. Submit must not be called after Shutdown
// starts.
func (p *Pool) Shutdown() {
	close(p.queue)
	p.wg.Wait()
}
