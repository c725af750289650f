package main

import (
	"runtime"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

const (
	// submissionWorkerQueueMultiplier determines how much backlog we allow
	// per worker goroutine.
	submissionWorkerQueueMultiplier = 32
	// submissionWorkerQueueMinDepth ensures the queue can hold at least this
	// many tasks regardless of CPU count.
	submissionWorkerQueueMinDepth = 128
)

type submissionTask struct {
	payload    []byte
	receivedAt time.Time
}

// submissionWorkerPool runs share checks off the socket loop. A panic in one
// task is logged and the worker keeps going.
type submissionWorkerPool struct {
	tasks  chan submissionTask
	handle func(submissionTask)
	wg     sizedwaitgroup.SizedWaitGroup

	closeOnce sync.Once
}

func newSubmissionWorkerPool(workerCount int, handle func(submissionTask)) *submissionWorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	queueDepth := max(workerCount*submissionWorkerQueueMultiplier, submissionWorkerQueueMinDepth)
	pool := &submissionWorkerPool{
		tasks:  make(chan submissionTask, queueDepth),
		handle: handle,
		wg:     sizedwaitgroup.New(workerCount),
	}
	for i := 0; i < workerCount; i++ {
		pool.wg.Add()
		go pool.worker(i)
	}
	return pool
}

func (p *submissionWorkerPool) submit(task submissionTask) {
	p.tasks <- task
}

// stop drains queued tasks and waits for the workers. submit must not be
// called afterwards.
func (p *submissionWorkerPool) stop() {
	p.closeOnce.Do(func() { close(p.tasks) })
	p.wg.Wait()
}

func (p *submissionWorkerPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		func(t submissionTask) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("submission worker panic", "worker", id, "error", r)
				}
			}()
			p.handle(t)
		}(task)
	}
}
