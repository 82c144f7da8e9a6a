package utils

import (
	"log"
	"sync"
)

// WorkerPool runs fire-and-forget jobs on a fixed set of goroutines. The
// membership service uses it for side effects that must not block the caller,
// such as notifying admins about a new join request.
type WorkerPool struct {
	jobs    chan func()
	workers int
	wg      sync.WaitGroup
	quit    chan struct{}
	once    sync.Once
}

func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &WorkerPool{
		jobs:    make(chan func(), queueSize),
		workers: workers,
		quit:    make(chan struct{}),
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for {
				select {
				case job := <-p.jobs:
					// A panicking job must not take the worker down.
					func() {
						defer func() {
							if r := recover(); r != nil {
								log.Printf("worker %d: recovered from panic: %v", workerID, r)
							}
						}()
						job()
					}()
				case <-p.quit:
					return
				}
			}
		}(i)
	}
}

// Submit enqueues a job, blocking while the queue is full.
func (p *WorkerPool) Submit(job func()) {
	p.jobs <- job
}

func (p *WorkerPool) Stop() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
