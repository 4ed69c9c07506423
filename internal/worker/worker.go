package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

type WorkerPool struct {
	taskQueue   chan Task
	wg          sync.WaitGroup
	isClosing   atomic.Bool // thread-safe value
	taskTimeout time.Duration
}

func NewWorkerPool(size, queueSize int, taskTimeout time.Duration) *WorkerPool {
	if size < 1 {
		size = 1
	}
	wp := &WorkerPool{
		taskQueue:   make(chan Task, queueSize),
		taskTimeout: taskTimeout,
	}

	// Start the workers
	for i := 0; i < size; i++ {
		wp.wg.Add(1) // add to WaitGroup
		go wp.startWorker()
	}

	return wp
}

func (wp *WorkerPool) startWorker() {
	defer wp.wg.Done() // signal when worker finished
	for task := range wp.taskQueue {
		wp.run(task)
	}
}

func (wp *WorkerPool) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), wp.taskTimeout)
	defer cancel()
	if err := task(ctx); err != nil { // run task
		slog.Warn("worker task failed", "error", err)
	}
}

// Submit queues t. It returns false when the pool is shutting down or the
// queue is full; the task is dropped in both cases.
func (wp *WorkerPool) Submit(t Task) (accepted bool) {
	if wp.isClosing.Load() {
		slog.Warn("task submitted during shutdown, dropping")
		return false
	}
	defer func() {
		// Shutdown may close the queue between the check above and the send.
		if recover() != nil {
			accepted = false
		}
	}()
	select {
	case wp.taskQueue <- t: // send task to worker pool
		return true
	default:
		slog.Warn("task queue full, dropping task")
		return false
	}
}

// Shutdown closes the queue and waits for workers to finish
func (wp *WorkerPool) Shutdown() {
	if !wp.isClosing.CompareAndSwap(false, true) {
		return
	}
	close(wp.taskQueue) // Stop accepting new tasks
	wp.wg.Wait()        // Wait for all active workers to finish tasks
}
