package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PoolMetrics provides metrics about the worker pool's performance
type PoolMetrics struct {
	TotalTasks         int64
	CompletedTasks     int64
	FailedTasks        int64
	CurrentWorkers     int64
	PeakWorkers        int64
	AverageExecutionMs int64
	TotalExecutionMs   int64
}

// Task represents a unit of work to be executed
type Task func(ctx context.Context) error

// Options configures a Pool
type Options struct {
	// MaxWorkers is the number of concurrent workers, at least 1
	MaxWorkers int
	// TaskTimeout bounds each task; zero means tasks run until they return
	TaskTimeout time.Duration
}

// Pool manages a pool of workers for executing tasks concurrently
type Pool struct {
	opts          Options
	tasks         chan Task
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	activeWorkers int64
	peakWorkers   int64
	stopping      int32 // Using atomic for thread-safe access

	mu               sync.Mutex
	totalTasks       int64
	completedTasks   int64
	failedTasks      int64
	totalExecutionMs int64
}

// NewPool creates a pool whose tasks are canceled when parent is
func NewPool(parent context.Context, opts Options) (*Pool, error) {
	if opts.MaxWorkers <= 0 {
		return nil, fmt.Errorf("maxWorkers must be greater than 0, got %d", opts.MaxWorkers)
	}
	if opts.TaskTimeout < 0 {
		return nil, fmt.Errorf("task timeout must not be negative, got %s", opts.TaskTimeout)
	}

	ctx, cancel := context.WithCancel(parent)
	return &Pool{
		opts:   opts,
		tasks:  make(chan Task), // Unbuffered so an accepted task is always run
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.opts.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop cancels running tasks and waits for the workers to exit
func (p *Pool) Stop() {
	if !atomic.CompareAndSwapInt32(&p.stopping, 0, 1) {
		return // Already stopping
	}

	p.cancel()
	p.wg.Wait()
}

// GetMetrics returns the current metrics for the pool
func (p *Pool) GetMetrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	completed := p.completedTasks + p.failedTasks
	if completed == 0 {
		completed = 1
	}
	return PoolMetrics{
		TotalTasks:         p.totalTasks,
		CompletedTasks:     p.completedTasks,
		FailedTasks:        p.failedTasks,
		CurrentWorkers:     atomic.LoadInt64(&p.activeWorkers),
		PeakWorkers:        atomic.LoadInt64(&p.peakWorkers),
		AverageExecutionMs: p.totalExecutionMs / completed,
		TotalExecutionMs:   p.totalExecutionMs,
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	current := atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	// Update peak workers count if needed
	for {
		peak := atomic.LoadInt64(&p.peakWorkers)
		if current <= peak || atomic.CompareAndSwapInt64(&p.peakWorkers, peak, current) {
			break
		}
	}

	for {
		select {
		case task := <-p.tasks:
			p.run(task)
		case <-p.ctx.Done():
			return
		}
	}
}

// run executes one task and records its outcome
func (p *Pool) run(task Task) {
	start := time.Now()

	taskCtx, cancel := p.ctx, context.CancelFunc(func() {})
	if p.opts.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(p.ctx, p.opts.TaskTimeout)
	}
	err := task(taskCtx)
	cancel()

	p.mu.Lock()
	p.totalExecutionMs += time.Since(start).Milliseconds()
	if err != nil {
		p.failedTasks++
	} else {
		p.completedTasks++
	}
	p.mu.Unlock()
}

// ExecuteTasks runs tasks concurrently and waits for all of them.
// The returned errors are index-aligned with tasks; a panicking task yields an error.
func (p *Pool) ExecuteTasks(tasks []Task) []error {
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	wg.Add(len(tasks))

	p.mu.Lock()
	p.totalTasks += int64(len(tasks))
	p.mu.Unlock()

	for i, task := range tasks {
		wrapped := func(ctx context.Context) (err error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task panicked: %v", r)
				}
				errs[i] = err
			}()
			return task(ctx)
		}

		select {
		case p.tasks <- wrapped:
		case <-p.ctx.Done():
			// Pool is shutting down; account for every task that never ran
			for j := i; j < len(tasks); j++ {
				errs[j] = p.ctx.Err()
				wg.Done()
			}
			wg.Wait()
			return errs
		}
	}

	wg.Wait()
	return errs
}
