package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arunvm123/campsite/config"
)

const shutdownTimeout = 30 * time.Second

// Task is a unit of fire-and-forget background work.
type Task struct {
	Name string
	Fn   func(ctx context.Context)
}

// Pool runs background tasks on a fixed set of workers fed from a bounded
// queue. Tasks never see the submitter's context: each one runs under the
// pool's context with its own timeout, so they outlive the request that
// queued them.
type Pool struct {
	queue       chan Task
	taskTimeout time.Duration
	log         *slog.Logger

	// Worker pool for managing goroutines
	workerPool chan chan Task
	workers    []*poolWorker
	wg         sync.WaitGroup

	baseCtx context.Context

	// Metrics
	processedCount int64
	activeWorkers  int64
	droppedCount   int64
}

type poolWorker struct {
	id         int
	pool       *Pool
	jobChannel chan Task
	workerPool chan chan Task
	quit       chan struct{}
}

// Stats is a point-in-time snapshot of the pool counters.
type Stats struct {
	Processed int64
	Active    int64
	Dropped   int64
	Queued    int
}

func NewPool(cfg config.Worker, log *slog.Logger) *Pool {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	taskTimeout := cfg.TaskTimeout()
	if taskTimeout <= 0 {
		taskTimeout = 10 * time.Second
	}

	pool := &Pool{
		queue:       make(chan Task, queueSize),
		taskTimeout: taskTimeout,
		log:         log.With("component", "worker_pool"),
		workerPool:  make(chan chan Task, maxWorkers),
		workers:     make([]*poolWorker, maxWorkers),
		baseCtx:     context.Background(),
	}

	for i := 0; i < maxWorkers; i++ {
		pool.workers[i] = &poolWorker{
			id:         i,
			pool:       pool,
			jobChannel: make(chan Task),
			workerPool: pool.workerPool,
			quit:       make(chan struct{}),
		}
	}

	return pool
}

// Submit queues fn without blocking. It returns false and drops the task
// when the queue is full.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) bool {
	select {
	case p.queue <- Task{Name: name, Fn: fn}:
		return true
	default:
		atomic.AddInt64(&p.droppedCount, 1)
		p.log.Warn("task queue full, dropping task", "task", name)
		return false
	}
}

// Start dispatches queued tasks until ctx is canceled, then drains what is
// left in the queue and stops the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.log.Info("starting worker pool", "workers", len(p.workers), "queue_size", cap(p.queue))

	// Tasks keep running to completion during shutdown
	p.baseCtx = context.WithoutCancel(ctx)

	for _, w := range p.workers {
		w.start()
	}

	go p.reportMetrics(ctx)

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return nil
		case task := <-p.queue:
			// Blocks until a worker is free
			jobChannel := <-p.workerPool
			jobChannel <- task
		}
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Processed: atomic.LoadInt64(&p.processedCount),
		Active:    atomic.LoadInt64(&p.activeWorkers),
		Dropped:   atomic.LoadInt64(&p.droppedCount),
		Queued:    len(p.queue),
	}
}

func (w *poolWorker) start() {
	w.pool.wg.Add(1)
	go func() {
		defer w.pool.wg.Done()
		for {
			// Register this worker in the pool
			w.workerPool <- w.jobChannel

			select {
			case task := <-w.jobChannel:
				w.pool.run(w.id, task)
			case <-w.quit:
				return
			}
		}
	}()
}

func (p *Pool) run(workerID int, task Task) {
	atomic.AddInt64(&p.activeWorkers, 1)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked", "task", task.Name, "worker", workerID, "panic", r)
		}
		atomic.AddInt64(&p.processedCount, 1)
		atomic.AddInt64(&p.activeWorkers, -1)
	}()

	ctx, cancel := context.WithTimeout(p.baseCtx, p.taskTimeout)
	defer cancel()

	task.Fn(ctx)
}

// shutdown drains the queue and stops all workers
func (p *Pool) shutdown() {
	p.log.Info("shutting down worker pool", "queued", len(p.queue))

	timeout := time.After(shutdownTimeout)

drain:
	for {
		select {
		case task := <-p.queue:
			select {
			case jobChannel := <-p.workerPool:
				jobChannel <- task
			case <-timeout:
				p.log.Warn("shutdown timeout reached, abandoning queued tasks", "queued", len(p.queue)+1)
				break drain
			}
		default:
			break drain
		}
	}

	for _, w := range p.workers {
		close(w.quit)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("all workers finished gracefully", "processed", atomic.LoadInt64(&p.processedCount))
	case <-timeout:
		p.log.Warn("shutdown timeout reached, forcing exit", "active", atomic.LoadInt64(&p.activeWorkers))
	}
}

// reportMetrics logs pool counters
func (p *Pool) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Stats()
			p.log.Info("worker pool metrics",
				"processed", s.Processed, "active", s.Active, "dropped", s.Dropped, "queued", s.Queued)
		}
	}
}
