package jobpool

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is one unit of execution work bound to an instance. All tasks of the
// same instance land on the same worker, so sends for one instance never run
// concurrently.
type Task struct {
	InstanceID string
	JobID      string
	Handler    func(ctx context.Context) error
}

// PoolStats is the monitoring snapshot exposed over the REST surface.
type PoolStats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	WorkerStats     []WorkerStats  `json:"worker_stats"`
	ActiveInstances map[string]int `json:"active_instances"` // instanceID -> worker_id
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

type activeEntry struct {
	workerID  int
	updatedAt time.Time
}

// Pool shards execution tasks across a fixed set of workers by instance id.
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32
	stopCh     chan struct{}

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64

	activeMu        sync.RWMutex
	activeInstances map[string]activeEntry
}

type worker struct {
	id            int
	tasks         chan Task
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *Pool
}

func New(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 6
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		numWorkers:      numWorkers,
		queueSize:       queueSize,
		workers:         make([]*worker, numWorkers),
		activeInstances: make(map[string]activeEntry),
		stopCh:          make(chan struct{}),
	}
}

// Start spins up the workers plus a janitor that expires stale
// active-instance entries.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				now := time.Now()
				p.activeMu.Lock()
				for k, v := range p.activeInstances {
					if now.Sub(v.updatedAt) > 2*time.Second {
						delete(p.activeInstances, k)
					}
				}
				p.activeMu.Unlock()
			}
		}
	}()

	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:     i,
			tasks:  make(chan Task, p.queueSize),
			ctx:    workerCtx,
			cancel: cancel,
			pool:   p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[JOB_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch routes the task to its instance's worker without blocking and
// reports whether it was queued. A false return is backpressure, not an
// error.
func (p *Pool) TryDispatch(task Task) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardFor(task.InstanceID)
	atomic.AddInt64(&p.totalDispatched, 1)

	p.activeMu.Lock()
	p.activeInstances[task.InstanceID] = activeEntry{workerID: shard, updatedAt: time.Now()}
	p.activeMu.Unlock()

	sent := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].tasks <- task:
			return true
		default:
			return false
		}
	}()

	if sent {
		return true
	}

	p.activeMu.Lock()
	delete(p.activeInstances, task.InstanceID)
	p.activeMu.Unlock()

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[JOB_POOL] Worker %d queue full (or stopped), dropping task for %s", shard, task.InstanceID)
	return false
}

// Dispatch is TryDispatch with the result discarded.
func (p *Pool) Dispatch(task Task) {
	_ = p.TryDispatch(task)
}

// Stop shuts the pool down gracefully, draining queued tasks first.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		close(p.stopCh)
		logrus.Info("[JOB_POOL] Stopping workers...")

		for _, w := range p.workers {
			w.cancel()
			close(w.tasks)
		}
		p.wg.Wait()

		logrus.Info("[JOB_POOL] All workers stopped")
	})
}

func (p *Pool) shardFor(instanceID string) int {
	h := fnv.New32a()
	h.Write([]byte(instanceID))
	return int(h.Sum32() % uint32(p.numWorkers))
}

// GetStats returns a point-in-time snapshot of the pool.
func (p *Pool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, len(p.workers))
	activeWorkers := 0

	for i, w := range p.workers {
		isProcessing := atomic.LoadInt32(&w.isProcessing) == 1
		if isProcessing {
			activeWorkers++
		}
		workerStats[i] = WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.tasks),
			IsProcessing:  isProcessing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		}
	}

	now := time.Now()
	p.activeMu.Lock()
	active := make(map[string]int, len(p.activeInstances))
	for k, v := range p.activeInstances {
		if now.Sub(v.updatedAt) > 2*time.Second {
			delete(p.activeInstances, k)
			continue
		}
		active[k] = v.workerID
	}
	p.activeMu.Unlock()

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		WorkerStats:     workerStats,
		ActiveInstances: active,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	logrus.Debugf("[JOB_POOL] Worker %d started", w.id)

	for {
		select {
		case task, ok := <-w.tasks:
			if !ok {
				logrus.Debugf("[JOB_POOL] Worker %d shutting down", w.id)
				return
			}
			w.process(task)

		case <-w.ctx.Done():
			logrus.Debugf("[JOB_POOL] Worker %d context cancelled, draining queue...", w.id)
			w.drain()
			return
		}
	}
}

func (w *worker) process(task Task) {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[JOB_POOL] Worker %d panic for %s: %v", w.id, task.InstanceID, r)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	if err := task.Handler(w.ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[JOB_POOL] Worker %d task failed for %s (job %s)",
			w.id, task.InstanceID, task.JobID)
	}
}

// drain runs whatever is still queued before shutdown.
func (w *worker) drain() {
	for {
		select {
		case task, ok := <-w.tasks:
			if !ok {
				return
			}
			w.process(task)
		default:
			return
		}
	}
}
