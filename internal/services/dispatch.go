package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
)

// Dispatcher runs fire-and-forget work on a bounded pool. Submit never
// blocks the caller: when the queue is full the job runs on a dedicated
// goroutine instead, so accepted work is never dropped. Submit only
// refuses work once Shutdown has begun.
type Dispatcher interface {
	Submit(name string, job func(ctx context.Context)) bool
	Shutdown(ctx context.Context) error
}

type queuedJob struct {
	name string
	run  func(ctx context.Context)
}

type dispatcher struct {
	log     *logger.Logger
	queue   chan queuedJob
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(baseLog *logger.Logger, workers, queueSize int) Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &dispatcher{
		log:     baseLog.With("service", "Dispatcher"),
		queue:   make(chan queuedJob, queueSize),
		baseCtx: ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

func (d *dispatcher) worker(id int) {
	defer d.wg.Done()
	for job := range d.queue {
		d.runOne(id, job)
	}
}

func (d *dispatcher) runOne(id int, job queuedJob) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("background job panicked", "worker", id, "job", job.name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	start := time.Now()
	job.run(d.baseCtx)
	d.log.Debug("background job finished", "worker", id, "job", job.name, "elapsed", time.Since(start).String())
}

func (d *dispatcher) Submit(name string, job func(ctx context.Context)) bool {
	if job == nil {
		return false
	}

	// The mutex stays held across the send: Shutdown closes the queue
	// under the same lock, so the send can never hit a closed channel.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Warn("job submitted after shutdown", "job", name)
		return false
	}

	select {
	case d.queue <- queuedJob{name: name, run: job}:
		return true
	default:
	}

	// Queue full: spill onto a dedicated goroutine rather than dropping.
	// Shutdown waits for spilled jobs through the same WaitGroup.
	d.log.Warn("dispatch queue full, running job on overflow goroutine", "job", name)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runOne(-1, queuedJob{name: name, run: job})
	}()
	return true
}

// Shutdown stops accepting work, then waits for in-flight jobs until ctx
// expires. Queued-but-unstarted jobs still run.
func (d *dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
