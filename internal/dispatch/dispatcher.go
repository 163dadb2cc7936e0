// Package dispatch runs update handling sequentially per user while
// different users proceed concurrently.
package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/gpt-vpn-tgbot-go/internal/middleware"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("dispatcher closed")

// Job handles one update
type Job func(ctx context.Context)

type queue struct {
	jobs []Job
}

// Dispatcher keeps one FIFO queue and one worker goroutine per active user.
// A worker exits as soon as its queue drains.
type Dispatcher struct {
	ctx     context.Context
	metrics *middleware.Metrics
	logger  *logrus.Logger

	mu     sync.Mutex
	queues map[int64]*queue
	closed bool
	wg     sync.WaitGroup
}

// New creates a dispatcher whose jobs run with ctx
func New(ctx context.Context, metrics *middleware.Metrics, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		metrics: metrics,
		logger:  logger,
		queues:  make(map[int64]*queue),
	}
}

// Submit enqueues job behind every earlier job of the same user
func (d *Dispatcher) Submit(userID int64, job Job) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	q, ok := d.queues[userID]
	if !ok {
		q = &queue{}
		d.queues[userID] = q
		d.wg.Add(1)
		go d.run(userID, q)
	}
	q.jobs = append(q.jobs, job)
	active := len(d.queues)
	d.mu.Unlock()

	d.metrics.SetActiveUsers(float64(active))
	return nil
}

func (d *Dispatcher) run(userID int64, q *queue) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(q.jobs) == 0 {
			delete(d.queues, userID)
			active := len(d.queues)
			d.mu.Unlock()
			d.metrics.SetActiveUsers(float64(active))
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		d.mu.Unlock()

		d.execute(userID, job)
	}
}

func (d *Dispatcher) execute(userID int64, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"user_id": userID,
				"panic":   r,
				"stack":   string(debug.Stack()),
			}).Error("Update handler panicked")
		}
	}()
	job(d.ctx)
}

// Active returns the number of users with queued or running jobs
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close rejects new jobs and waits for queued ones to finish or ctx to end
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
