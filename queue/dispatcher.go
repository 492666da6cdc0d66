// Package queue is the background job dispatcher. Each named queue runs a
// worker pool that grows with the number of queued jobs up to a per-queue
// ceiling and shrinks back to zero when the queue is empty.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"admsserver/logger"
	"admsserver/metrics"
)

// DefaultQueue is used when Enqueue is given no queue name.
const DefaultQueue = "default"

var ErrUnknownJobType = errors.New("unknown job type")

// Handler processes one job payload.
type Handler func(ctx context.Context, payload []byte) error

// Enqueuer is the part of the dispatcher producers depend on.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, queueName string) error
}

// Job is one unit of background work.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Options configure a Dispatcher.
type Options struct {
	MaxWorkers   int
	MaxAttempts  int
	RetryBackoff time.Duration
	Spool        *Spool
}

type workerQueue struct {
	name    string
	max     int
	jobs    []Job
	workers int
}

// Dispatcher runs registered handlers on named queues.
type Dispatcher struct {
	opts Options

	mu       sync.Mutex
	idle     *sync.Cond
	handlers map[string]Handler
	queues   map[string]*workerQueue
	inflight int
	started  bool
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Enqueuer = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. Jobs are queued but not run until
// Start is called.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	d := &Dispatcher{
		opts:     opts,
		handlers: make(map[string]Handler),
		queues:   make(map[string]*workerQueue),
	}
	d.idle = sync.NewCond(&d.mu)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Register binds a handler to a job type.
func (d *Dispatcher) Register(jobType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = h
}

// ConfigureQueue sets the worker ceiling of a queue.
func (d *Dispatcher) ConfigureQueue(name string, maxWorkers int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queue(name)
	if maxWorkers > 0 {
		q.max = maxWorkers
	}
}

func (d *Dispatcher) queue(name string) *workerQueue {
	q, ok := d.queues[name]
	if !ok {
		q = &workerQueue{name: name, max: d.opts.MaxWorkers}
		d.queues[name] = q
	}
	return q
}

// Start begins processing, first requeueing jobs left in the spool.
func (d *Dispatcher) Start() error {
	var recovered []Job
	if d.opts.Spool != nil {
		jobs, err := d.opts.Spool.Pending()
		if err != nil {
			return fmt.Errorf("failed to read job spool: %w", err)
		}
		recovered = jobs
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	for _, job := range recovered {
		d.push(job)
	}
	if len(recovered) > 0 {
		logger.Info("Recovered %d spooled jobs", len(recovered))
	}
	for _, q := range d.queues {
		d.grow(q)
	}
	return nil
}

// Enqueue queues a job. payload is JSON-encoded unless it already is raw
// bytes.
func (d *Dispatcher) Enqueue(ctx context.Context, jobType string, payload any, queueName string) error {
	if queueName == "" {
		queueName = DefaultQueue
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	job := Job{
		ID:         id.String(),
		Type:       jobType,
		Queue:      queueName,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}

	if d.opts.Spool != nil {
		if err := d.opts.Spool.Save(job); err != nil {
			logger.WithFields(map[string]interface{}{
				"job_type": jobType,
				"error":    err.Error(),
			}).Warn("Job spool write failed")
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return errors.New("dispatcher stopped")
	}
	d.push(job)
	return nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.Marshal(string(p))
	default:
		return json.Marshal(p)
	}
}

// push must be called with mu held.
func (d *Dispatcher) push(job Job) {
	q := d.queue(job.Queue)
	q.jobs = append(q.jobs, job)
	d.inflight++
	metrics.QueueDepth.WithLabelValues(q.name).Inc()
	if d.started {
		d.grow(q)
	}
}

// grow must be called with mu held.
func (d *Dispatcher) grow(q *workerQueue) {
	for q.workers < q.max && q.workers < len(q.jobs) {
		q.workers++
		d.wg.Add(1)
		go d.work(q)
	}
}

func (d *Dispatcher) work(q *workerQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.jobs) == 0 || d.stopped {
			q.workers--
			d.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		h := d.handlers[job.Type]
		d.mu.Unlock()

		d.run(job, h)
	}
}

func (d *Dispatcher) run(job Job, h Handler) {
	fields := map[string]interface{}{
		"job_id":   job.ID,
		"job_type": job.Type,
		"queue":    job.Queue,
	}
	if h == nil {
		logger.WithFields(fields).Error("No handler registered for job")
		d.finish(job, ErrUnknownJobType, false)
		return
	}

	start := time.Now()
	err := safeCall(d.ctx, h, job.Payload)
	metrics.JobDuration.WithLabelValues(job.Queue, job.Type).Observe(time.Since(start).Seconds())
	if err == nil {
		d.finish(job, nil, false)
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	fields["attempt"] = job.Attempts
	fields["error"] = err.Error()
	if job.Attempts < d.opts.MaxAttempts && d.ctx.Err() == nil {
		delay := d.opts.RetryBackoff << (job.Attempts - 1)
		logger.WithFields(fields).Warn("Job failed, retrying in %s", delay)
		metrics.JobsTotal.WithLabelValues(job.Queue, job.Type, "retry").Inc()
		time.AfterFunc(delay, func() { d.retry(job) })
		return
	}
	logger.WithFields(fields).Error("Job failed permanently")
	d.finish(job, err, true)
}

func safeCall(ctx context.Context, h Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}

func (d *Dispatcher) retry(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queue(job.Queue)
	q.jobs = append(q.jobs, job)
	if d.started && !d.stopped {
		d.grow(q)
	}
}

func (d *Dispatcher) finish(job Job, err error, failed bool) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.JobsTotal.WithLabelValues(job.Queue, job.Type, status).Inc()

	if d.opts.Spool != nil {
		var serr error
		if failed {
			serr = d.opts.Spool.Fail(job)
		} else {
			serr = d.opts.Spool.Remove(job.ID)
		}
		if serr != nil {
			logger.WithFields(map[string]interface{}{
				"job_id": job.ID,
				"error":  serr.Error(),
			}).Warn("Job spool update failed")
		}
	}

	d.mu.Lock()
	d.inflight--
	metrics.QueueDepth.WithLabelValues(job.Queue).Dec()
	if d.inflight == 0 {
		d.idle.Broadcast()
	}
	d.mu.Unlock()
}

// Pending returns the number of queued or running jobs, including jobs
// waiting for a retry.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight
}

// Drain blocks until every queued job, retries included, has finished.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.mu.Lock()
		for d.inflight > 0 && !d.stopped {
			d.idle.Wait()
		}
		d.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting jobs and waits for running jobs to return. Queued
// jobs stay in the spool for the next start.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.idle.Broadcast()
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
