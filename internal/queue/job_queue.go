// Package queue admits lead tasks in submission order and tracks their lifecycle.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// RunFunc performs a job. taskID is the id handed back by Submit.
type RunFunc func(ctx context.Context, taskID string) (any, error)

// Job is a unit of work submitted to the queue
type Job struct {
	Kind   models.TaskKind
	LeadID string
	Run    RunFunc
}

type entry struct {
	id    string
	job   Job
	done  chan struct{}
	value any
	err   error
}

// JobQueue starts jobs in FIFO order from a single dispatcher. It does not bound how
// many jobs run at once; that is the executor's concern.
type JobQueue struct {
	storage interfaces.TaskStorage
	logger  arbor.ILogger

	mu      sync.Mutex
	pending []*entry
	entries map[string]*entry
	started bool
	stopped bool
	notify  chan struct{}
	quit    chan struct{}
	onStart func(taskID string) // observes dispatch order

	retention time.Duration // finished entries are forgotten after this

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	done     chan struct{}
}

// Option configures a JobQueue
type Option func(*JobQueue)

// WithRetention sets how long a finished task's result stays available to Wait when
// nobody has collected it. Non-positive values keep the default.
func WithRetention(d time.Duration) Option {
	return func(q *JobQueue) {
		if d > 0 {
			q.retention = d
		}
	}
}

// NewJobQueue creates a queue. Call Start to begin dispatching.
func NewJobQueue(storage interfaces.TaskStorage, logger arbor.ILogger, opts ...Option) *JobQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &JobQueue{
		storage:   storage,
		logger:    logger,
		entries:   make(map[string]*entry),
		notify:    make(chan struct{}, 1),
		quit:      make(chan struct{}),
		retention: 10 * time.Minute,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the dispatcher
func (q *JobQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	common.SafeGo(q.logger, "jobQueueDispatcher", q.dispatch)
	q.logger.Debug().Msg("Job queue dispatcher started")
}

// Submit records the job as queued and returns its task id without waiting for it
// to start
func (q *JobQueue) Submit(ctx context.Context, job Job) (string, error) {
	if job.Run == nil {
		return "", errors.New("job has no run function")
	}

	e := &entry{
		id:   common.NewTaskID(),
		job:  job,
		done: make(chan struct{}),
	}

	now := time.Now()
	record := &models.TaskRecord{
		ID:        e.id,
		Kind:      job.Kind,
		LeadID:    job.LeadID,
		Status:    models.TaskStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return "", models.ErrQueueStopped
	}
	if err := q.storage.SaveTask(ctx, record); err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}
	q.pending = append(q.pending, e)
	q.entries[e.id] = e

	select {
	case q.notify <- struct{}{}:
	default:
	}

	q.logger.Debug().
		Str("task_id", e.id).
		Str("kind", string(job.Kind)).
		Str("lead_id", job.LeadID).
		Int("pending", len(q.pending)).
		Msg("Task queued")
	return e.id, nil
}

func (q *JobQueue) dispatch() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		case <-q.notify:
		}

		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			e := q.pending[0]
			q.pending = q.pending[1:]
			q.inflight.Add(1)
			q.mu.Unlock()

			q.start(e)
		}
	}
}

func (q *JobQueue) start(e *entry) {
	q.update(e.id, func(r *models.TaskRecord) {
		r.Status = models.TaskStatusRunning
	})
	if q.onStart != nil {
		q.onStart(e.id)
	}

	common.SafeGo(q.logger, "task:"+e.id, func() {
		defer q.inflight.Done()

		e.err = common.RecoverAsError(func() error {
			value, err := e.job.Run(q.ctx, e.id)
			e.value = value
			return err
		})
		q.finish(e)
		q.settle(e)
	})
}

// settle publishes the result to waiters and schedules the entry to be forgotten
// if nobody collects it
func (q *JobQueue) settle(e *entry) {
	close(e.done)
	time.AfterFunc(q.retention, func() {
		if q.forget(e) {
			q.logger.Debug().Str("task_id", e.id).Msg("Uncollected task result released")
		}
	})
}

// forget drops the entry, reporting whether it was still held
func (q *JobQueue) forget(e *entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries[e.id] != e {
		return false
	}
	delete(q.entries, e.id)
	return true
}

func (q *JobQueue) finish(e *entry) {
	q.update(e.id, func(r *models.TaskRecord) {
		now := time.Now()
		r.FinishedAt = &now
		if r.Attempts == 0 {
			r.Attempts = 1
		}
		if e.err != nil {
			r.Status = models.TaskStatusFailed
			r.Error = e.err.Error()
		} else {
			r.Status = models.TaskStatusSucceeded
			r.Error = ""
		}
	})

	if e.err != nil {
		q.logger.Warn().Str("task_id", e.id).Err(e.err).Msg("Task failed")
	} else {
		q.logger.Info().Str("task_id", e.id).Str("kind", string(e.job.Kind)).Msg("Task succeeded")
	}
}

// BeginAttempt marks the task running its attempt-th attempt
func (q *JobQueue) BeginAttempt(taskID string, attempt int) {
	q.update(taskID, func(r *models.TaskRecord) {
		r.Status = models.TaskStatusRunning
		r.Attempts = attempt
	})
}

// RecordFailure notes a failed attempt on the task record, moving it to retrying when
// another attempt follows
func (q *JobQueue) RecordFailure(taskID string, attempt int, err error, willRetry bool) {
	q.update(taskID, func(r *models.TaskRecord) {
		r.Attempts = attempt
		if err != nil {
			r.Error = err.Error()
		}
		if willRetry {
			r.Status = models.TaskStatusRetrying
		}
	})
}

// update applies fn to the stored record. Storage failures are logged; they never
// fail the task.
func (q *JobQueue) update(taskID string, fn func(r *models.TaskRecord)) {
	ctx := context.Background()
	record, err := q.storage.GetTask(ctx, taskID)
	if err != nil {
		q.logger.Warn().Str("task_id", taskID).Err(err).Msg("Failed to load task record")
		return
	}
	fn(record)
	record.UpdatedAt = time.Now()
	if err := q.storage.SaveTask(ctx, record); err != nil {
		q.logger.Warn().Str("task_id", taskID).Err(err).Msg("Failed to save task record")
	}
}

// Wait blocks until the task finishes and returns its result. The result is released
// once collected; later calls report the outcome from the stored record only.
func (q *JobQueue) Wait(ctx context.Context, taskID string) (any, error) {
	q.mu.Lock()
	e, ok := q.entries[taskID]
	q.mu.Unlock()
	if !ok {
		return nil, q.released(ctx, taskID)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		q.forget(e)
		return e.value, e.err
	}
}

// released describes a task whose in-memory result is gone
func (q *JobQueue) released(ctx context.Context, taskID string) error {
	record, err := q.storage.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", models.ErrTaskNotFound, taskID, err)
	}
	switch record.Status {
	case models.TaskStatusSucceeded:
		return fmt.Errorf("%w: %s", models.ErrResultReleased, taskID)
	case models.TaskStatusFailed:
		return fmt.Errorf("task %s failed: %s", taskID, record.Error)
	default:
		// A live record with no entry was left by an earlier process
		return fmt.Errorf("%w: %s is %s but not held by this queue", models.ErrTaskNotFound, taskID, record.Status)
	}
}

// Status returns the persisted lifecycle record of a task
func (q *JobQueue) Status(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	return q.storage.GetTask(ctx, taskID)
}

// Stop refuses new jobs and stops the dispatcher, then waits for in-flight jobs to
// finish. Jobs that never started are marked failed.
func (q *JobQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	started := q.started
	q.mu.Unlock()

	q.logger.Info().Msg("Stopping job queue...")
	close(q.quit)
	if started {
		<-q.done
	}

	q.mu.Lock()
	abandoned := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, e := range abandoned {
		e.err = models.ErrQueueStopped
		q.finish(e)
		q.settle(e)
	}

	q.inflight.Wait()
	q.cancel()
	q.logger.Info().Msg("Job queue stopped")
}
