// Package executor runs browser tasks under a process-wide concurrency bound with
// per-attempt deadlines and retries.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// Task identifies the work being run
type Task struct {
	ID     string
	Kind   models.TaskKind
	LeadID string
}

// TaskFunc is one attempt of a task. page lives in a fresh browser context that is
// closed when the attempt ends; attempt starts at 1.
type TaskFunc func(ctx context.Context, page interfaces.Page, attempt int) (any, error)

// ErrorHook is called once per failed attempt
type ErrorHook func(task Task, attempt int, err error, willRetry bool)

// Options control one Run
type Options struct {
	Timeout     time.Duration // Per attempt; zero means no deadline
	RetryLimit  int           // Retries after the first attempt
	RetryDelay  time.Duration
	OnTaskError ErrorHook
	Retryable   func(err error) bool // Replaces IsRetryable when set
}

// OptionsFrom maps configuration to run options
func OptionsFrom(config *common.TasksConfig) Options {
	return Options{
		Timeout:    common.Duration(config.Timeout, time.Hour),
		RetryLimit: config.RetryLimit,
		RetryDelay: common.Duration(config.RetryDelay, 5*time.Second),
	}
}

// Executor bounds the number of live browser contexts across all runs
type Executor struct {
	launcher interfaces.BrowserLauncher
	sem      *semaphore.Weighted
	logger   arbor.ILogger
}

// NewExecutor creates an executor allowing maxConcurrency live contexts
func NewExecutor(launcher interfaces.BrowserLauncher, maxConcurrency int, logger arbor.ILogger) *Executor {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Executor{
		launcher: launcher,
		sem:      semaphore.NewWeighted(int64(maxConcurrency)),
		logger:   logger,
	}
}

// IsRetryable reports whether a failed attempt should be tried again
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, models.ErrAuthentication),
		errors.Is(err, models.ErrActionPrecondition),
		errors.Is(err, models.ErrSentUnconfirmed),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Run executes fn until it succeeds, fails with a non-retryable error or runs out of
// retries. The browser is launched on the first slot grant and closed when Run returns.
// With a retry delay it is also closed before each wait and relaunched for the next
// attempt, so a run holds a browser process only while it holds a slot.
func (e *Executor) Run(ctx context.Context, task Task, fn TaskFunc, opts Options) (any, error) {
	if opts.RetryLimit < 0 {
		opts.RetryLimit = 0
	}
	retryable := opts.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	browser := &lazyBrowser{launcher: e.launcher, logger: e.logger}
	defer browser.close()

	var lastErr error
	for attempt := 1; attempt <= opts.RetryLimit+1; attempt++ {
		result, err := e.attempt(ctx, browser, task, fn, attempt, opts.Timeout)
		if err == nil {
			if attempt > 1 {
				e.logger.Info().Str("task_id", task.ID).Int("attempt", attempt).Msg("Task succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		willRetry := attempt <= opts.RetryLimit && retryable(err) && ctx.Err() == nil
		e.logger.Warn().
			Str("task_id", task.ID).
			Str("kind", string(task.Kind)).
			Str("lead_id", task.LeadID).
			Int("attempt", attempt).
			Bool("will_retry", willRetry).
			Err(err).
			Msg("Task attempt failed")

		if opts.OnTaskError != nil {
			opts.OnTaskError(task, attempt, err, willRetry)
		}
		if !willRetry {
			break
		}

		if opts.RetryDelay > 0 {
			// No process is held while waiting out the delay
			browser.close()
		}
		if err := wait(ctx, opts.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

type outcome struct {
	value any
	err   error
}

func (e *Executor) attempt(ctx context.Context, browser *lazyBrowser, task Task, fn TaskFunc, attempt int, timeout time.Duration) (any, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrPoolExhausted, err)
	}
	defer e.sem.Release(1)

	b, err := browser.get(ctx)
	if err != nil {
		return nil, err
	}

	attemptCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	page, release, err := b.NewPage(attemptCtx)
	if err != nil {
		return nil, fmt.Errorf("open browser context: %w", err)
	}
	defer release()

	e.logger.Debug().
		Str("task_id", task.ID).
		Int("attempt", attempt).
		Int("live_contexts", b.LiveContexts()).
		Msg("Attempt started")

	done := make(chan outcome, 1)
	go func() {
		var value any
		err := common.RecoverAsError(func() error {
			var err error
			value, err = fn(attemptCtx, page, attempt)
			return err
		})
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s after %s: %w", models.ErrTaskTimeout, task.ID, timeout, out.err)
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The context is torn down by release; the attempt goroutine exits on its own
		return nil, fmt.Errorf("%w: %s after %s", models.ErrTaskTimeout, task.ID, timeout)
	}
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// lazyBrowser launches on first use so a run waiting for a slot holds no process
type lazyBrowser struct {
	launcher interfaces.BrowserLauncher
	logger   arbor.ILogger
	mu       sync.Mutex
	browser  interfaces.Browser
}

func (l *lazyBrowser) get(ctx context.Context) (interfaces.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		return l.browser, nil
	}
	b, err := l.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	l.browser = b
	return b, nil
}

func (l *lazyBrowser) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser == nil {
		return
	}
	if err := l.browser.Close(); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to close browser")
	}
	l.browser = nil
}
