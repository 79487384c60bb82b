package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
	"github.com/ternarybob/leadharvest/internal/services/browser/browsertest"
)

type hookCall struct {
	attempt   int
	willRetry bool
}

func recordHook(calls *[]hookCall, mu *sync.Mutex) ErrorHook {
	return func(task Task, attempt int, err error, willRetry bool) {
		mu.Lock()
		defer mu.Unlock()
		*calls = append(*calls, hookCall{attempt: attempt, willRetry: willRetry})
	}
}

func TestRun_RetryThenSuccess(t *testing.T) {
	launcher := &browsertest.FakeLauncher{}
	exec := NewExecutor(launcher, 2, arbor.NewLogger())

	var (
		calls []hookCall
		mu    sync.Mutex
	)
	result, err := exec.Run(context.Background(), Task{ID: "task_1"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			if attempt < 3 {
				return nil, models.ErrNavigationTimeout
			}
			return "ok", nil
		},
		Options{RetryLimit: 3, OnTaskError: recordHook(&calls, &mu)})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, []hookCall{{1, true}, {2, true}}, calls)
	assert.Equal(t, 1, launcher.Launched())
	assert.Equal(t, 0, launcher.Live())
}

func TestRun_AuthenticationNotRetried(t *testing.T) {
	var attempts atomic.Int32
	var (
		calls []hookCall
		mu    sync.Mutex
	)

	_, err := NewExecutor(&browsertest.FakeLauncher{}, 2, arbor.NewLogger()).Run(context.Background(), Task{ID: "t"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			attempts.Add(1)
			return nil, models.ErrAuthentication
		},
		Options{RetryLimit: 3, OnTaskError: recordHook(&calls, &mu)})

	assert.ErrorIs(t, err, models.ErrAuthentication)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, []hookCall{{1, false}}, calls)
}

func TestRun_RetriesExhausted(t *testing.T) {
	var (
		calls []hookCall
		mu    sync.Mutex
	)

	_, err := NewExecutor(&browsertest.FakeLauncher{}, 2, arbor.NewLogger()).Run(context.Background(), Task{ID: "t"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			return nil, errors.New("flaky")
		},
		Options{RetryLimit: 2, OnTaskError: recordHook(&calls, &mu)})

	assert.EqualError(t, err, "flaky")
	assert.Equal(t, []hookCall{{1, true}, {2, true}, {3, false}}, calls)
}

func TestRun_AttemptTimeout(t *testing.T) {
	launcher := &browsertest.FakeLauncher{}

	_, err := NewExecutor(launcher, 1, arbor.NewLogger()).Run(context.Background(), Task{ID: "slow"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Options{Timeout: 20 * time.Millisecond})

	assert.ErrorIs(t, err, models.ErrTaskTimeout)
	assert.Equal(t, 0, launcher.Live())
}

func TestRun_PanicRecovered(t *testing.T) {
	_, err := NewExecutor(&browsertest.FakeLauncher{}, 1, arbor.NewLogger()).Run(context.Background(), Task{ID: "p"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			panic("boom")
		},
		Options{})

	var panicErr *common.PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "boom", panicErr.Value)
}

func TestRun_LaunchFailure(t *testing.T) {
	launcher := &browsertest.FakeLauncher{LaunchErr: errors.New("no chrome")}

	_, err := NewExecutor(launcher, 1, arbor.NewLogger()).Run(context.Background(), Task{ID: "l"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			return "unreachable", nil
		},
		Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no chrome")
}

func TestRun_PoolBound(t *testing.T) {
	launcher := &browsertest.FakeLauncher{}
	exec := NewExecutor(launcher, 2, arbor.NewLogger())

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.Run(context.Background(), Task{ID: "bound"},
				func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
					time.Sleep(30 * time.Millisecond)
					return nil, nil
				},
				Options{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, launcher.Peak(), 2)
	assert.Equal(t, 0, launcher.Live())
	assert.Equal(t, 5, launcher.Launched())
}

func TestRun_PoolExhausted(t *testing.T) {
	exec := NewExecutor(&browsertest.FakeLauncher{}, 1, arbor.NewLogger())

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = exec.Run(context.Background(), Task{ID: "holder"},
			func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
				close(started)
				<-hold
				return nil, nil
			},
			Options{})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := exec.Run(ctx, Task{ID: "waiter"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			return nil, nil
		},
		Options{RetryLimit: 3})

	assert.ErrorIs(t, err, models.ErrPoolExhausted)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(models.ErrNavigationTimeout))
	assert.True(t, IsRetryable(models.ErrTaskTimeout))
	assert.True(t, IsRetryable(models.ErrPoolExhausted))
	assert.False(t, IsRetryable(models.ErrAuthentication))
	assert.False(t, IsRetryable(models.ErrActionPrecondition))
	assert.False(t, IsRetryable(fmt.Errorf("%w: %w", models.ErrSentUnconfirmed, models.ErrTaskTimeout)))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(&common.TasksConfig{Timeout: "1h", RetryLimit: 3, RetryDelay: "5s"})
	assert.Equal(t, time.Hour, opts.Timeout)
	assert.Equal(t, 3, opts.RetryLimit)
	assert.Equal(t, 5*time.Second, opts.RetryDelay)
}

func TestRun_RetryablePredicateOverridesDefault(t *testing.T) {
	var attempts atomic.Int32

	_, err := NewExecutor(&browsertest.FakeLauncher{}, 1, arbor.NewLogger()).Run(context.Background(), Task{ID: "t"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			attempts.Add(1)
			return nil, models.ErrNavigationTimeout
		},
		Options{RetryLimit: 3, Retryable: func(err error) bool { return false }})

	assert.ErrorIs(t, err, models.ErrNavigationTimeout)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRun_BrowserClosedDuringRetryDelay(t *testing.T) {
	launcher := &browsertest.FakeLauncher{}
	var runningAtRetry, launchedAtRetry int

	result, err := NewExecutor(launcher, 1, arbor.NewLogger()).Run(context.Background(), Task{ID: "t"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			if attempt == 1 {
				return nil, models.ErrNavigationTimeout
			}
			runningAtRetry = launcher.Running()
			launchedAtRetry = launcher.Launched()
			return "ok", nil
		},
		Options{RetryLimit: 1, RetryDelay: 30 * time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, launchedAtRetry, "relaunched after the delay")
	assert.Equal(t, 1, runningAtRetry, "first browser closed before the delay")
	assert.Equal(t, 0, launcher.Running())
}

func TestRun_BrowserReusedWithoutRetryDelay(t *testing.T) {
	launcher := &browsertest.FakeLauncher{}

	_, err := NewExecutor(launcher, 1, arbor.NewLogger()).Run(context.Background(), Task{ID: "t"},
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			if attempt == 1 {
				return nil, models.ErrNavigationTimeout
			}
			return "ok", nil
		},
		Options{RetryLimit: 1})

	require.NoError(t, err)
	assert.Equal(t, 1, launcher.Launched())
	assert.Equal(t, 0, launcher.Running())
}
