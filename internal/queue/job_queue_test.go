package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/models"
	"github.com/ternarybob/leadharvest/internal/storage/badger"
)

func newTestQueue(t *testing.T, opts ...Option) *JobQueue {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	storage := badger.NewTaskStorage(db, logger)
	t.Cleanup(func() { storage.Close() })
	return NewJobQueue(storage, logger, opts...)
}

func constJob(value any, err error) Job {
	return Job{
		Kind:   models.TaskKindGetLead,
		LeadID: "1",
		Run: func(ctx context.Context, taskID string) (any, error) {
			return value, err
		},
	}
}

func TestSubmit_ReturnsBeforeRunning(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Submit(ctx, constJob("x", nil))
	require.NoError(t, err)
	assert.Regexp(t, `^task_`, id)

	record, err := q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusQueued, record.Status)
	assert.Equal(t, "1", record.LeadID)

	q.Start()
	defer q.Stop()

	value, err := q.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "x", value)

	record, err = q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSucceeded, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.NotNil(t, record.FinishedAt)
}

func TestDispatch_FIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []string
	)
	q.onStart = func(id string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, id)
	}

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := q.Submit(ctx, constJob(i, nil))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	q.Start()
	defer q.Stop()
	for i, id := range ids {
		value, err := q.Wait(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i, value)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, order)
}

func TestJobFailure(t *testing.T) {
	q := newTestQueue(t)
	q.Start()
	defer q.Stop()
	ctx := context.Background()

	id, err := q.Submit(ctx, constJob(nil, models.ErrAuthentication))
	require.NoError(t, err)

	_, err = q.Wait(ctx, id)
	assert.ErrorIs(t, err, models.ErrAuthentication)

	record, err := q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, record.Status)
	assert.Contains(t, record.Error, "authentication failed")
}

func TestJobPanicFailsTask(t *testing.T) {
	q := newTestQueue(t)
	q.Start()
	defer q.Stop()
	ctx := context.Background()

	id, err := q.Submit(ctx, Job{Kind: models.TaskKindGetLead, Run: func(context.Context, string) (any, error) {
		panic("boom")
	}})
	require.NoError(t, err)

	_, err = q.Wait(ctx, id)
	var panicErr *common.PanicError
	assert.True(t, errors.As(err, &panicErr))
}

func TestRecordFailure_MarksRetrying(t *testing.T) {
	q := newTestQueue(t)
	q.Start()
	defer q.Stop()
	ctx := context.Background()

	observed := make(chan models.TaskStatus, 1)
	id, err := q.Submit(ctx, Job{Kind: models.TaskKindSendMessage, Run: func(ctx context.Context, taskID string) (any, error) {
		q.BeginAttempt(taskID, 1)
		q.RecordFailure(taskID, 1, models.ErrNavigationTimeout, true)
		record, err := q.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		observed <- record.Status
		q.BeginAttempt(taskID, 2)
		return "sent", nil
	}})
	require.NoError(t, err)

	_, err = q.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRetrying, <-observed)

	record, err := q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSucceeded, record.Status)
	assert.Equal(t, 2, record.Attempts)
	assert.Empty(t, record.Error)
}

func TestStop_DrainsInFlight(t *testing.T) {
	q := newTestQueue(t)
	q.Start()
	ctx := context.Background()

	started := make(chan struct{})
	finished := false
	id, err := q.Submit(ctx, Job{Kind: models.TaskKindGetLead, Run: func(ctx context.Context, taskID string) (any, error) {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished = true
		return nil, nil
	}})
	require.NoError(t, err)

	<-started
	q.Stop()
	assert.True(t, finished)

	_, err = q.Wait(ctx, id)
	assert.NoError(t, err)

	_, err = q.Submit(ctx, constJob(nil, nil))
	assert.ErrorIs(t, err, models.ErrQueueStopped)
}

func TestStop_FailsPendingWhenNeverStarted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Submit(ctx, constJob(nil, nil))
	require.NoError(t, err)
	q.Stop()

	_, err = q.Wait(ctx, id)
	assert.ErrorIs(t, err, models.ErrQueueStopped)
}

func TestWait_UnknownTask(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Wait(context.Background(), "task_missing")
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestSubmit_RequiresRun(t *testing.T) {
	_, err := newTestQueue(t).Submit(context.Background(), Job{Kind: models.TaskKindGetLead})
	assert.Error(t, err)
}

func heldEntries(q *JobQueue) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func TestWait_ReleasesCollectedResults(t *testing.T) {
	q := newTestQueue(t)
	q.Start()
	defer q.Stop()
	ctx := context.Background()

	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		id, err := q.Submit(ctx, constJob(i, nil))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i, id := range ids {
		value, err := q.Wait(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i, value)
	}

	assert.Equal(t, 0, heldEntries(q))

	_, err := q.Wait(ctx, ids[0])
	assert.ErrorIs(t, err, models.ErrResultReleased)

	record, err := q.Status(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSucceeded, record.Status, "record outlives the released result")
}

func TestRetention_ForgetsUncollectedResults(t *testing.T) {
	q := newTestQueue(t, WithRetention(50*time.Millisecond))
	q.Start()
	defer q.Stop()
	ctx := context.Background()

	okID, err := q.Submit(ctx, constJob("x", nil))
	require.NoError(t, err)
	failID, err := q.Submit(ctx, constJob(nil, models.ErrAuthentication))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return heldEntries(q) == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = q.Wait(ctx, okID)
	assert.ErrorIs(t, err, models.ErrResultReleased)

	_, err = q.Wait(ctx, failID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestRetention_AbandonedTasksAreForgotten(t *testing.T) {
	q := newTestQueue(t, WithRetention(20*time.Millisecond))
	ctx := context.Background()

	_, err := q.Submit(ctx, constJob(nil, nil))
	require.NoError(t, err)
	q.Stop()

	assert.Eventually(t, func() bool { return heldEntries(q) == 0 }, 2*time.Second, 10*time.Millisecond)
}
