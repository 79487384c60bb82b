package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// TaskStorage implements interfaces.TaskStorage on badgerhold
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) SaveTask(ctx context.Context, task *models.TaskRecord) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}

	s.logger.Trace().
		Str("task_id", task.ID).
		Str("status", string(task.Status)).
		Int("attempts", task.Attempts).
		Msg("Saving task record")

	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

func (s *TaskStorage) GetTask(ctx context.Context, id string) (*models.TaskRecord, error) {
	var task models.TaskRecord
	if err := s.db.Store().Get(id, &task); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return &task, nil
}

// ListTasks returns records newest first. An empty status matches every record; limit <= 0 means no limit.
func (s *TaskStorage) ListTasks(ctx context.Context, status models.TaskStatus, limit int) ([]*models.TaskRecord, error) {
	var tasks []models.TaskRecord

	var query *badgerhold.Query // nil selects all
	if status != "" {
		query = badgerhold.Where("Status").Eq(status)
	}

	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}

	result := make([]*models.TaskRecord, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

func (s *TaskStorage) DeleteTask(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.TaskRecord{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

func (s *TaskStorage) Close() error {
	return s.db.Close()
}
