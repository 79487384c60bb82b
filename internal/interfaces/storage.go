package interfaces

import (
	"context"

	"github.com/ternarybob/leadharvest/internal/models"
)

// CookieStore persists the browser cookie jar between tasks
type CookieStore interface {
	// Load returns the stored cookies. A jar written for a different login is
	// discarded and an empty result returned.
	Load(ctx context.Context) ([]models.Cookie, error)
	Save(ctx context.Context, cookies []models.Cookie) error
	Clear(ctx context.Context) error
}

// TaskStorage persists task lifecycle records
type TaskStorage interface {
	SaveTask(ctx context.Context, task *models.TaskRecord) error
	GetTask(ctx context.Context, id string) (*models.TaskRecord, error)
	ListTasks(ctx context.Context, status models.TaskStatus, limit int) ([]*models.TaskRecord, error)
	DeleteTask(ctx context.Context, id string) error
	Close() error
}
