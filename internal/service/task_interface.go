package service

import (
	"context"
	"simpleTask/internal/models/task"

	"github.com/google/uuid"
)

type TaskRepository interface {
	Create(context.Context, *task.Task) error
	GetByID(context.Context, uuid.UUID) (*task.Task, error)
	Fetch(context.Context, task.Query) ([]*task.Task, error)
	Save(context.Context, *task.Task) error
	Delete(context.Context, uuid.UUID) error
	GetWithNotification(ctx context.Context, limit, offset int) ([]*task.Task, error)
	HealthCheck(context.Context) error
}

// SnapshotExporter получает актуальный список задач после каждой мутации.
// Реализация не должна блокировать вызывающего.
type SnapshotExporter interface {
	Export(tasks []*task.Task)
}

// PermissionSetter - планировщик, разрешение которого задаётся настройками
type PermissionSetter interface {
	SetPermission(granted bool)
}

type nopExporter struct{}

func (nopExporter) Export([]*task.Task) {}
