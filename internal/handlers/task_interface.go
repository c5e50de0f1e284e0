package handlers

import (
	"context"
	"simpleTask/internal/models/task"
	"simpleTask/internal/notification"
	"simpleTask/internal/service"

	"github.com/google/uuid"
)

type Service interface {
	CreateTask(context.Context, service.CreateInput) (*task.Task, error)
	GetTaskByID(context.Context, uuid.UUID) (*task.Task, error)
	ListTasks(context.Context, task.Query) ([]*task.Task, error)
	UpdateTask(context.Context, uuid.UUID, ...task.TaskOption) (*task.Task, error)
	SetDone(context.Context, uuid.UUID, bool) (*task.Task, error)
	DeleteTask(context.Context, uuid.UUID) error

	AddChecklistItem(context.Context, uuid.UUID, string) (*task.Task, error)
	ToggleChecklistItem(context.Context, uuid.UUID, uuid.UUID) (*task.Task, error)
	RemoveChecklistItem(context.Context, uuid.UUID, uuid.UUID) (*task.Task, error)

	RequestNotificationPermission(context.Context) bool
	NotificationsEnabled(context.Context) bool
	SetNotificationsEnabled(context.Context, bool) error
	CancelAllNotifications(context.Context) (int, error)
	PendingNotifications(context.Context) ([]notification.Request, error)

	HealthCheck(context.Context) error
}

var _ Service = (*service.TaskService)(nil)
