// Package notification описывает планировщик локальных уведомлений,
// через который синхронизатор напоминаний ставит и снимает уведомления.
package notification

import (
	"context"
	"time"
)

// BodyLayout - формат времени в тексте уведомления
const BodyLayout = "02.01.2006 - 15:04"

// Request - запланированное уведомление
type Request struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	FireAt time.Time `json:"fire_at"`
}

// Scheduler - адаптер системных уведомлений.
// Реализации не хранят состояние задач: связь задачи и уведомления
// держится только в NotificationID задачи.
type Scheduler interface {
	// RequestPermission запрашивает разрешение, повторный вызов безопасен
	RequestPermission(ctx context.Context) bool
	// PermissionGranted читает текущее состояние разрешения, кешировать нельзя
	PermissionGranted(ctx context.Context) bool
	Schedule(ctx context.Context, title, body string, fireAt time.Time) (string, error)
	// Cancel не возвращает ошибку, если уведомления уже нет
	Cancel(ctx context.Context, id string)
	CancelAll(ctx context.Context)
	Pending(ctx context.Context) ([]Request, error)
}

// Body формирует текст уведомления по сроку задачи
func Body(due time.Time) string {
	return "Due at " + due.Format(BodyLayout)
}
