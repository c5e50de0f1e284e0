package dto

import (
	"simpleTask/internal/models/task"
	"simpleTask/internal/notification"
	"time"
)

// Reminder в JSON - смещение в секундах относительно срока:
// 0 - без напоминания, 0.1 - в момент срока, -1800 - за 30 минут.

type CreateTaskRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	Category    string        `json:"category,omitempty"`
	Reminder    task.Reminder `json:"reminder"`
	Checklist   []string      `json:"checklist,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	// ClearDueDate снимает срок, DueDate при этом игнорируется
	ClearDueDate bool           `json:"clear_due_date,omitempty"`
	Category     *string        `json:"category,omitempty"`
	Reminder     *task.Reminder `json:"reminder,omitempty"`
	IsDone       *bool          `json:"is_done,omitempty"`
}

type ChecklistItemRequest struct {
	Title string `json:"title"`
}

type NotificationSettingsRequest struct {
	Enabled bool `json:"enabled"`
}

type ChecklistItemResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	IsDone    bool      `json:"is_done"`
	CreatedAt time.Time `json:"created_at"`
}

type TaskResponse struct {
	UUID            string                  `json:"id"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	DueDate         *time.Time              `json:"due_date,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       *time.Time              `json:"updated_at,omitempty"`
	Category        string                  `json:"category"`
	Reminder        task.Reminder           `json:"reminder"`
	ReminderAt      *time.Time              `json:"reminder_at,omitempty"`
	NotificationID  *string                 `json:"notification_id,omitempty"`
	HasNotification bool                    `json:"has_notification"`
	IsDone          bool                    `json:"is_done"`
	Checklist       []ChecklistItemResponse `json:"checklist"`
	Version         int                     `json:"version"`
	// Warning - задача сохранена, но напоминание не поставлено
	Warning string `json:"warning,omitempty"`
}

func FromTask(t *task.Task) TaskResponse {
	res := TaskResponse{
		UUID:            t.UUID.String(),
		Title:           t.Title,
		Description:     t.Description,
		DueDate:         t.DueDate,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		Category:        string(t.Category),
		Reminder:        t.Reminder,
		NotificationID:  t.NotificationID,
		HasNotification: t.HasNotification(),
		IsDone:          t.IsDone,
		Checklist:       make([]ChecklistItemResponse, 0, len(t.Checklist)),
		Version:         t.Version,
	}
	if at, ok := t.ReminderTime(); ok {
		res.ReminderAt = &at
	}
	for _, item := range t.Checklist {
		res.Checklist = append(res.Checklist, ChecklistItemResponse{
			ID:        item.ID.String(),
			Title:     item.Title,
			IsDone:    item.IsDone,
			CreatedAt: item.CreatedAt,
		})
	}
	return res
}

func FromTaskList(tasks []*task.Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t)
	}
	return result
}

type NotificationResponse struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	FireAt time.Time `json:"fire_at"`
}

func FromRequests(reqs []notification.Request) []NotificationResponse {
	result := make([]NotificationResponse, len(reqs))
	for i, r := range reqs {
		result[i] = NotificationResponse{ID: r.ID, Title: r.Title, Body: r.Body, FireAt: r.FireAt}
	}
	return result
}
