package task

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Task struct {
	UUID           uuid.UUID       `json:"uuid" db:"uuid"`
	Title          string          `json:"title" db:"title"`
	Description    string          `json:"description" db:"description"`
	DueDate        *time.Time      `json:"due_date,omitempty" db:"due_date"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty" db:"updated_at,omitempty"`
	Category       Category        `json:"category" db:"category"`
	Reminder       Reminder        `json:"reminder" db:"reminder_offset"`
	NotificationID *string         `json:"notification_id,omitempty" db:"notification_id"`
	IsDone         bool            `json:"is_done" db:"is_done"`
	Checklist      []ChecklistItem `json:"checklist" db:"-"`
	Version        int             `json:"version" db:"version"`
}

type ChecklistItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	IsDone    bool      `json:"is_done" db:"is_done"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Category string

const CategoryPrivate Category = "private"
const CategoryWork Category = "work"
const CategoryImportant Category = "important"
const CategoryOther Category = "other"

var Categories = []Category{CategoryPrivate, CategoryWork, CategoryImportant, CategoryOther}

// ParseCategory возвращает other для неизвестных значений
func ParseCategory(raw string) Category {
	switch c := Category(raw); c {
	case CategoryPrivate, CategoryWork, CategoryImportant, CategoryOther:
		return c
	default:
		return CategoryOther
	}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryPrivate, CategoryWork, CategoryImportant, CategoryOther:
		return true
	}
	return false
}

// HasNotification сообщает, запланировано ли уведомление для задачи
func (t *Task) HasNotification() bool {
	return t.NotificationID != nil
}

// ReminderTime вычисляет момент напоминания; ok=false если напоминания нет
// или не задан срок.
func (t *Task) ReminderTime() (time.Time, bool) {
	if t.Reminder.IsNone() || t.DueDate == nil {
		return time.Time{}, false
	}
	return t.Reminder.FireAt(*t.DueDate), true
}

// HasFutureReminder - активное напоминание, которое ещё не сработало
func (t *Task) HasFutureReminder(now time.Time) bool {
	at, ok := t.ReminderTime()
	return ok && at.After(now)
}

// SortChecklist упорядочивает пункты по времени создания
func (t *Task) SortChecklist() {
	sort.SliceStable(t.Checklist, func(i, j int) bool {
		return t.Checklist[i].CreatedAt.Before(t.Checklist[j].CreatedAt)
	})
}

// Clone возвращает глубокую копию, хранилища отдают наружу только копии
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.DueDate != nil {
		due := *t.DueDate
		c.DueDate = &due
	}
	if t.UpdatedAt != nil {
		upd := *t.UpdatedAt
		c.UpdatedAt = &upd
	}
	if t.NotificationID != nil {
		id := *t.NotificationID
		c.NotificationID = &id
	}
	if t.Checklist != nil {
		c.Checklist = make([]ChecklistItem, len(t.Checklist))
		copy(c.Checklist, t.Checklist)
	}
	return &c
}

func (t *Task) FindChecklistItem(id uuid.UUID) (int, bool) {
	for i, item := range t.Checklist {
		if item.ID == id {
			return i, true
		}
	}
	return -1, false
}
