// Package reminder держит NotificationID задачи согласованным с планировщиком
// уведомлений при создании, изменении и удалении задачи.
package reminder

import (
	"simpleTask/internal/models/task"
	"simpleTask/internal/notification"
	"time"
)

// DueDateTolerance - изменение срока меньше этого порога не считается изменением
const DueDateTolerance = time.Second

type Action int

const (
	// Keep - ссылка на уведомление не меняется, планировщик не вызывается
	Keep Action = iota
	// Clear - ссылка обнуляется
	Clear
	// Schedule - ставится новое уведомление, ссылка берётся из ответа планировщика
	Schedule
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Clear:
		return "clear"
	case Schedule:
		return "schedule"
	default:
		return "unknown"
	}
}

// State - часть задачи, от которой зависит напоминание
type State struct {
	Reminder       task.Reminder
	DueDate        *time.Time
	NotificationID *string
	Title          string
}

func StateOf(t *task.Task) State {
	s := State{
		Reminder: t.Reminder,
		Title:    t.Title,
	}
	if t.DueDate != nil {
		due := *t.DueDate
		s.DueDate = &due
	}
	if t.NotificationID != nil {
		id := *t.NotificationID
		s.NotificationID = &id
	}
	return s
}

// FireAt вычисляет момент напоминания; ok=false если напоминания или срока нет
func (s State) FireAt() (time.Time, bool) {
	if s.Reminder.IsNone() || s.DueDate == nil {
		return time.Time{}, false
	}
	return s.Reminder.FireAt(*s.DueDate), true
}

type Decision struct {
	Action Action
	// CancelID - уведомление, которое нужно снять до остальных шагов; пусто если нечего
	CancelID string
	FireAt   time.Time
	Title    string
	Body     string
	Reason   string
}

// Changes - какие из наблюдаемых значений изменились
type Changes struct {
	Offset   bool
	DueDate  bool
	NoHandle bool
}

func (c Changes) ShouldReconcile() bool {
	return c.Offset || c.DueDate || c.NoHandle
}

func Diff(prev, next State) Changes {
	return Changes{
		Offset:   prev.Reminder.Changed(next.Reminder),
		DueDate:  dueDateChanged(prev.DueDate, next.DueDate),
		NoHandle: prev.NotificationID == nil,
	}
}

func dueDateChanged(prev, next *time.Time) bool {
	if prev == nil || next == nil {
		return prev != next
	}
	d := next.Sub(*prev)
	if d < 0 {
		d = -d
	}
	return d > DueDateTolerance
}

// NeedsPermission сообщает, зависит ли решение от разрешения на уведомления.
// Если момент напоминания не в будущем, исход одинаков при любом разрешении.
func NeedsPermission(prev, next State, now time.Time) bool {
	if !Diff(prev, next).ShouldReconcile() {
		return false
	}
	at, ok := next.FireAt()
	return ok && at.After(now)
}

// Plan - таблица решений синхронизатора. Функция чистая: prev и next
// передаются значениями, планировщик не вызывается.
func Plan(prev, next State, granted bool, now time.Time) Decision {
	if !Diff(prev, next).ShouldReconcile() {
		return Decision{Action: Keep, Reason: "unchanged"}
	}

	cancelID := ""
	if prev.NotificationID != nil {
		cancelID = *prev.NotificationID
	}

	// напоминание выключено
	if !prev.Reminder.IsNone() && next.Reminder.IsNone() {
		return Decision{Action: Clear, CancelID: cancelID, Reason: "turned_off"}
	}
	// напоминание не нужно: лишняя ссылка снимается, чтобы "нет напоминания"
	// всегда означало "нет уведомления"
	if next.Reminder.IsNone() {
		return Decision{Action: Clear, CancelID: cancelID, Reason: "none"}
	}

	// без срока или в прошлом исход не зависит от разрешения:
	// старое уведомление снимается, новое не ставится
	at, ok := next.FireAt()
	if !ok {
		return Decision{Action: Clear, CancelID: cancelID, Reason: "no_due_date"}
	}
	if !at.After(now) {
		return Decision{Action: Clear, CancelID: cancelID, Reason: "past"}
	}

	if !granted {
		return Decision{Action: Clear, CancelID: cancelID, Reason: "permission_denied"}
	}

	return Decision{
		Action:   Schedule,
		CancelID: cancelID,
		FireAt:   at,
		Title:    next.Title,
		Body:     notification.Body(*next.DueDate),
		Reason:   "schedule",
	}
}
