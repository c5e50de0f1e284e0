package task

import (
	"time"
)

type TaskOption func(*Task)

func WithTitle(title string) TaskOption {
	if title == "" {
		return nil
	}
	return func(task *Task) {
		task.Title = title
	}
}

func WithDescription(description string) TaskOption {
	return func(task *Task) {
		task.Description = description
	}
}

// WithCategory записывает значение как есть, проверка категории на стороне сервиса
func WithCategory(category Category) TaskOption {
	if category == "" {
		return nil
	}
	return func(task *Task) {
		task.Category = category
	}
}

// WithDueDate с nil снимает срок у задачи
func WithDueDate(dueDate *time.Time) TaskOption {
	return func(task *Task) {
		if dueDate == nil {
			task.DueDate = nil
			return
		}
		due := *dueDate
		task.DueDate = &due
	}
}

func WithReminder(reminder Reminder) TaskOption {
	return func(task *Task) {
		task.Reminder = reminder
	}
}

func WithDone(done bool) TaskOption {
	return func(task *Task) {
		task.IsDone = done
	}
}
