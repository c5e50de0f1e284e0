package reminder_test

import (
	"simpleTask/internal/models/task"
	"simpleTask/internal/reminder"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

// TestPlan тестирует таблицу решений синхронизатора
func TestPlan(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(time.Hour)
	handle := ptr("old")

	tests := []struct {
		name       string
		prev       reminder.State
		next       reminder.State
		granted    bool
		wantAction reminder.Action
		wantCancel string
		wantFireAt time.Time
	}{
		{
			name:       "nothing changed keeps handle",
			prev:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due, NotificationID: handle},
			next:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due, NotificationID: handle, Title: "renamed"},
			granted:    true,
			wantAction: reminder.Keep,
		},
		{
			name:       "due shift under a second keeps handle",
			prev:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due, NotificationID: handle},
			next:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: ptr(due.Add(500 * time.Millisecond))},
			granted:    true,
			wantAction: reminder.Keep,
		},
		{
			name:       "reminder turned off cancels",
			prev:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due, NotificationID: handle},
			next:       reminder.State{Reminder: task.NoReminder(), DueDate: &due},
			granted:    true,
			wantAction: reminder.Clear,
			wantCancel: "old",
		},
		{
			name:       "reminder turned off without permission still cancels",
			prev:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due, NotificationID: handle},
			next:       reminder.State{Reminder: task.NoReminder(), DueDate: &due},
			granted:    false,
			wantAction: reminder.Clear,
			wantCancel: "old",
		},
		{
			name:       "no reminder and no handle",
			prev:       reminder.State{},
			next:       reminder.State{Reminder: task.NoReminder(), DueDate: &due},
			granted:    true,
			wantAction: reminder.Clear,
		},
		{
			name:       "stray handle without reminder is cancelled on change",
			prev:       reminder.State{DueDate: &due, NotificationID: handle},
			next:       reminder.State{DueDate: ptr(due.Add(time.Hour))},
			granted:    true,
			wantAction: reminder.Clear,
			wantCancel: "old",
		},
		{
			name:       "create with permission schedules",
			prev:       reminder.State{},
			next:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due, Title: "A"},
			granted:    true,
			wantAction: reminder.Schedule,
			wantFireAt: due.Add(-30 * time.Minute),
		},
		{
			name:       "create without permission clears",
			prev:       reminder.State{},
			next:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due},
			granted:    false,
			wantAction: reminder.Clear,
		},
		{
			name:       "at due fires at due date",
			prev:       reminder.State{},
			next:       reminder.State{Reminder: task.RemindAtDue(), DueDate: &due},
			granted:    true,
			wantAction: reminder.Schedule,
			wantFireAt: due,
		},
		{
			name:       "due date change reschedules",
			prev:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due, NotificationID: handle},
			next:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: ptr(due.Add(time.Hour))},
			granted:    true,
			wantAction: reminder.Schedule,
			wantCancel: "old",
			wantFireAt: due.Add(30 * time.Minute),
		},
		{
			name:       "offset change reschedules",
			prev:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due, NotificationID: handle},
			next:       reminder.State{Reminder: task.ReminderFiveMinutes, DueDate: &due},
			granted:    true,
			wantAction: reminder.Schedule,
			wantCancel: "old",
			wantFireAt: due.Add(-5 * time.Minute),
		},
		{
			name:       "permission revoked cancels",
			prev:       reminder.State{Reminder: task.ReminderThirtyMinutes, DueDate: &due, NotificationID: handle},
			next:       reminder.State{Reminder: task.ReminderFiveMinutes, DueDate: &due},
			granted:    false,
			wantAction: reminder.Clear,
			wantCancel: "old",
		},
		{
			name:       "past reminder time clears silently",
			prev:       reminder.State{},
			next:       reminder.State{Reminder: task.ReminderFiveMinutes, DueDate: ptr(now.Add(-10 * time.Second))},
			granted:    true,
			wantAction: reminder.Clear,
		},
		{
			name:       "reminder exactly now is not future",
			prev:       reminder.State{},
			next:       reminder.State{Reminder: task.RemindAtDue(), DueDate: &now},
			granted:    true,
			wantAction: reminder.Clear,
		},
		{
			name:       "reminder without due date clears",
			prev:       reminder.State{Reminder: task.ReminderOneHour, DueDate: &due, NotificationID: handle},
			next:       reminder.State{Reminder: task.ReminderOneHour},
			granted:    true,
			wantAction: reminder.Clear,
			wantCancel: "old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := reminder.Plan(tt.prev, tt.next, tt.granted, now)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantCancel, d.CancelID)
			if tt.wantAction == reminder.Schedule {
				assert.Equal(t, tt.wantFireAt, d.FireAt)
				assert.Equal(t, tt.next.Title, d.Title)
				assert.Equal(t, "Due at "+tt.next.DueDate.Format("02.01.2006 - 15:04"), d.Body)
			}
		})
	}
}

// TestDiff тестирует вычисление изменений
func TestDiff(t *testing.T) {
	due := time.Now()

	c := reminder.Diff(
		reminder.State{Reminder: task.RemindAtDue(), DueDate: &due, NotificationID: ptr("x")},
		reminder.State{Reminder: task.RemindAtDue(), DueDate: &due},
	)
	assert.False(t, c.ShouldReconcile())

	c = reminder.Diff(
		reminder.State{DueDate: &due, NotificationID: ptr("x")},
		reminder.State{},
	)
	assert.True(t, c.DueDate)

	c = reminder.Diff(
		reminder.State{Reminder: task.RemindAtDue(), NotificationID: ptr("x")},
		reminder.State{Reminder: task.RemindRelative(0)},
	)
	assert.False(t, c.Offset)

	c = reminder.Diff(reminder.State{}, reminder.State{})
	assert.True(t, c.NoHandle)
}

// TestNeedsPermission тестирует, когда синхронизатор спрашивает разрешение
func TestNeedsPermission(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, reminder.NeedsPermission(reminder.State{}, reminder.State{Reminder: task.RemindAtDue(), DueDate: &future}, now))
	assert.False(t, reminder.NeedsPermission(reminder.State{}, reminder.State{Reminder: task.RemindAtDue(), DueDate: &past}, now))
	assert.False(t, reminder.NeedsPermission(reminder.State{}, reminder.State{DueDate: &future}, now))
	assert.False(t, reminder.NeedsPermission(
		reminder.State{Reminder: task.RemindAtDue(), DueDate: &future, NotificationID: ptr("x")},
		reminder.State{Reminder: task.RemindAtDue(), DueDate: &future},
		now,
	))
}

// TestStateOf тестирует копирование состояния задачи
func TestStateOf(t *testing.T) {
	due := time.Now()
	handle := "h"
	tk := &task.Task{Title: "t", DueDate: &due, NotificationID: &handle, Reminder: task.ReminderOneDay}

	s := reminder.StateOf(tk)
	*tk.NotificationID = "changed"
	tk.DueDate = nil

	assert.Equal(t, "h", *s.NotificationID)
	assert.Equal(t, due, *s.DueDate)
	assert.Equal(t, task.ReminderOneDay, s.Reminder)
}
