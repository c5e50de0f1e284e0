package sqlite_test

import (
	"context"
	"path/filepath"
	"simpleTask/internal/models/task"
	"simpleTask/internal/repository"
	"simpleTask/internal/repository/task/sqlite"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newStorage(t *testing.T) *sqlite.Storage {
	t.Helper()
	storage, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

// TestStorage_CreateAndGet тестирует создание и чтение задачи
func TestStorage_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	now := time.Now()

	handle := "n-1"
	created := &task.Task{
		UUID:           uuid.New(),
		Title:          "Купить молоко",
		Description:    "2 литра",
		Category:       task.CategoryPrivate,
		DueDate:        ptr(now.Add(time.Hour)),
		Reminder:       task.RemindAtDue(),
		NotificationID: &handle,
		Checklist: []task.ChecklistItem{
			{ID: uuid.New(), Title: "second", CreatedAt: now.Add(time.Second)},
			{ID: uuid.New(), Title: "first", IsDone: true, CreatedAt: now},
		},
	}
	require.NoError(t, storage.Create(ctx, created))
	assert.Equal(t, 1, created.Version)

	got, err := storage.GetByID(ctx, created.UUID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, "2 литра", got.Description)
	assert.Equal(t, task.CategoryPrivate, got.Category)
	assert.Equal(t, task.ReminderAtDue, got.Reminder.Kind)
	require.NotNil(t, got.DueDate)
	assert.True(t, created.DueDate.Equal(*got.DueDate))
	require.NotNil(t, got.NotificationID)
	assert.Equal(t, "n-1", *got.NotificationID)
	assert.Nil(t, got.UpdatedAt)

	require.Len(t, got.Checklist, 2)
	assert.Equal(t, "first", got.Checklist[0].Title)
	assert.True(t, got.Checklist[0].IsDone)

	_, err = storage.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// TestStorage_DuplicateCreate тестирует повторное создание задачи
func TestStorage_DuplicateCreate(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)

	created := &task.Task{UUID: uuid.New(), Title: "dup", Category: task.CategoryOther}
	require.NoError(t, storage.Create(ctx, created))

	err := storage.Create(ctx, created)
	require.Error(t, err)
	assert.True(t, repository.IsPersistence(err))
}

// TestStorage_Save тестирует сохранение, версии и очистку полей
func TestStorage_Save(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)

	handle := "n-1"
	created := &task.Task{
		UUID:           uuid.New(),
		Title:          "title",
		Category:       task.CategoryWork,
		DueDate:        ptr(time.Now().Add(time.Hour)),
		Reminder:       task.ReminderFiveMinutes,
		NotificationID: &handle,
	}
	require.NoError(t, storage.Create(ctx, created))

	stale, err := storage.GetByID(ctx, created.UUID)
	require.NoError(t, err)

	created.DueDate = nil
	created.Reminder = task.NoReminder()
	created.NotificationID = nil
	created.Checklist = []task.ChecklistItem{{ID: uuid.New(), Title: "item", CreatedAt: time.Now()}}
	require.NoError(t, storage.Save(ctx, created))
	assert.Equal(t, 2, created.Version)
	require.NotNil(t, created.UpdatedAt)

	got, err := storage.GetByID(ctx, created.UUID)
	require.NoError(t, err)
	assert.Nil(t, got.DueDate)
	assert.True(t, got.Reminder.IsNone())
	assert.Nil(t, got.NotificationID)
	assert.Len(t, got.Checklist, 1)
	assert.Equal(t, 2, got.Version)

	stale.Title = "stale"
	assert.ErrorIs(t, storage.Save(ctx, stale), repository.ErrVersionConflict)

	ghost := &task.Task{UUID: uuid.New(), Title: "ghost", Version: 1}
	assert.ErrorIs(t, storage.Save(ctx, ghost), repository.ErrNotFound)
}

// TestStorage_Delete тестирует удаление задачи вместе с чек-листом
func TestStorage_Delete(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)

	created := &task.Task{
		UUID:      uuid.New(),
		Title:     "delete me",
		Category:  task.CategoryOther,
		Checklist: []task.ChecklistItem{{ID: uuid.New(), Title: "item", CreatedAt: time.Now()}},
	}
	require.NoError(t, storage.Create(ctx, created))
	require.NoError(t, storage.Delete(ctx, created.UUID))

	_, err := storage.GetByID(ctx, created.UUID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, storage.Delete(ctx, created.UUID), repository.ErrNotFound)

	// пункт с тем же id можно создать снова, значит каскад сработал
	again := &task.Task{
		UUID:      uuid.New(),
		Title:     "again",
		Category:  task.CategoryOther,
		Checklist: []task.ChecklistItem{{ID: created.Checklist[0].ID, Title: "item", CreatedAt: time.Now()}},
	}
	assert.NoError(t, storage.Create(ctx, again))
}

// TestStorage_Fetch тестирует фильтры и сортировки, совпадающие с Query.Apply
func TestStorage_Fetch(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	now := time.Now()

	tasks := []*task.Task{
		{UUID: uuid.New(), Title: "Купить Молоко", Category: task.CategoryPrivate,
			CreatedAt: now.Add(-4 * time.Hour), DueDate: ptr(now.Add(2 * time.Hour)), Reminder: task.ReminderOneHour},
		{UUID: uuid.New(), Title: "Write report", Category: task.CategoryWork, IsDone: true,
			CreatedAt: now.Add(-3 * time.Hour), DueDate: ptr(now.Add(time.Hour))},
		{UUID: uuid.New(), Title: "Call mom", Category: task.CategoryImportant,
			CreatedAt: now.Add(-2 * time.Hour), Reminder: task.RemindAtDue()},
		{UUID: uuid.New(), Title: "Pay rent", Category: task.CategoryImportant,
			CreatedAt: now.Add(-time.Hour), DueDate: ptr(now.Add(-time.Hour)), Reminder: task.RemindAtDue()},
	}
	for _, tk := range tasks {
		require.NoError(t, storage.Create(ctx, tk))
	}

	queries := []task.Query{
		{},
		{Search: "молоко"},
		{Search: "RE"},
		{Done: ptr(false)},
		{Category: task.CategoryImportant},
		{Sort: task.SortCreatedAsc},
		{Sort: task.SortDueAsc},
		{Sort: task.SortDueDesc},
		{Sort: task.SortWithReminder, Now: now},
	}

	for _, q := range queries {
		got, err := storage.Fetch(ctx, q)
		require.NoError(t, err)

		want := q.Apply(tasks)
		require.Len(t, got, len(want), "query %+v", q)
		for i := range want {
			assert.Equal(t, want[i].UUID, got[i].UUID, "query %+v position %d", q, i)
		}
	}
}

// TestStorage_GetWithNotification тестирует выборку задач с уведомлением
func TestStorage_GetWithNotification(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)

	handle := "n-1"
	with := &task.Task{UUID: uuid.New(), Title: "with", CreatedAt: time.Now(), NotificationID: &handle}
	require.NoError(t, storage.Create(ctx, with))
	require.NoError(t, storage.Create(ctx, &task.Task{UUID: uuid.New(), Title: "without"}))

	got, err := storage.GetWithNotification(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, with.UUID, got[0].UUID)

	next := "n-2"
	later := &task.Task{UUID: uuid.New(), Title: "later", CreatedAt: time.Now().Add(time.Minute), NotificationID: &next}
	require.NoError(t, storage.Create(ctx, later))

	got, err = storage.GetWithNotification(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, later.UUID, got[0].UUID)
}

// TestStorage_ConcurrentWrites тестирует параллельные записи
func TestStorage_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, storage.Create(ctx, &task.Task{UUID: uuid.New(), Title: "parallel"}))
		}()
	}
	wg.Wait()

	got, err := storage.Fetch(ctx, task.Query{})
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.NoError(t, storage.HealthCheck(ctx))
}
