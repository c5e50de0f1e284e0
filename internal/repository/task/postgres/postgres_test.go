package postgres_test

import (
	"context"
	"fmt"
	"simpleTask/internal/models/task"
	"simpleTask/internal/repository"
	"simpleTask/internal/repository/task/postgres"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func ptr[T any](v T) *T { return &v }

// PostgresTestSuite для интеграционных тестов с PostgreSQL
type PostgresTestSuite struct {
	suite.Suite
	container  testcontainers.Container
	storage    *postgres.Storage
	ctx        context.Context
	connString string
}

// SetupSuite запускается один раз перед всеми тестами
func (s *PostgresTestSuite) SetupSuite() {
	s.ctx = context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T(), err)
	s.container = container

	host, err := container.Host(s.ctx)
	require.NoError(s.T(), err)

	port, err := container.MappedPort(s.ctx, "5432")
	require.NoError(s.T(), err)

	s.connString = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	s.storage, err = postgres.New(s.ctx, s.connString)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.storage.Migrate())
}

// TearDownSuite очищает после всех тестов
func (s *PostgresTestSuite) TearDownSuite() {
	if s.storage != nil {
		s.storage.Close()
	}
	if s.container != nil {
		s.container.Terminate(s.ctx)
	}
}

// SetupTest очищает таблицы перед каждым тестом
func (s *PostgresTestSuite) SetupTest() {
	conn, err := pgx.Connect(s.ctx, s.connString)
	require.NoError(s.T(), err)
	defer conn.Close(s.ctx)

	_, err = conn.Exec(s.ctx, "TRUNCATE tasks CASCADE")
	require.NoError(s.T(), err)
}

// TestPostgresTestSuite запускает suite
func TestPostgresTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционные тесты в коротком режиме")
	}
	suite.Run(t, new(PostgresTestSuite))
}

func (s *PostgresTestSuite) newTask(title string) *task.Task {
	return &task.Task{
		UUID:     uuid.New(),
		Title:    title,
		Category: task.CategoryOther,
	}
}

// TestStorage_Create тестирует создание задачи с чек-листом
func (s *PostgresTestSuite) TestStorage_Create() {
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	taskToCreate := &task.Task{
		UUID:        uuid.New(),
		Title:       "Test Task",
		Description: "Test Description",
		Category:    task.CategoryImportant,
		DueDate:     ptr(now.Add(24 * time.Hour)),
		Reminder:    task.RemindBefore(time.Hour),
		Checklist: []task.ChecklistItem{
			{ID: uuid.New(), Title: "second", CreatedAt: now.Add(time.Second)},
			{ID: uuid.New(), Title: "first", CreatedAt: now},
		},
	}

	err := s.storage.Create(ctx, taskToCreate)
	require.NoError(s.T(), err)
	assert.False(s.T(), taskToCreate.CreatedAt.IsZero())
	assert.Equal(s.T(), 1, taskToCreate.Version)

	retrieved, err := s.storage.GetByID(ctx, taskToCreate.UUID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Test Task", retrieved.Title)
	assert.Equal(s.T(), task.CategoryImportant, retrieved.Category)
	assert.Equal(s.T(), task.RemindBefore(time.Hour), retrieved.Reminder)
	require.NotNil(s.T(), retrieved.DueDate)
	assert.WithinDuration(s.T(), *taskToCreate.DueDate, *retrieved.DueDate, time.Millisecond)
	assert.Nil(s.T(), retrieved.NotificationID)
	require.Len(s.T(), retrieved.Checklist, 2)
	assert.Equal(s.T(), "first", retrieved.Checklist[0].Title)
}

// TestStorage_GetByID_NotFound тестирует поиск несуществующей задачи
func (s *PostgresTestSuite) TestStorage_GetByID_NotFound() {
	_, err := s.storage.GetByID(context.Background(), uuid.New())
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

// TestStorage_AtDueReminderRoundTrip тестирует хранение маркера "в момент срока"
func (s *PostgresTestSuite) TestStorage_AtDueReminderRoundTrip() {
	ctx := context.Background()

	t := s.newTask("at due")
	t.DueDate = ptr(time.Now().Add(time.Hour))
	t.Reminder = task.RemindAtDue()
	require.NoError(s.T(), s.storage.Create(ctx, t))

	retrieved, err := s.storage.GetByID(ctx, t.UUID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), task.ReminderAtDue, retrieved.Reminder.Kind)
}

// TestStorage_Save тестирует сохранение задачи и перезапись чек-листа
func (s *PostgresTestSuite) TestStorage_Save() {
	ctx := context.Background()

	t := s.newTask("Original Title")
	t.Checklist = []task.ChecklistItem{{ID: uuid.New(), Title: "old", CreatedAt: time.Now()}}
	require.NoError(s.T(), s.storage.Create(ctx, t))

	handle := "notif-1"
	t.Title = "Updated Title"
	t.IsDone = true
	t.NotificationID = &handle
	t.Checklist = []task.ChecklistItem{{ID: uuid.New(), Title: "new", CreatedAt: time.Now()}}

	require.NoError(s.T(), s.storage.Save(ctx, t))
	assert.Equal(s.T(), 2, t.Version)
	assert.NotNil(s.T(), t.UpdatedAt)

	retrieved, err := s.storage.GetByID(ctx, t.UUID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Updated Title", retrieved.Title)
	assert.True(s.T(), retrieved.IsDone)
	require.NotNil(s.T(), retrieved.NotificationID)
	assert.Equal(s.T(), "notif-1", *retrieved.NotificationID)
	require.Len(s.T(), retrieved.Checklist, 1)
	assert.Equal(s.T(), "new", retrieved.Checklist[0].Title)
}

// TestStorage_Save_VersionConflict тестирует конфликт версий
func (s *PostgresTestSuite) TestStorage_Save_VersionConflict() {
	ctx := context.Background()

	t := s.newTask("Test Task")
	require.NoError(s.T(), s.storage.Create(ctx, t))

	task1, err := s.storage.GetByID(ctx, t.UUID)
	require.NoError(s.T(), err)
	task2, err := s.storage.GetByID(ctx, t.UUID)
	require.NoError(s.T(), err)

	task1.Title = "Updated by task1"
	require.NoError(s.T(), s.storage.Save(ctx, task1))

	task2.Title = "Updated by task2"
	err = s.storage.Save(ctx, task2)
	assert.ErrorIs(s.T(), err, repository.ErrVersionConflict)
}

// TestStorage_Save_NotFound тестирует сохранение удалённой задачи
func (s *PostgresTestSuite) TestStorage_Save_NotFound() {
	err := s.storage.Save(context.Background(), s.newTask("ghost"))
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

// TestStorage_Delete тестирует удаление вместе с чек-листом
func (s *PostgresTestSuite) TestStorage_Delete() {
	ctx := context.Background()

	t := s.newTask("Task to delete")
	t.Checklist = []task.ChecklistItem{{ID: uuid.New(), Title: "item", CreatedAt: time.Now()}}
	require.NoError(s.T(), s.storage.Create(ctx, t))

	require.NoError(s.T(), s.storage.Delete(ctx, t.UUID))

	_, err := s.storage.GetByID(ctx, t.UUID)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)

	err = s.storage.Delete(ctx, t.UUID)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

// TestStorage_Fetch тестирует фильтры и сортировки выборки
func (s *PostgresTestSuite) TestStorage_Fetch() {
	ctx := context.Background()
	now := time.Now()

	buy := s.newTask("Buy milk")
	buy.Category = task.CategoryPrivate
	buy.CreatedAt = now.Add(-3 * time.Hour)
	buy.DueDate = ptr(now.Add(2 * time.Hour))
	buy.Reminder = task.RemindBefore(time.Hour)

	report := s.newTask("Write report")
	report.Category = task.CategoryWork
	report.CreatedAt = now.Add(-2 * time.Hour)
	report.DueDate = ptr(now.Add(time.Hour))
	report.IsDone = true

	percent := s.newTask("100% done_ish")
	percent.CreatedAt = now.Add(-time.Hour)
	percent.DueDate = ptr(now.Add(-time.Hour))
	percent.Reminder = task.RemindAtDue()

	for _, t := range []*task.Task{buy, report, percent} {
		require.NoError(s.T(), s.storage.Create(ctx, t))
	}

	titles := func(tasks []*task.Task) []string {
		res := make([]string, 0, len(tasks))
		for _, t := range tasks {
			res = append(res, t.Title)
		}
		return res
	}

	s.Run("default newest first", func() {
		tasks, err := s.storage.Fetch(ctx, task.Query{})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []string{"100% done_ish", "Write report", "Buy milk"}, titles(tasks))
	})

	s.Run("search is case insensitive", func() {
		tasks, err := s.storage.Fetch(ctx, task.Query{Search: "MILK"})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []string{"Buy milk"}, titles(tasks))
	})

	s.Run("search escapes wildcards", func() {
		tasks, err := s.storage.Fetch(ctx, task.Query{Search: "0%"})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []string{"100% done_ish"}, titles(tasks))
	})

	s.Run("done and category", func() {
		tasks, err := s.storage.Fetch(ctx, task.Query{Done: ptr(true)})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []string{"Write report"}, titles(tasks))

		tasks, err = s.storage.Fetch(ctx, task.Query{Category: task.CategoryPrivate})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []string{"Buy milk"}, titles(tasks))
	})

	s.Run("due ascending", func() {
		tasks, err := s.storage.Fetch(ctx, task.Query{Sort: task.SortDueAsc})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []string{"100% done_ish", "Write report", "Buy milk"}, titles(tasks))
	})

	s.Run("only future reminders", func() {
		tasks, err := s.storage.Fetch(ctx, task.Query{Sort: task.SortWithReminder, Now: now})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []string{"Buy milk"}, titles(tasks))
	})
}

// TestStorage_GetWithNotification тестирует выборку задач с уведомлением
func (s *PostgresTestSuite) TestStorage_GetWithNotification() {
	ctx := context.Background()

	handle := "n-1"
	with := s.newTask("with")
	with.NotificationID = &handle
	require.NoError(s.T(), s.storage.Create(ctx, with))
	require.NoError(s.T(), s.storage.Create(ctx, s.newTask("without")))

	tasks, err := s.storage.GetWithNotification(ctx, 10, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), tasks, 1)
	assert.Equal(s.T(), with.UUID, tasks[0].UUID)
}

// TestStorage_HealthCheck тестирует проверку соединения
func (s *PostgresTestSuite) TestStorage_HealthCheck() {
	assert.NoError(s.T(), s.storage.HealthCheck(context.Background()))
}
