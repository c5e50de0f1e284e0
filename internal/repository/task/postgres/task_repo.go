package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"simpleTask/internal/logger"
	"simpleTask/internal/models/task"
	repo "simpleTask/internal/repository"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Config struct {
	URL            string
	MaxConnections int32
	MinConnections int32
	IdleTimeout    time.Duration
	ConnectRetries uint64
}

type Storage struct {
	pool *pgxpool.Pool
}

const taskColumns = `uuid,
				title,
				description,
				due_date,
				created_at,
				updated_at,
				category,
				reminder_offset,
				notification_id,
				is_done,
				version`

func New(ctx context.Context, connString string) (*Storage, error) {
	return NewWithConfig(ctx, Config{URL: connString})
}

func NewWithConfig(ctx context.Context, cfg Config) (*Storage, error) {
	config, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5
	if cfg.MaxConnections > 0 {
		config.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		config.MinConns = cfg.MinConnections
	}
	if cfg.IdleTimeout > 0 {
		config.MaxConnIdleTime = cfg.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	retries := cfg.ConnectRetries
	if retries == 0 {
		retries = 5
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)

	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("Repository: PostgreSQL недоступен, повтор", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	if err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func slowQuery(start time.Time, threshold time.Duration, op string) {
	if time.Since(start) > threshold {
		logger.Warn("Repository: Медленный запрос", zap.String("op", op), zap.Duration("ms", time.Since(start)))
	}
}

func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task) error {
	start := time.Now()
	defer slowQuery(start, time.Millisecond*50, "create")

	if taskToCreate.CreatedAt.IsZero() {
		taskToCreate.CreatedAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return repo.NewPersistenceError("create", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO tasks
				(uuid, title, description, due_date, created_at, category, reminder_offset, notification_id, is_done, version)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
				RETURNING created_at, version`

	err = tx.QueryRow(ctx, query,
		taskToCreate.UUID,
		taskToCreate.Title,
		taskToCreate.Description,
		taskToCreate.DueDate,
		taskToCreate.CreatedAt,
		string(taskToCreate.Category),
		taskToCreate.Reminder.OffsetSeconds(),
		taskToCreate.NotificationID,
		taskToCreate.IsDone,
	).Scan(&taskToCreate.CreatedAt, &taskToCreate.Version)
	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return repo.NewPersistenceError("create", fmt.Errorf("добавление задачи: %w", err))
	}

	if err := insertChecklist(ctx, tx, taskToCreate); err != nil {
		return repo.NewPersistenceError("create", err)
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: Не удалось зафиксировать транзакцию", err)
		return repo.NewPersistenceError("create", err)
	}
	taskToCreate.SortChecklist()
	return nil
}

func insertChecklist(ctx context.Context, tx pgx.Tx, t *task.Task) error {
	if len(t.Checklist) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, item := range t.Checklist {
		batch.Queue(`INSERT INTO checklist_items (id, task_uuid, title, is_done, created_at)
				VALUES ($1, $2, $3, $4, $5)`,
			item.ID, t.UUID, item.Title, item.IsDone, item.CreatedAt)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		logger.Error("Repository: Не удалось сохранить чек-лист", err)
		return fmt.Errorf("сохранение чек-листа: %w", err)
	}
	return nil
}

// Save сохраняет задачу и полностью перезаписывает её чек-лист
func (s *Storage) Save(ctx context.Context, taskToSave *task.Task) error {
	start := time.Now()
	defer slowQuery(start, time.Millisecond*100, "save")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return repo.NewPersistenceError("save", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE tasks
			SET title = $1,
				description = $2,
				due_date = $3,
				category = $4,
				reminder_offset = $5,
				notification_id = $6,
				is_done = $7,
				version = version + 1,
				updated_at = NOW()
			WHERE uuid = $8 AND version = $9
			RETURNING updated_at, version`

	err = tx.QueryRow(ctx, query,
		taskToSave.Title,
		taskToSave.Description,
		taskToSave.DueDate,
		string(taskToSave.Category),
		taskToSave.Reminder.OffsetSeconds(),
		taskToSave.NotificationID,
		taskToSave.IsDone,
		taskToSave.UUID,
		taskToSave.Version,
	).Scan(&taskToSave.UpdatedAt, &taskToSave.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE uuid = $1)`, taskToSave.UUID).Scan(&exists); err != nil {
				return repo.NewPersistenceError("save", err)
			}
			if !exists {
				return repo.ErrNotFound
			}
			logger.Warn("Repository: Конфликт версий при обновлении задачи",
				zap.String("task_id", taskToSave.UUID.String()),
				zap.Int("expected_version", taskToSave.Version))
			return repo.ErrVersionConflict
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return repo.NewPersistenceError("save", fmt.Errorf("обновление задачи: %w", err))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM checklist_items WHERE task_uuid = $1`, taskToSave.UUID); err != nil {
		logger.Error("Repository: Не удалось очистить чек-лист", err)
		return repo.NewPersistenceError("save", err)
	}
	if err := insertChecklist(ctx, tx, taskToSave); err != nil {
		return repo.NewPersistenceError("save", err)
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: Не удалось зафиксировать транзакцию", err)
		return repo.NewPersistenceError("save", err)
	}
	taskToSave.SortChecklist()
	return nil
}

// полное удаление, пункты чек-листа удаляются каскадно
func (s *Storage) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	defer slowQuery(start, time.Millisecond*100, "delete")

	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE uuid = $1`, id)
	if err != nil {
		logger.Error("Repository: Полное удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return repo.NewPersistenceError("delete", fmt.Errorf("полное удаление: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	start := time.Now()
	defer slowQuery(start, time.Millisecond*100, "get_by_id")

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE uuid = $1`

	t, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	if err := s.loadChecklists(ctx, []*task.Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Storage) Fetch(ctx context.Context, q task.Query) ([]*task.Task, error) {
	start := time.Now()
	defer slowQuery(start, time.Millisecond*100, "fetch")

	query, args := buildFetchQuery(q)
	return s.queryTasks(ctx, query, args...)
}

// GetWithNotification - задачи с запланированным уведомлением
func (s *Storage) GetWithNotification(ctx context.Context, limit, offset int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
				WHERE notification_id IS NOT NULL
				ORDER BY created_at, id
				LIMIT $1 OFFSET $2`
	return s.queryTasks(ctx, query, limit, offset)
}

func buildFetchQuery(q task.Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Search != "" {
		where = append(where, `title ILIKE '%' || `+arg(escapeLike(q.Search))+` || '%' ESCAPE '\'`)
	}
	if q.Done != nil {
		where = append(where, "is_done = "+arg(*q.Done))
	}
	if q.Category != "" {
		where = append(where, "category = "+arg(string(q.Category)))
	}
	if q.Sort == task.SortWithReminder {
		where = append(where, `reminder_offset <> 0 AND due_date IS NOT NULL AND
				due_date + make_interval(secs => CASE WHEN abs(reminder_offset - 0.1) < 0.001 THEN 0 ELSE reminder_offset END) > `+arg(q.Reference()))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy(q.Sort))
	return sb.String(), args
}

func orderBy(sort task.Sort) string {
	switch sort {
	case task.SortCreatedAsc:
		return "created_at ASC"
	case task.SortDueAsc:
		return "due_date ASC NULLS LAST, created_at DESC"
	case task.SortDueDesc:
		return "due_date DESC NULLS FIRST, created_at DESC"
	default:
		return "created_at DESC"
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Storage) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err)
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Warn("Repository: Ошибка сканирования задачи", zap.Error(err))
			continue
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	if err := s.loadChecklists(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Storage) loadChecklists(ctx context.Context, tasks []*task.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(tasks))
	byID := make(map[uuid.UUID]*task.Task, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.UUID)
		byID[t.UUID] = t
	}

	rows, err := s.pool.Query(ctx, `SELECT id, task_uuid, title, is_done, created_at
				FROM checklist_items
				WHERE task_uuid = ANY($1)
				ORDER BY created_at`, ids)
	if err != nil {
		logger.Error("Repository: Не удалось получить чек-листы", err)
		return fmt.Errorf("получение чек-листов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item   task.ChecklistItem
			taskID uuid.UUID
		)
		if err := rows.Scan(&item.ID, &taskID, &item.Title, &item.IsDone, &item.CreatedAt); err != nil {
			return fmt.Errorf("сканирование чек-листа: %w", err)
		}
		if t, ok := byID[taskID]; ok {
			t.Checklist = append(t.Checklist, item)
		}
	}
	return rows.Err()
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t        task.Task
		category string
		offset   float64
	)
	err := row.Scan(
		&t.UUID,
		&t.Title,
		&t.Description,
		&t.DueDate,
		&t.CreatedAt,
		&t.UpdatedAt,
		&category,
		&offset,
		&t.NotificationID,
		&t.IsDone,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}
	t.Category = task.ParseCategory(category)
	t.Reminder = task.ReminderFromOffset(offset)
	return &t, nil
}
