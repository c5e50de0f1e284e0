package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"simpleTask/internal/logger"
	"simpleTask/internal/models/task"
	repo "simpleTask/internal/repository"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Storage - файловое хранилище задач на SQLite
type Storage struct {
	db   *sql.DB
	path string
}

const taskColumns = `uuid, title, description, due_date, created_at, updated_at,
		category, reminder_offset, notification_id, is_done, version`

func New(ctx context.Context, path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("создание каталога %s: %w", dir, err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("Repository: Не удалось открыть SQLite", err)
		return nil, fmt.Errorf("открытие sqlite: %w", err)
	}
	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		logger.Error("Repository: Не удалось применить схему SQLite", err)
		return nil, fmt.Errorf("применение схемы: %w", err)
	}

	logger.Info("Repository: Открыто хранилище SQLite", zap.String("path", path))
	return &Storage{db: db, path: path}, nil
}

func (s *Storage) Close() error {
	logger.Info("Repository: Закрытие хранилища SQLite")
	return s.db.Close()
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func (s *Storage) Create(ctx context.Context, t *task.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repo.NewPersistenceError("create", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO tasks
		(uuid, title, description, due_date, created_at, category, reminder_offset, notification_id, is_done, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		t.UUID.String(), t.Title, t.Description, toNullUnix(t.DueDate), t.CreatedAt.UnixNano(),
		string(t.Category), t.Reminder.OffsetSeconds(), toNullString(t.NotificationID), t.IsDone)
	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err)
		return repo.NewPersistenceError("create", fmt.Errorf("добавление задачи: %w", err))
	}

	if err := insertChecklist(ctx, tx, t); err != nil {
		return repo.NewPersistenceError("create", err)
	}
	if err := tx.Commit(); err != nil {
		return repo.NewPersistenceError("create", err)
	}

	t.Version = 1
	t.SortChecklist()
	return nil
}

func insertChecklist(ctx context.Context, tx *sql.Tx, t *task.Task) error {
	for _, item := range t.Checklist {
		_, err := tx.ExecContext(ctx, `INSERT INTO checklist_items (id, task_uuid, title, is_done, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			item.ID.String(), t.UUID.String(), item.Title, item.IsDone, item.CreatedAt.UnixNano())
		if err != nil {
			logger.Error("Repository: Не удалось сохранить чек-лист", err)
			return fmt.Errorf("сохранение чек-листа: %w", err)
		}
	}
	return nil
}

func (s *Storage) Save(ctx context.Context, t *task.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repo.NewPersistenceError("save", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `UPDATE tasks
		SET title = ?, description = ?, due_date = ?, category = ?, reminder_offset = ?,
			notification_id = ?, is_done = ?, version = version + 1, updated_at = ?
		WHERE uuid = ? AND version = ?`,
		t.Title, t.Description, toNullUnix(t.DueDate), string(t.Category), t.Reminder.OffsetSeconds(),
		toNullString(t.NotificationID), t.IsDone, now.UnixNano(), t.UUID.String(), t.Version)
	if err != nil {
		logger.Error("Repository: Не удалось обновить задачу", err)
		return repo.NewPersistenceError("save", fmt.Errorf("обновление задачи: %w", err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return repo.NewPersistenceError("save", err)
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE uuid = ?`, t.UUID.String()).Scan(&exists)
		if err != nil {
			return repo.NewPersistenceError("save", err)
		}
		if exists == 0 {
			return repo.ErrNotFound
		}
		logger.Warn("Repository: Конфликт версий при обновлении задачи",
			zap.String("task_id", t.UUID.String()),
			zap.Int("expected_version", t.Version))
		return repo.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE task_uuid = ?`, t.UUID.String()); err != nil {
		return repo.NewPersistenceError("save", err)
	}
	if err := insertChecklist(ctx, tx, t); err != nil {
		return repo.NewPersistenceError("save", err)
	}
	if err := tx.Commit(); err != nil {
		return repo.NewPersistenceError("save", err)
	}

	t.Version++
	t.UpdatedAt = &now
	t.SortChecklist()
	return nil
}

func (s *Storage) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE uuid = ?`, id.String())
	if err != nil {
		logger.Error("Repository: Полное удаление задачи", err)
		return repo.NewPersistenceError("delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return repo.NewPersistenceError("delete", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE uuid = ?`, id.String())
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err)
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	if err := s.loadChecklists(ctx, []*task.Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// Fetch фильтрует по выполненности и категории в SQL. Поиск по названию
// выполняется в Go: lower() в SQLite понимает только ASCII.
func (s *Storage) Fetch(ctx context.Context, q task.Query) ([]*task.Task, error) {
	var (
		where []string
		args  []any
	)
	if q.Done != nil {
		where = append(where, "is_done = ?")
		args = append(args, *q.Done)
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(q.Category))
	}
	if q.Sort == task.SortWithReminder {
		where = append(where, `reminder_offset <> 0 AND due_date IS NOT NULL AND
			due_date + CAST((CASE WHEN abs(reminder_offset - 0.1) < 0.001 THEN 0 ELSE reminder_offset END) * 1000000000 AS INTEGER) > ?`)
		args = append(args, q.Reference().UnixNano())
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy(q.Sort)

	tasks, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	if q.Search == "" {
		return tasks, nil
	}
	needle := strings.ToLower(q.Search)
	res := tasks[:0]
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), needle) {
			res = append(res, t)
		}
	}
	return res, nil
}

func (s *Storage) GetWithNotification(ctx context.Context, limit, offset int) ([]*task.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE notification_id IS NOT NULL
		ORDER BY created_at, id
		LIMIT ? OFFSET ?`, limit, offset)
}

func orderBy(sort task.Sort) string {
	switch sort {
	case task.SortCreatedAsc:
		return "created_at ASC"
	case task.SortDueAsc:
		return "due_date IS NULL, due_date ASC, created_at DESC"
	case task.SortDueDesc:
		return "due_date IS NOT NULL, due_date DESC, created_at DESC"
	default:
		return "created_at DESC"
	}
}

func (s *Storage) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err)
		return nil, fmt.Errorf("получение задач: %w", err)
	}

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Warn("Repository: Ошибка сканирования задачи", zap.Error(err))
			continue
		}
		tasks = append(tasks, t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
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

	byID := make(map[string]*task.Task, len(tasks))
	placeholders := make([]string, 0, len(tasks))
	args := make([]any, 0, len(tasks))
	for _, t := range tasks {
		byID[t.UUID.String()] = t
		placeholders = append(placeholders, "?")
		args = append(args, t.UUID.String())
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, task_uuid, title, is_done, created_at
		FROM checklist_items
		WHERE task_uuid IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY created_at`, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить чек-листы", err)
		return fmt.Errorf("получение чек-листов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      task.ChecklistItem
			id        string
			taskID    string
			createdAt int64
		)
		if err := rows.Scan(&id, &taskID, &item.Title, &item.IsDone, &createdAt); err != nil {
			return fmt.Errorf("сканирование чек-листа: %w", err)
		}
		item.ID, err = uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("идентификатор пункта %q: %w", id, err)
		}
		item.CreatedAt = time.Unix(0, createdAt)
		if t, ok := byID[taskID]; ok {
			t.Checklist = append(t.Checklist, item)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	var (
		t              task.Task
		id             string
		due, updatedAt sql.NullInt64
		createdAt      int64
		category       string
		offset         float64
		notificationID sql.NullString
	)
	err := row.Scan(&id, &t.Title, &t.Description, &due, &createdAt, &updatedAt,
		&category, &offset, &notificationID, &t.IsDone, &t.Version)
	if err != nil {
		return nil, err
	}

	t.UUID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("идентификатор задачи %q: %w", id, err)
	}
	t.CreatedAt = time.Unix(0, createdAt)
	t.DueDate = fromNullUnix(due)
	t.UpdatedAt = fromNullUnix(updatedAt)
	t.Category = task.ParseCategory(category)
	t.Reminder = task.ReminderFromOffset(offset)
	if notificationID.Valid {
		t.NotificationID = &notificationID.String
	}
	return &t, nil
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
