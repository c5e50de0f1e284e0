package service

import (
	"context"
	"errors"
	"fmt"
	"simpleTask/internal/logger"
	"simpleTask/internal/models/task"
	"simpleTask/internal/notification"
	"simpleTask/internal/reminder"
	rep "simpleTask/internal/repository"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// здесь происходит проверка ошибок бизнес-логики и сверка напоминаний

type TaskService struct {
	repo      TaskRepository
	scheduler notification.Scheduler
	sync      *reminder.Synchronizer
	exporter  SnapshotExporter
	locks     *taskLocks
	publisher *publisher
	now       func() time.Time

	// publishMu упорядочивает чтение списка и его публикацию
	publishMu sync.Mutex
}

type Option func(*TaskService)

func WithExporter(e SnapshotExporter) Option {
	return func(s *TaskService) {
		if e != nil {
			s.exporter = e
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *TaskService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTaskService(repo TaskRepository, scheduler notification.Scheduler, opts ...Option) *TaskService {
	s := &TaskService{
		repo:      repo,
		scheduler: scheduler,
		exporter:  nopExporter{},
		locks:     newTaskLocks(),
		publisher: newPublisher(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sync = reminder.NewSynchronizer(scheduler).WithClock(s.now)
	return s
}

type CreateInput struct {
	Title       string
	Description string
	DueDate     *time.Time
	Category    task.Category
	Reminder    task.Reminder
	// Checklist - названия пунктов в порядке добавления
	Checklist []string
}

// ValidateReminder - проверка ввода до вызова сервиса: отклоняет напоминание,
// момент которого уже прошёл. Момент считается так же, как при планировании
// уведомления. Сам сервис прошедшие напоминания молча не планирует.
func ValidateReminder(r task.Reminder, due *time.Time, now time.Time) error {
	if r.IsNone() {
		return nil
	}
	if due == nil {
		return ErrReminderWithoutDueDate
	}
	if !r.FireAt(*due).After(now) {
		return ErrInvalidReminderTime
	}
	return nil
}

// ReminderValidationError оборачивает ошибку ValidateReminder для ответа клиенту
func ReminderValidationError(err error) *BusinessError {
	be := NewValidationError("reminder", err.Error())
	be.Err = err
	return be
}

func (s *TaskService) CreateTask(ctx context.Context, in CreateInput) (*task.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, NewValidationError("title", "название не может быть пустым")
	}

	category := in.Category
	if category == "" {
		category = task.CategoryOther
	}
	if !category.Valid() {
		return nil, NewValidationError("category", fmt.Sprintf("неизвестная категория %q", category))
	}

	now := s.now()

	t := &task.Task{
		UUID:        uuid.New(),
		Title:       title,
		Description: in.Description,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		Category:    category,
		Reminder:    in.Reminder,
	}
	for i, itemTitle := range in.Checklist {
		itemTitle = strings.TrimSpace(itemTitle)
		if itemTitle == "" {
			continue
		}
		t.Checklist = append(t.Checklist, task.ChecklistItem{
			ID:    uuid.New(),
			Title: itemTitle,
			// сохраняем порядок ввода при одинаковом времени создания
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}

	unlock := s.locks.Lock(t.UUID)
	defer unlock()

	if err := s.repo.Create(ctx, t); err != nil {
		logger.Error("Service: Не удалось создать задачу", err, zap.String("task_id", t.UUID.String()))
		return nil, fmt.Errorf("создание задачи: %w", err)
	}

	reminderErr := s.reconcile(ctx, t, reminder.State{})
	if err := s.persistHandle(ctx, t, nil); err != nil {
		// задача без ссылки не должна остаться в хранилище: создание откатывается
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), t.UUID); delErr != nil {
			logger.Error("Service: Не удалось откатить создание задачи", delErr, zap.String("task_id", t.UUID.String()))
			return nil, errors.Join(err, delErr)
		}
		return nil, err
	}

	logger.Info("Service: Задача создана",
		zap.String("task_id", t.UUID.String()),
		zap.Bool("has_notification", t.HasNotification()))

	s.publish(ctx)
	return t, reminderErr
}

// reconcile сверяет напоминание задачи и записывает новую ссылку в t.
// Сверку нельзя прервать отменой запроса: начатая сверка доводится до конца.
func (s *TaskService) reconcile(ctx context.Context, t *task.Task, prev reminder.State) error {
	handle, err := s.sync.Reconcile(context.WithoutCancel(ctx), prev, reminder.StateOf(t))
	t.NotificationID = handle
	if err != nil {
		logger.Warn("Service: Задача сохранена без напоминания",
			zap.String("task_id", t.UUID.String()),
			zap.Error(err))
		return &ReminderError{TaskID: t.UUID.String(), Err: err}
	}
	return nil
}

// persistHandle сохраняет ссылку на уведомление, если она изменилась.
// Если сохранить не удалось, только что поставленное уведомление снимается.
func (s *TaskService) persistHandle(ctx context.Context, t *task.Task, stored *string) error {
	if sameHandle(stored, t.NotificationID) {
		return nil
	}

	if err := s.repo.Save(context.WithoutCancel(ctx), t); err != nil {
		logger.Error("Service: Не удалось сохранить ссылку на уведомление", err, zap.String("task_id", t.UUID.String()))
		s.sync.Teardown(context.WithoutCancel(ctx), t.NotificationID)
		return s.mapRepoError(t.UUID, fmt.Errorf("сохранение ссылки на уведомление: %w", err))
	}
	return nil
}

func sameHandle(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *TaskService) mapRepoError(id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, rep.ErrNotFound):
		logger.Info("Service: Задача не найдена", zap.String("target_id", id.String()))
		return NewNotFound(ResourceTask, id.String())
	case errors.Is(err, rep.ErrVersionConflict):
		return NewVersionConflict(id.String(), err)
	default:
		return err
	}
}

func (s *TaskService) GetTaskByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, s.mapRepoError(id, err)
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return t, nil
}

func (s *TaskService) ListTasks(ctx context.Context, q task.Query) ([]*task.Task, error) {
	if q.Now.IsZero() {
		q.Now = s.now()
	}
	tasks, err := s.repo.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	return tasks, nil
}

// mutate - общий путь изменения задачи: запись, сверка напоминания,
// запись ссылки, публикация. Вызывается под блокировкой задачи.
func (s *TaskService) mutate(ctx context.Context, id uuid.UUID, apply func(*task.Task) error) (*task.Task, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, s.mapRepoError(id, err)
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	prev := reminder.StateOf(t)
	if err := apply(t); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, t); err != nil {
		logger.Error("Service: Не удалось сохранить задачу", err, zap.String("task_id", id.String()))
		return nil, s.mapRepoError(id, fmt.Errorf("сохранение задачи: %w", err))
	}

	reminderErr := s.reconcile(ctx, t, prev)
	if err := s.persistHandle(ctx, t, prev.NotificationID); err != nil {
		return nil, err
	}

	s.publish(ctx)
	return t, reminderErr
}

func (s *TaskService) UpdateTask(ctx context.Context, id uuid.UUID, options ...task.TaskOption) (*task.Task, error) {
	t, err := s.mutate(ctx, id, func(t *task.Task) error {
		for _, opt := range options {
			if opt != nil {
				opt(t)
			}
		}

		if strings.TrimSpace(t.Title) == "" {
			return NewValidationError("title", "название не может быть пустым")
		}
		if !t.Category.Valid() {
			return NewValidationError("category", fmt.Sprintf("неизвестная категория %q", t.Category))
		}
		return nil
	})
	if t != nil {
		logger.Info("Service: Задача обновлена",
			zap.String("task_id", id.String()),
			zap.Bool("has_notification", t.HasNotification()))
	}
	return t, err
}

func (s *TaskService) SetDone(ctx context.Context, id uuid.UUID, done bool) (*task.Task, error) {
	return s.UpdateTask(ctx, id, task.WithDone(done))
}

func (s *TaskService) AddChecklistItem(ctx context.Context, id uuid.UUID, title string) (*task.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, NewValidationError("title", "пункт не может быть пустым")
	}

	return s.mutate(ctx, id, func(t *task.Task) error {
		createdAt := s.now()
		if n := len(t.Checklist); n > 0 && !createdAt.After(t.Checklist[n-1].CreatedAt) {
			createdAt = t.Checklist[n-1].CreatedAt.Add(time.Microsecond)
		}
		t.Checklist = append(t.Checklist, task.ChecklistItem{
			ID:        uuid.New(),
			Title:     title,
			CreatedAt: createdAt,
		})
		return nil
	})
}

func (s *TaskService) ToggleChecklistItem(ctx context.Context, id, itemID uuid.UUID) (*task.Task, error) {
	return s.mutate(ctx, id, func(t *task.Task) error {
		i, ok := t.FindChecklistItem(itemID)
		if !ok {
			return NewNotFound(ResourceChecklistItem, itemID.String())
		}
		t.Checklist[i].IsDone = !t.Checklist[i].IsDone
		return nil
	})
}

func (s *TaskService) RemoveChecklistItem(ctx context.Context, id, itemID uuid.UUID) (*task.Task, error) {
	return s.mutate(ctx, id, func(t *task.Task) error {
		i, ok := t.FindChecklistItem(itemID)
		if !ok {
			return NewNotFound(ResourceChecklistItem, itemID.String())
		}
		t.Checklist = append(t.Checklist[:i], t.Checklist[i+1:]...)
		return nil
	})
}

// DeleteTask снимает уведомление задачи до удаления из хранилища
func (s *TaskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return s.mapRepoError(id, err)
		}
		return fmt.Errorf("получение задачи: %w", err)
	}

	s.sync.Teardown(context.WithoutCancel(ctx), t.NotificationID)

	if err := s.repo.Delete(ctx, id); err != nil {
		logger.Error("Service: Не удалось удалить задачу", err, zap.String("task_id", id.String()))
		return s.mapRepoError(id, fmt.Errorf("удаление задачи: %w", err))
	}

	logger.Info("Service: Задача удалена", zap.String("task_id", id.String()))
	s.publish(ctx)
	return nil
}

// RestoreReminder повторяет сверку задачи, уведомление которой пропало из
// очереди планировщика: сработало или потерялось. staleID - ссылка, которую
// видел вызывающий. Если задача уже изменилась или уведомление staleID
// снова в очереди, ничего не делается.
func (s *TaskService) RestoreReminder(ctx context.Context, id uuid.UUID, staleID string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("получение задачи: %w", err)
	}
	if t.NotificationID == nil || *t.NotificationID != staleID {
		return nil
	}

	// снимок очереди у вызывающего мог устареть: проверяем под блокировкой задачи
	pending, err := s.scheduler.Pending(ctx)
	if err != nil {
		return fmt.Errorf("получение очереди уведомлений: %w", err)
	}
	for _, req := range pending {
		if req.ID == staleID {
			return nil
		}
	}

	stored := t.NotificationID
	// отмена пропавшего уведомления безвредна и не даёт появиться дублю
	s.sync.Teardown(context.WithoutCancel(ctx), stored)
	prev := reminder.StateOf(t)
	prev.NotificationID = nil

	reminderErr := s.reconcile(ctx, t, prev)
	if err := s.persistHandle(ctx, t, stored); err != nil {
		return err
	}

	logger.Debug("Service: Напоминание восстановлено",
		zap.String("task_id", id.String()),
		zap.Bool("has_notification", t.HasNotification()))

	s.publish(ctx)
	return reminderErr
}

func (s *TaskService) RequestNotificationPermission(ctx context.Context) bool {
	granted := s.scheduler.RequestPermission(ctx)
	logger.Info("Service: Запрос разрешения на уведомления", zap.Bool("granted", granted))
	return granted
}

func (s *TaskService) NotificationsEnabled(ctx context.Context) bool {
	return s.scheduler.PermissionGranted(ctx)
}

// SetNotificationsEnabled переключает уведомления в настройках.
// При выключении все уведомления снимаются, а ссылки в задачах очищаются.
func (s *TaskService) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	setter, ok := s.scheduler.(PermissionSetter)
	if !ok {
		return NewBusinessError("NOT_SUPPORTED", "планировщик не поддерживает переключение уведомлений")
	}
	setter.SetPermission(enabled)

	if !enabled {
		if _, err := s.CancelAllNotifications(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CancelAllNotifications снимает все уведомления и возвращает число
// задач, у которых была очищена ссылка. Уведомления, поставленные
// параллельно после отмены, не трогаются.
func (s *TaskService) CancelAllNotifications(ctx context.Context) (int, error) {
	ctx = context.WithoutCancel(ctx)
	s.scheduler.CancelAll(ctx)

	pending, err := s.scheduler.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("получение очереди уведомлений: %w", err)
	}
	alive := make(map[string]bool, len(pending))
	for _, req := range pending {
		alive[req.ID] = true
	}

	const batch = 100
	cleared, offset := 0, 0
	for {
		tasks, err := s.repo.GetWithNotification(ctx, batch, offset)
		if err != nil {
			return cleared, fmt.Errorf("получение задач с уведомлениями: %w", err)
		}

		kept := 0
		for _, t := range tasks {
			ok, err := s.clearHandle(ctx, t.UUID, alive)
			if err != nil {
				return cleared, err
			}
			if ok {
				cleared++
			} else {
				kept++
			}
		}
		if len(tasks) < batch {
			break
		}
		// очищенные задачи выпали из выборки, пропускаем только оставшиеся
		offset += kept
	}

	logger.Info("Service: Все уведомления сняты", zap.Int("cleared", cleared))
	if cleared > 0 {
		s.publish(ctx)
	}
	return cleared, nil
}

func (s *TaskService) clearHandle(ctx context.Context, id uuid.UUID, alive map[string]bool) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("получение задачи: %w", err)
	}
	if t.NotificationID == nil || alive[*t.NotificationID] {
		return false, nil
	}

	t.NotificationID = nil
	if err := s.repo.Save(ctx, t); err != nil {
		return false, s.mapRepoError(id, fmt.Errorf("очистка ссылки на уведомление: %w", err))
	}
	return true, nil
}

func (s *TaskService) PendingNotifications(ctx context.Context) ([]notification.Request, error) {
	return s.scheduler.Pending(ctx)
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		return fmt.Errorf("проверка здоровья сервиса: %w", err)
	}
	return nil
}

// Subscribe возвращает канал со списком задач после каждой мутации и функцию отписки
func (s *TaskService) Subscribe() (<-chan []*task.Task, func()) {
	return s.publisher.subscribe()
}

// Refresh публикует текущий список без мутации, например при старте
func (s *TaskService) Refresh(ctx context.Context) {
	s.publish(ctx)
}

// publish - отдельный шаг после записи в хранилище. Ошибки только логируются:
// мутация к этому моменту уже зафиксирована. Чтение и публикация идут под
// одной блокировкой, поэтому более старый список не перекрывает новый.
func (s *TaskService) publish(ctx context.Context) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	tasks, err := s.repo.Fetch(context.WithoutCancel(ctx), task.Query{})
	if err != nil {
		logger.Warn("Service: Не удалось получить список для публикации", zap.Error(err))
		return
	}
	s.publisher.publish(tasks)
	s.exporter.Export(tasks)
}
