package worker

import (
	"context"
	"fmt"
	"simpleTask/internal/logger"
	"simpleTask/internal/models/task"
	"simpleTask/internal/notification"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type TaskSource interface {
	GetWithNotification(ctx context.Context, limit, offset int) ([]*task.Task, error)
}

// ReminderRestorer повторно сверяет задачу, уведомление которой пропало из очереди
type ReminderRestorer interface {
	RestoreReminder(ctx context.Context, id uuid.UUID, staleID string) error
}

// ReminderWorker находит задачи со ссылкой на уведомление, которого уже нет
// в очереди планировщика (сработало или потерялось), и восстанавливает
// соответствие ссылки и очереди.
type ReminderWorker struct {
	repo        TaskSource
	scheduler   notification.Scheduler
	restorer    ReminderRestorer
	interval    time.Duration
	batchSize   int
	parallelism int
}

func NewReminderWorker(repo TaskSource, scheduler notification.Scheduler, restorer ReminderRestorer, interval *time.Duration, batchSize *int) *ReminderWorker {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = time.Minute
	} else {
		intervalToSet = *interval
	}

	var batchToSet int
	if batchSize == nil || *batchSize <= 0 {
		batchToSet = 100
	} else {
		batchToSet = *batchSize
	}
	return &ReminderWorker{
		repo:        repo,
		scheduler:   scheduler,
		restorer:    restorer,
		interval:    intervalToSet,
		batchSize:   batchToSet,
		parallelism: 4,
	}
}

func (w *ReminderWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logger.Debug("Worker: Фоновая сверка уведомлений", zap.Time("started_at", time.Now()))
			if _, err := w.Check(ctx); err != nil {
				logger.Warn("Worker: Ошибка сверки уведомлений", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("Worker: Фоновая сверка останавливается")
			return
		}
	}
}

// Check выполняет один проход и возвращает число восстановленных задач
func (w *ReminderWorker) Check(ctx context.Context) (int, error) {
	start := time.Now()

	pending, err := w.scheduler.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("получение очереди уведомлений: %w", err)
	}
	alive := make(map[string]struct{}, len(pending))
	for _, req := range pending {
		alive[req.ID] = struct{}{}
	}

	// сначала собираем все страницы: восстановление меняет выборку
	var (
		stale   []*task.Task
		checked int
	)
	for offset := 0; ; offset += w.batchSize {
		tasks, err := w.repo.GetWithNotification(ctx, w.batchSize, offset)
		if err != nil {
			return 0, fmt.Errorf("получение задач с уведомлениями: %w", err)
		}
		checked += len(tasks)

		for _, t := range tasks {
			if t.NotificationID == nil {
				continue
			}
			if _, ok := alive[*t.NotificationID]; !ok {
				stale = append(stale, t)
			}
		}
		if len(tasks) < w.batchSize {
			break
		}
	}

	var restored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)

	for _, t := range stale {
		id, staleID := t.UUID, *t.NotificationID
		g.Go(func() error {
			if err := w.restorer.RestoreReminder(gctx, id, staleID); err != nil {
				// ошибка одной задачи не останавливает остальные
				logger.Warn("Worker: Не удалось восстановить напоминание",
					zap.String("task_id", id.String()),
					zap.Error(err))
				return nil
			}
			restored.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(restored.Load()), err
	}

	logger.Info(
		"Worker: Завершение сверки уведомлений",
		zap.Duration("ms", time.Since(start)),
		zap.Int("checked", checked),
		zap.Int64("restored", restored.Load()),
	)
	return int(restored.Load()), nil
}
