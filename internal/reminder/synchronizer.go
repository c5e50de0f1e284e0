package reminder

import (
	"context"
	"errors"
	"simpleTask/internal/logger"
	"simpleTask/internal/notification"
	"time"

	"go.uber.org/zap"
)

// Synchronizer исполняет решения Plan через планировщик уведомлений.
// Сверки разных задач могут идти параллельно, общего состояния нет.
type Synchronizer struct {
	scheduler notification.Scheduler
	now       func() time.Time
}

func NewSynchronizer(scheduler notification.Scheduler) *Synchronizer {
	return &Synchronizer{scheduler: scheduler, now: time.Now}
}

// WithClock подменяет часы, используется в тестах
func (s *Synchronizer) WithClock(now func() time.Time) *Synchronizer {
	s.now = now
	return s
}

// Reconcile приводит уведомление в соответствие с next и возвращает новую ссылку.
// При отказе планировщика ссылка nil и *notification.SchedulingError:
// задача всё равно сохраняется, только без напоминания.
func (s *Synchronizer) Reconcile(ctx context.Context, prev, next State) (*string, error) {
	now := s.now()

	granted := false
	if NeedsPermission(prev, next, now) {
		granted = s.scheduler.PermissionGranted(ctx)
	}

	d := Plan(prev, next, granted, now)
	reconcileTotal.WithLabelValues(d.Action.String(), d.Reason).Inc()

	if d.Action == Keep {
		return prev.NotificationID, nil
	}

	if d.CancelID != "" {
		s.scheduler.Cancel(ctx, d.CancelID)
		cancelledTotal.Inc()
		logger.Debug("Reminder: Уведомление снято", zap.String("notification_id", d.CancelID), zap.String("reason", d.Reason))
	}

	if d.Action == Clear {
		return nil, nil
	}

	id, err := s.scheduler.Schedule(ctx, d.Title, d.Body, d.FireAt)
	if err != nil {
		// момент успел пройти между решением и вызовом, это не ошибка
		if errors.Is(err, notification.ErrInvalidDate) {
			logger.Debug("Reminder: Момент напоминания уже прошёл", zap.Time("fire_at", d.FireAt))
			return nil, nil
		}
		failedTotal.Inc()
		if !notification.IsSchedulingError(err) {
			err = notification.NewSchedulingError(err)
		}
		logger.Warn("Reminder: Не удалось запланировать уведомление", zap.Error(err), zap.Time("fire_at", d.FireAt))
		return nil, err
	}

	logger.Debug("Reminder: Уведомление запланировано", zap.String("notification_id", id), zap.Time("fire_at", d.FireAt))
	return &id, nil
}

// Teardown снимает уведомление удаляемой задачи
func (s *Synchronizer) Teardown(ctx context.Context, handle *string) {
	if handle == nil {
		return
	}
	s.scheduler.Cancel(ctx, *handle)
	cancelledTotal.Inc()
	logger.Debug("Reminder: Уведомление удалённой задачи снято", zap.String("notification_id", *handle))
}
