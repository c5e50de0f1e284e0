package local

import (
	"context"
	"errors"
	"simpleTask/internal/logger"
	"simpleTask/internal/notification"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrPermissionDenied = errors.New("уведомления запрещены")

// Deliverer показывает сработавшее уведомление пользователю
type Deliverer interface {
	Deliver(ctx context.Context, req notification.Request)
}

// LogDeliverer пишет сработавшие уведомления в лог
type LogDeliverer struct{}

func (LogDeliverer) Deliver(ctx context.Context, req notification.Request) {
	logger.Info("Notification: Напоминание",
		zap.String("id", req.ID),
		zap.String("title", req.Title),
		zap.String("body", req.Body),
		zap.Time("fire_at", req.FireAt))
}

type pending struct {
	req   notification.Request
	timer *time.Timer
}

// Scheduler - внутрипроцессный планировщик уведомлений на таймерах
type Scheduler struct {
	mu        sync.Mutex
	granted   bool
	deliverer Deliverer
	pending   map[string]*pending
	now       func() time.Time
}

type Option func(*Scheduler)

func WithDeliverer(d Deliverer) Option {
	return func(s *Scheduler) {
		if d != nil {
			s.deliverer = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New создаёт планировщик; enabled - начальное состояние разрешения
func New(enabled bool, opts ...Option) *Scheduler {
	s := &Scheduler{
		granted:   enabled,
		deliverer: LogDeliverer{},
		pending:   make(map[string]*pending),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ notification.Scheduler = (*Scheduler)(nil)

// RequestPermission для локального планировщика разрешение задаётся настройкой
func (s *Scheduler) RequestPermission(ctx context.Context) bool {
	return s.PermissionGranted(ctx)
}

func (s *Scheduler) PermissionGranted(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted
}

// SetPermission переключает разрешение из настроек. Уже запланированные
// уведомления не трогаются: их снимает синхронизатор при следующей сверке.
func (s *Scheduler) SetPermission(granted bool) {
	s.mu.Lock()
	s.granted = granted
	s.mu.Unlock()
	logger.Info("Notification: Разрешение изменено", zap.Bool("granted", granted))
}

func (s *Scheduler) Schedule(ctx context.Context, title, body string, fireAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", notification.NewSchedulingError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.granted {
		return "", notification.NewSchedulingError(ErrPermissionDenied)
	}

	delay := fireAt.Sub(s.now())
	if delay <= 0 {
		return "", notification.NewSchedulingError(notification.ErrInvalidDate)
	}

	id := uuid.NewString()
	p := &pending{req: notification.Request{ID: id, Title: title, Body: body, FireAt: fireAt}}
	p.timer = time.AfterFunc(delay, func() { s.fire(id) })
	s.pending[id] = p

	logger.Debug("Notification: Уведомление запланировано", zap.String("id", id), zap.Time("fire_at", fireAt))
	return id, nil
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.deliverer.Deliver(context.Background(), p.req)
}

func (s *Scheduler) Cancel(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(s.pending, id)
	logger.Debug("Notification: Уведомление отменено", zap.String("id", id))
}

func (s *Scheduler) CancelAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	logger.Info("Notification: Все уведомления отменены")
}

func (s *Scheduler) Pending(ctx context.Context) ([]notification.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]notification.Request, 0, len(s.pending))
	for _, p := range s.pending {
		res = append(res, p.req)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].FireAt.Before(res[j].FireAt) })
	return res, nil
}

// Stop останавливает таймеры при завершении процесса
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		p.timer.Stop()
	}
}
