// Package fake - записывающий планировщик уведомлений для тестов
package fake

import (
	"context"
	"fmt"
	"simpleTask/internal/notification"
	"sort"
	"sync"
	"time"
)

type Scheduler struct {
	mu sync.Mutex

	granted   bool
	failWith  error
	now       func() time.Time
	nextID    int
	pending   map[string]notification.Request
	scheduled []notification.Request
	cancelled []string
	queries   int
}

func New(granted bool) *Scheduler {
	return &Scheduler{
		granted: granted,
		now:     time.Now,
		pending: make(map[string]notification.Request),
	}
}

var _ notification.Scheduler = (*Scheduler)(nil)

func (s *Scheduler) SetGranted(granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted = granted
}

// FailWith заставляет Schedule возвращать ошибку; nil возвращает обычное поведение
func (s *Scheduler) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Fire имитирует срабатывание: уведомление уходит из очереди
func (s *Scheduler) Fire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

func (s *Scheduler) RequestPermission(ctx context.Context) bool {
	return s.PermissionGranted(ctx)
}

func (s *Scheduler) PermissionGranted(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return s.granted
}

func (s *Scheduler) Schedule(ctx context.Context, title, body string, fireAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return "", notification.NewSchedulingError(s.failWith)
	}
	if !fireAt.After(s.now()) {
		return "", notification.NewSchedulingError(notification.ErrInvalidDate)
	}

	s.nextID++
	req := notification.Request{ID: fmt.Sprintf("fake-%d", s.nextID), Title: title, Body: body, FireAt: fireAt}
	s.pending[req.ID] = req
	s.scheduled = append(s.scheduled, req)
	return req.ID, nil
}

func (s *Scheduler) Cancel(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, id)
	delete(s.pending, id)
}

func (s *Scheduler) CancelAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.pending {
		s.cancelled = append(s.cancelled, id)
	}
	s.pending = make(map[string]notification.Request)
}

func (s *Scheduler) Pending(ctx context.Context) ([]notification.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]notification.Request, 0, len(s.pending))
	for _, req := range s.pending {
		res = append(res, req)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// Scheduled - все успешные вызовы Schedule по порядку
func (s *Scheduler) Scheduled() []notification.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification.Request(nil), s.scheduled...)
}

// Cancelled - идентификаторы из всех вызовов Cancel по порядку
func (s *Scheduler) Cancelled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelled...)
}

func (s *Scheduler) PermissionQueries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *Scheduler) IsPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Reset очищает журнал вызовов, очередь остаётся
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = nil
	s.cancelled = nil
	s.queries = 0
}
