package inmemory

import (
	"context"
	"simpleTask/internal/logger"
	"simpleTask/internal/models/task"
	repo "simpleTask/internal/repository"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStorage хранит копии задач: изменения вызывающей стороны попадают
// в хранилище только через Save.
type TaskStorage struct {
	storage map[uuid.UUID]*task.Task
	mtx     *sync.RWMutex
	ids     []uuid.UUID
}

func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		storage: make(map[uuid.UUID]*task.Task),
		mtx:     &sync.RWMutex{},
		ids:     []uuid.UUID{},
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	logger.Debug("Repository: Соединение стабильно")
	return nil
}

func (s *TaskStorage) Create(ctx context.Context, taskToCreate *task.Task) error {
	if err := ctx.Err(); err != nil {
		return repo.NewPersistenceError("create", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.storage[taskToCreate.UUID]; ok {
		return repo.NewPersistenceError("create", repo.ErrVersionConflict)
	}

	if taskToCreate.CreatedAt.IsZero() {
		taskToCreate.CreatedAt = time.Now()
	}
	taskToCreate.Version = 1
	taskToCreate.SortChecklist()

	s.storage[taskToCreate.UUID] = taskToCreate.Clone()
	s.ids = append(s.ids, taskToCreate.UUID)
	return nil
}

// Save сохраняет все поля задачи, включая чек-лист и идентификатор уведомления
func (s *TaskStorage) Save(ctx context.Context, taskToSave *task.Task) error {
	if err := ctx.Err(); err != nil {
		return repo.NewPersistenceError("save", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.storage[taskToSave.UUID]
	if !ok {
		return repo.ErrNotFound
	}
	if existed.Version != taskToSave.Version {
		logger.Warn("Repository: Конфликт версий при сохранении задачи")
		return repo.ErrVersionConflict
	}

	now := time.Now()
	taskToSave.UpdatedAt = &now
	taskToSave.Version++
	taskToSave.CreatedAt = existed.CreatedAt
	taskToSave.SortChecklist()
	s.storage[taskToSave.UUID] = taskToSave.Clone()

	return nil
}

func (s *TaskStorage) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	taskToGet, ok := s.storage[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return taskToGet.Clone(), nil
}

// полное удаление вместе с чек-листом
func (s *TaskStorage) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return repo.NewPersistenceError("delete", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.storage[id]; !ok {
		return repo.ErrNotFound
	}

	delete(s.storage, id)
	for ind, val := range s.ids {
		if val == id {
			s.ids = append(s.ids[:ind], s.ids[ind+1:]...)
			break
		}
	}
	return nil
}

func (s *TaskStorage) Fetch(ctx context.Context, query task.Query) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := make([]*task.Task, 0, len(s.ids))
	for _, id := range s.ids {
		res = append(res, s.storage[id].Clone())
	}

	return query.Apply(res), nil
}

// задачи с запланированным уведомлением, для фоновой сверки.
// Порядок - порядок создания, offset пропускает первые задачи выборки.
func (s *TaskStorage) GetWithNotification(ctx context.Context, limit, offset int) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var tasks []*task.Task
	skipped := 0
	for _, id := range s.ids {
		if len(tasks) >= limit {
			break
		}
		t := s.storage[id]
		if t.NotificationID == nil {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		tasks = append(tasks, t.Clone())
	}

	return tasks, nil
}
