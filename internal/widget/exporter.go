package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"simpleTask/internal/logger"
	"simpleTask/internal/models/task"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// FileName - имя файла сводки по умолчанию
const FileName = "nextTask.json"

// Exporter пишет сводку в фоне. Export не блокирует: если предыдущая
// запись ещё идёт, в очереди остаётся только последний список.
type Exporter struct {
	path  string
	lock  *flock.Flock
	queue chan []*task.Task
	now   func() time.Time

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

func NewExporter(path string) *Exporter {
	return &Exporter{
		path:  path,
		lock:  flock.New(lockPath(path)),
		queue: make(chan []*task.Task, 1),
		now:   time.Now,
		done:  make(chan struct{}),
	}
}

func lockPath(path string) string {
	return path + ".lock"
}

func (e *Exporter) Path() string {
	return e.path
}

// Start запускает фоновую запись до отмены ctx или вызова Stop
func (e *Exporter) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		logger.Info("Widget: Экспорт сводки запущен", zap.String("path", e.path))

		for {
			select {
			case <-ctx.Done():
				e.drain()
				return
			case <-e.done:
				e.drain()
				return
			case tasks := <-e.queue:
				e.write(tasks)
			}
		}
	}()
}

// drain дописывает последний список перед остановкой
func (e *Exporter) drain() {
	select {
	case tasks := <-e.queue:
		e.write(tasks)
	default:
	}
	logger.Info("Widget: Экспорт сводки остановлен")
}

func (e *Exporter) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
	e.wg.Wait()
}

func (e *Exporter) Export(tasks []*task.Task) {
	select {
	case e.queue <- tasks:
		return
	default:
	}
	select {
	case <-e.queue:
	default:
	}
	select {
	case e.queue <- tasks:
	default:
	}
}

func (e *Exporter) write(tasks []*task.Task) {
	snapshot := Build(tasks, e.now())
	if err := e.Write(snapshot); err != nil {
		logger.Warn("Widget: Не удалось сохранить сводку", zap.Error(err), zap.String("path", e.path))
		return
	}
	logger.Debug("Widget: Сводка сохранена",
		zap.Int("tasks", len(snapshot.Tasks)),
		zap.Int("important", snapshot.ImportantCount),
		zap.Int("work", snapshot.WorkCount),
		zap.Int("private", snapshot.PrivateCount))
}

// Write атомарно заменяет файл сводки: читатель видит либо старую, либо новую версию
func (e *Exporter) Write(snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("сериализация сводки: %w", err)
	}

	dir := filepath.Dir(e.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("создание каталога %s: %w", dir, err)
	}

	if err := e.lock.Lock(); err != nil {
		return fmt.Errorf("блокировка %s: %w", e.path, err)
	}
	defer func() { _ = e.lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, filepath.Base(e.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("временный файл: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("запись сводки: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("запись сводки: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("запись сводки: %w", err)
	}

	if err := os.Rename(tmp.Name(), e.path); err != nil {
		return fmt.Errorf("замена файла сводки: %w", err)
	}
	return nil
}

// Load читает сводку под разделяемой блокировкой
func Load(path string) (*Snapshot, error) {
	lock := flock.New(lockPath(path))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("блокировка %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение сводки: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("разбор сводки: %w", err)
	}
	return &s, nil
}
