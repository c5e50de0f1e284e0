package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"simpleTask/internal/config"
	"simpleTask/internal/handlers"
	"simpleTask/internal/logger"
	"simpleTask/internal/middleware"
	"simpleTask/internal/notification/local"
	"simpleTask/internal/repository/task/inmemory"
	"simpleTask/internal/repository/task/postgres"
	"simpleTask/internal/repository/task/sqlite"
	"simpleTask/internal/service"
	"simpleTask/internal/widget"
	"simpleTask/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config     *config.Config
	server     *http.Server
	router     *chi.Mux
	repository service.TaskRepository
	scheduler  *local.Scheduler
	service    *service.TaskService
	exporter   *widget.Exporter
	worker     *worker.ReminderWorker
	shutdowns  []func() // функции для graceful shutdown, вызываются в обратном порядке
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func(), 0),
	}
}

func (a *App) Init(ctx context.Context) (*App, error) {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return nil, fmt.Errorf("инициализация логгера: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() {
		logger.Info("App: Завершение работы логгирования...")
		logger.Sync()
	})

	if err := a.initRepository(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.scheduler = local.New(a.config.Notifications.Enabled)
	a.shutdowns = append(a.shutdowns, func() {
		logger.Info("App: Остановка таймеров уведомлений...")
		a.scheduler.Stop()
	})

	var opts []service.Option
	if a.config.Widget.Enabled {
		a.exporter = widget.NewExporter(a.config.Widget.Path)
		opts = append(opts, service.WithExporter(a.exporter))
	}
	a.service = service.NewTaskService(a.repository, a.scheduler, opts...)

	interval := a.config.Worker.Interval
	batch := a.config.Worker.BatchSize
	a.worker = worker.NewReminderWorker(a.repository, a.scheduler, a.service, &interval, &batch)

	a.initRouter()

	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}

	logger.Info("App: Приложение инициализировано",
		zap.String("repository", a.config.Repository.Type),
		zap.Bool("notifications", a.config.Notifications.Enabled),
		zap.Bool("widget", a.config.Widget.Enabled))
	return a, nil
}

func (a *App) initRepository(ctx context.Context) error {
	switch a.config.Repository.Type {
	case config.RepositoryPostgres:
		storage, err := a.openPostgres(ctx)
		if err != nil {
			return err
		}
		if a.config.Database.AutoMigrate {
			if err := storage.Migrate(); err != nil {
				storage.Close()
				return fmt.Errorf("миграции: %w", err)
			}
		}
		a.repository = storage
		a.shutdowns = append(a.shutdowns, storage.Close)

	case config.RepositorySQLite:
		storage, err := sqlite.New(ctx, a.config.SQLite.Path)
		if err != nil {
			return fmt.Errorf("подключение к SQLite: %w", err)
		}
		a.repository = storage
		a.shutdowns = append(a.shutdowns, func() {
			if err := storage.Close(); err != nil {
				logger.Error("App: Ошибка закрытия SQLite", err)
			}
		})

	default:
		a.repository = inmemory.NewTaskStorage()
	}

	logger.Info("App: Хранилище готово", zap.String("type", a.config.Repository.Type))
	return nil
}

func (a *App) openPostgres(ctx context.Context) (*postgres.Storage, error) {
	db := a.config.Database
	storage, err := postgres.NewWithConfig(ctx, postgres.Config{
		URL:            db.URL,
		MaxConnections: db.MaxConnections,
		MinConnections: db.MinConnections,
		IdleTimeout:    db.IdleTimeout,
		ConnectRetries: db.ConnectRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	return storage, nil
}

func (a *App) initRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.config.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIdHeader},
		ExposedHeaders: []string{middleware.RequestIdHeader, "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))
	r.Use(middleware.RateLimit(a.config.Server.RateLimit))

	handlers.NewTaskHandler(a.service).Routes(r)
	if a.config.Widget.Enabled {
		r.Get("/widget", handlers.NewWidgetHandler(a.config.Widget.Path).GetWidget)
	}
	r.Handle("/metrics", middleware.MetricsHandler())

	a.router = r
}

// Handler отдаёт корневой маршрутизатор, используется в тестах
func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Service() *service.TaskService {
	return a.service
}

// Run запускает HTTP сервер, экспорт виджета и фоновую сверку уведомлений.
// Возвращается после отмены ctx и остановки всех компонентов.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	if a.exporter != nil {
		a.exporter.Start(gctx)
		defer a.exporter.Stop()
	}
	a.service.Refresh(ctx)

	g.Go(func() error {
		a.worker.Start(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("App: Сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP сервер: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("App: Остановка сервера...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("остановка сервера: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close выполняет функции остановки в обратном порядке, повторный вызов ничего не делает
func (a *App) Close() {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
	a.shutdowns = nil
}

// Migrate применяет или откатывает миграции PostgreSQL
func Migrate(ctx context.Context, cfg *config.Config, down bool) error {
	if cfg.Repository.Type != config.RepositoryPostgres {
		return fmt.Errorf("миграции доступны только для postgres, выбран %q", cfg.Repository.Type)
	}

	a := New(cfg)
	if err := logger.Init(cfg.Logging.Development); err != nil {
		return fmt.Errorf("инициализация логгера: %w", err)
	}
	defer logger.Sync()

	storage, err := a.openPostgres(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	if down {
		return storage.Down()
	}
	return storage.Migrate()
}
