package handlers

import (
	"errors"
	"net/http"
	"simpleTask/internal/handlers/dto"
	"simpleTask/internal/logger"
	"simpleTask/internal/models/task"
	"simpleTask/internal/service"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TaskHandler struct {
	TaskService Service
	now         func() time.Time
}

func NewTaskHandler(taskService Service) *TaskHandler {
	return &TaskHandler{
		TaskService: taskService,
		now:         time.Now,
	}
}

// WithClock подменяет часы для проверки времени напоминания
func (h *TaskHandler) WithClock(now func() time.Time) *TaskHandler {
	h.now = now
	return h
}

// Routes регистрирует маршруты задач и уведомлений
func (h *TaskHandler) Routes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/", h.PostTask)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTaskByID)
			r.Put("/", h.UpdateTaskByID)
			r.Delete("/", h.DeleteTaskByID)
			r.Post("/done", h.MarkDone)
			r.Post("/undone", h.MarkUndone)
			r.Post("/checklist", h.AddChecklistItem)
			r.Post("/checklist/{itemID}/toggle", h.ToggleChecklistItem)
			r.Delete("/checklist/{itemID}", h.RemoveChecklistItem)
		})
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/permission", h.GetPermission)
		r.Post("/permission", h.RequestPermission)
		r.Get("/pending", h.GetPendingNotifications)
		r.Delete("/", h.CancelAllNotifications)
	})
	r.Put("/settings/notifications", h.SetNotificationSettings)

	r.Get("/health", h.HealthCheck)
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	values := r.URL.Query()
	query := task.Query{Search: strings.TrimSpace(values.Get("q"))}

	if raw := values.Get("done"); raw != "" {
		done, err := strconv.ParseBool(raw)
		if err != nil {
			validationFailed(w, r, "done", "wrong_value", "неверное значение done: "+raw)
			return
		}
		query.Done = &done
	}

	if raw := values.Get("category"); raw != "" {
		category := task.Category(strings.ToLower(raw))
		if !category.Valid() {
			validationFailed(w, r, "category", "wrong_value", "неизвестная категория: "+raw)
			return
		}
		query.Category = category
	}

	sort, err := task.ParseSort(values.Get("sort"))
	if err != nil {
		validationFailed(w, r, "sort", "wrong_value", err.Error())
		return
	}
	query.Sort = sort

	tasks, err := h.TaskService.ListTasks(r.Context(), query)
	if err != nil {
		handleServiceError(w, err, "list_tasks")
		return
	}

	logger.Info("HTTP_OUT: Задачи получены",
		zap.Int("count", len(tasks)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, dto.FromTaskList(tasks))
}

func (h *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.CreateTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	if strings.TrimSpace(request.Title) == "" {
		validationFailed(w, r, "title", "empty_field", "название не может быть пустым")
		return
	}

	category := task.Category(strings.ToLower(request.Category))
	if category != "" && !category.Valid() {
		validationFailed(w, r, "category", "wrong_value", "неизвестная категория: "+request.Category)
		return
	}

	if err := service.ValidateReminder(request.Reminder, request.DueDate, h.now()); err != nil {
		handleBusinessError(w, service.ReminderValidationError(err), "create_task")
		return
	}

	created, err := h.TaskService.CreateTask(r.Context(), service.CreateInput{
		Title:       request.Title,
		Description: request.Description,
		DueDate:     request.DueDate,
		Category:    category,
		Reminder:    request.Reminder,
		Checklist:   request.Checklist,
	})
	if created == nil {
		if err == nil {
			err = errors.New("сервис не вернул задачу")
		}
		handleServiceError(w, err, "create_task")
		return
	}

	response := dto.FromTask(created)
	if err != nil {
		response.Warning = warningFor(err)
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.String("task_id", response.UUID),
		zap.Bool("has_notification", response.HasNotification),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithBody(w, http.StatusCreated, response)
}

func (h *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	t, err := h.TaskService.GetTaskByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, "get_task")
		return
	}

	responseWithBody(w, http.StatusOK, dto.FromTask(t))
}

func (h *TaskHandler) UpdateTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var request dto.UpdateTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	var options []task.TaskOption

	if request.Title != nil {
		title := strings.TrimSpace(*request.Title)
		if title == "" {
			validationFailed(w, r, "title", "empty_field", "название не может быть пустым")
			return
		}
		options = append(options, task.WithTitle(title))
	}
	if request.Description != nil {
		options = append(options, task.WithDescription(*request.Description))
	}
	if request.Category != nil {
		category := task.Category(strings.ToLower(*request.Category))
		if !category.Valid() {
			validationFailed(w, r, "category", "wrong_value", "неизвестная категория: "+*request.Category)
			return
		}
		options = append(options, task.WithCategory(category))
	}
	if request.IsDone != nil {
		options = append(options, task.WithDone(*request.IsDone))
	}

	dueChanged := request.ClearDueDate || request.DueDate != nil
	if dueChanged || request.Reminder != nil {
		// проверяем напоминание с учётом текущих значений задачи
		current, err := h.TaskService.GetTaskByID(r.Context(), id)
		if err != nil {
			handleServiceError(w, err, "update_task")
			return
		}

		due := current.DueDate
		if request.ClearDueDate {
			due = nil
		} else if request.DueDate != nil {
			due = request.DueDate
		}
		rem := current.Reminder
		if request.Reminder != nil {
			rem = *request.Reminder
		}

		if err := service.ValidateReminder(rem, due, h.now()); err != nil {
			handleBusinessError(w, service.ReminderValidationError(err), "update_task")
			return
		}

		if dueChanged {
			options = append(options, task.WithDueDate(due))
		}
		if request.Reminder != nil {
			options = append(options, task.WithReminder(rem))
		}
	}

	updated, err := h.TaskService.UpdateTask(r.Context(), id, options...)
	h.respondMutation(w, updated, err, "update_task", start)
}

func (h *TaskHandler) DeleteTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.TaskService.DeleteTask(r.Context(), id); err != nil {
		handleServiceError(w, err, "delete_task")
		return
	}

	logger.Info("HTTP_OUT: Задача удалена",
		zap.String("task_id", id.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusNoContent))

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) MarkDone(w http.ResponseWriter, r *http.Request) {
	h.setDone(w, r, true)
}

func (h *TaskHandler) MarkUndone(w http.ResponseWriter, r *http.Request) {
	h.setDone(w, r, false)
}

func (h *TaskHandler) setDone(w http.ResponseWriter, r *http.Request, done bool) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	updated, err := h.TaskService.SetDone(r.Context(), id, done)
	h.respondMutation(w, updated, err, "set_done", start)
}

func (h *TaskHandler) AddChecklistItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var request dto.ChecklistItemRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Title) == "" {
		validationFailed(w, r, "title", "empty_field", "название пункта не может быть пустым")
		return
	}

	updated, err := h.TaskService.AddChecklistItem(r.Context(), id, request.Title)
	h.respondMutation(w, updated, err, "add_checklist_item", start)
}

func (h *TaskHandler) ToggleChecklistItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := parseUUIDParam(w, r, "itemID")
	if !ok {
		return
	}

	updated, err := h.TaskService.ToggleChecklistItem(r.Context(), id, itemID)
	h.respondMutation(w, updated, err, "toggle_checklist_item", start)
}

func (h *TaskHandler) RemoveChecklistItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := parseUUIDParam(w, r, "itemID")
	if !ok {
		return
	}

	updated, err := h.TaskService.RemoveChecklistItem(r.Context(), id, itemID)
	h.respondMutation(w, updated, err, "remove_checklist_item", start)
}

// respondMutation отвечает на изменение задачи. Задача, сохранённая без
// напоминания, возвращается с предупреждением и статусом 200.
func (h *TaskHandler) respondMutation(w http.ResponseWriter, updated *task.Task, err error, operation string, start time.Time) {
	if updated == nil {
		if err == nil {
			err = errors.New("сервис не вернул задачу")
		}
		handleServiceError(w, err, operation)
		return
	}

	response := dto.FromTask(updated)
	if err != nil {
		response.Warning = warningFor(err)
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.String("operation", operation),
		zap.String("task_id", response.UUID),
		zap.Bool("has_notification", response.HasNotification),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, response)
}

// warningFor превращает ошибку напоминания в текст предупреждения
func warningFor(err error) string {
	if service.IsReminderError(err) {
		logger.Warn("HTTP: Задача сохранена без напоминания", zap.Error(err))
		return "напоминание не поставлено: " + err.Error()
	}
	logger.Error("HTTP: Неожиданная ошибка вместе с задачей", err)
	return err.Error()
}

func (h *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.TaskService.HealthCheck(r.Context()); err != nil {
		logger.Error("HTTP: Сервис нездоров", err)
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "unhealthy"),
			toPayload("service", "simple-task"),
			toPayload("error", err.Error()),
		)
		return
	}

	responseWithJSON(w, http.StatusOK,
		toPayload("status", "healthy"),
		toPayload("service", "simple-task"),
		toPayload("time", time.Now().UTC().Format(time.RFC3339)),
	)
}
