package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"simpleTask/internal/handlers/dto"
	"simpleTask/internal/logger"
	"simpleTask/internal/widget"

	"go.uber.org/zap"
)

func (h *TaskHandler) GetPermission(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	responseWithJSON(w, http.StatusOK,
		toPayload("granted", h.TaskService.NotificationsEnabled(r.Context())))
}

func (h *TaskHandler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	granted := h.TaskService.RequestNotificationPermission(r.Context())

	logger.Info("HTTP_OUT: Запрос разрешения обработан", zap.Bool("granted", granted))
	responseWithJSON(w, http.StatusOK, toPayload("granted", granted))
}

func (h *TaskHandler) SetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.NotificationSettingsRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	if err := h.TaskService.SetNotificationsEnabled(r.Context(), request.Enabled); err != nil {
		handleServiceError(w, err, "set_notifications")
		return
	}

	logger.Info("HTTP_OUT: Настройка уведомлений изменена", zap.Bool("enabled", request.Enabled))
	responseWithJSON(w, http.StatusOK, toPayload("enabled", request.Enabled))
}

func (h *TaskHandler) GetPendingNotifications(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	pending, err := h.TaskService.PendingNotifications(r.Context())
	if err != nil {
		handleServiceError(w, err, "pending_notifications")
		return
	}

	responseWithBody(w, http.StatusOK, dto.FromRequests(pending))
}

func (h *TaskHandler) CancelAllNotifications(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	cleared, err := h.TaskService.CancelAllNotifications(r.Context())
	if err != nil {
		handleServiceError(w, err, "cancel_notifications")
		return
	}

	logger.Info("HTTP_OUT: Уведомления сняты", zap.Int("cleared", cleared))
	responseWithJSON(w, http.StatusOK, toPayload("cleared", cleared))
}

// WidgetHandler отдаёт последний выгруженный снимок виджета
type WidgetHandler struct {
	path string
}

func NewWidgetHandler(path string) *WidgetHandler {
	return &WidgetHandler{path: path}
}

func (h *WidgetHandler) GetWidget(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	snapshot, err := widget.Load(h.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			responseWithError(w, http.StatusNotFound, "снимок виджета ещё не создан")
			return
		}
		logger.Error("HTTP: Не удалось прочитать снимок виджета", err, zap.String("path", h.path))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithBody(w, http.StatusOK, snapshot)
}
