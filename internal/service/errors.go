package service

import (
	"errors"
	"fmt"
)

type RepoType string

const (
	ResourceTask          RepoType = "задача"
	ResourceChecklistItem RepoType = "пункт чек-листа"
)

var ErrInvalidReminderTime = errors.New("время напоминания уже прошло")
var ErrReminderWithoutDueDate = errors.New("напоминание требует срок задачи")

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key    string
	Paylod any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:    key,
		Paylod: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Paylod
	}

	return busErr
}

func NewNotFound(resource RepoType, id string) *BusinessError {
	return &BusinessError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s %s не найден(а)", resource, id),
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

func NewVersionConflict(id string, err error) *BusinessError {
	return &BusinessError{
		Code:    "VERSION_CONFLICT",
		Message: fmt.Sprintf("задача %s была изменена параллельно", id),
		Details: map[string]any{"id": id},
		Err:     err,
	}
}

func IsBusinessError(err error, code string) bool {
	var be *BusinessError
	return errors.As(err, &be) && be.Code == code
}

// ReminderError - задача сохранена, но напоминание поставить не удалось.
// Возвращается вместе с сохранённой задачей.
type ReminderError struct {
	TaskID string
	Err    error
}

func (e *ReminderError) Error() string {
	return fmt.Sprintf("задача %s сохранена без напоминания: %s", e.TaskID, e.Err.Error())
}

func (e *ReminderError) Unwrap() error {
	return e.Err
}

func IsReminderError(err error) bool {
	var re *ReminderError
	return errors.As(err, &re)
}
