package notification

import (
	"errors"
	"fmt"
)

var ErrSchedulingFailed = errors.New("не удалось запланировать уведомление")
var ErrInvalidDate = errors.New("время уведомления уже прошло")

// SchedulingError - отказ планировщика. Задача при этом сохраняется,
// а ссылка на уведомление остаётся пустой.
type SchedulingError struct {
	Cause error
}

func (e *SchedulingError) Error() string {
	if e.Cause == nil {
		return ErrSchedulingFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSchedulingFailed.Error(), e.Cause.Error())
}

func (e *SchedulingError) Unwrap() error {
	return e.Cause
}

// Is позволяет сравнивать любую ошибку планирования с ErrSchedulingFailed
func (e *SchedulingError) Is(target error) bool {
	return target == ErrSchedulingFailed
}

func NewSchedulingError(cause error) error {
	return &SchedulingError{Cause: cause}
}

func IsSchedulingError(err error) bool {
	var se *SchedulingError
	return errors.As(err, &se)
}
