package repository

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("задача не найдена")
var ErrVersionConflict = errors.New("конфликт версий")

// PersistenceError - сбой записи в хранилище, операция над задачей не состоялась
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ошибка хранилища (%s): %s", e.Op, e.Err.Error())
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
