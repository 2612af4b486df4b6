package service

import (
	"context"
	"errors"
	"fmt"

	"zapis/internal/database"
)

var (
	// ErrValidation marks input that breaks a business rule.
	ErrValidation = errors.New("validation failed")
	// ErrConflict means the slot was taken by someone else.
	ErrConflict = errors.New("slot is no longer available")
	ErrNotFound = errors.New("not found")
	// ErrTransient means the store did not answer in time or failed; the
	// caller may retry and no user data was lost.
	ErrTransient         = errors.New("service temporarily unavailable")
	ErrNoSession         = errors.New("no active booking session")
	ErrNotReady          = errors.New("booking session is not ready for confirmation")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// storeError maps store errors onto service errors.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrConflict):
		return ErrConflict
	case errors.Is(err, database.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, database.ErrInvalidTransition):
		return ErrInvalidTransition
	case errors.Is(err, context.Canceled):
		return err
	default:
		return transient(err)
	}
}

// UserMessage returns text that is safe to show to an end user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "Это время уже заняли. Пожалуйста, выберите другое."
	case errors.Is(err, ErrTransient):
		return "Сервис временно недоступен. Попробуйте еще раз через несколько минут."
	case errors.Is(err, ErrNoSession):
		return "Сессия записи не найдена. Начните запись заново."
	case errors.Is(err, ErrNotReady):
		return "Сначала заполните все данные записи."
	case errors.Is(err, ErrValidation):
		return "Проверьте введенные данные."
	case errors.Is(err, ErrNotFound):
		return "Запись не найдена."
	case errors.Is(err, ErrInvalidTransition):
		return "Действие недоступно для заявки в текущем статусе."
	default:
		return "Произошла ошибка. Попробуйте позже."
	}
}
