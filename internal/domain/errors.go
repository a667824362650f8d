package domain

import "errors"

// Типизированные ошибки ядра. Сервисы возвращают их (при необходимости
// оборачивая через fmt.Errorf с %w), HTTP-слой сопоставляет со статусами.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("access denied")
	ErrDuplicateName    = errors.New("name already exists in this location")
	ErrValidation       = errors.New("invalid request")
	ErrStorageExhausted = errors.New("all storage backends failed")
)
