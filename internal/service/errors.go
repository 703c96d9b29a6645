// Пакет service - бизнес-логика temp-storage: очистка по сроку хранения,
// приём файлов (загрузка и скачивание по URL), выдача файлов,
// сверка хранилища и мониторинг зависимостей.
package service

import (
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/temp-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/temp-storage/internal/fetcher"
)

// Kind - категория ошибки сервисного слоя.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindPayloadTooLarge Kind = "PayloadTooLarge"
	KindNotFound        Kind = "NotFound"
	KindUpstreamFetch   Kind = "UpstreamFetchError"
	KindStorageIO       Kind = "StorageIOError"
	KindConflict        Kind = "Conflict"
)

// Error - ошибка сервиса с HTTP-кодом и машиночитаемым кодом.
type Error struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError извлекает *Error из цепочки.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsKind проверяет категорию ошибки.
func IsKind(err error, kind Kind) bool {
	se, ok := AsError(err)
	return ok && se.Kind == kind
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, StatusCode: http.StatusBadRequest, Code: apierrors.CodeValidationError, Message: message}
}

func payloadTooLarge(message string) *Error {
	return &Error{Kind: KindPayloadTooLarge, StatusCode: http.StatusRequestEntityTooLarge, Code: apierrors.CodeFileTooLarge, Message: message}
}

func notFound(message string) *Error {
	return &Error{Kind: KindNotFound, StatusCode: http.StatusNotFound, Code: apierrors.CodeNotFound, Message: message}
}

func upstreamError(err error) *Error {
	return &Error{
		Kind:       KindUpstreamFetch,
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeUpstreamFetchError,
		Message:    fmt.Sprintf("Не удалось загрузить файл по URL: %v", err),
		Err:        err,
	}
}

func storageError(message string, err error) *Error {
	return &Error{Kind: KindStorageIO, StatusCode: http.StatusInternalServerError, Code: apierrors.CodeStorageIOError, Message: message, Err: err}
}

func conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, StatusCode: http.StatusConflict, Code: code, Message: message}
}

// fetchError переводит ошибки fetcher в ошибки сервиса.
func fetchError(err error, maxSize int64) *Error {
	switch {
	case errors.Is(err, fetcher.ErrInvalidURL):
		return validationError(err.Error())
	case errors.Is(err, fetcher.ErrTooLarge):
		return payloadTooLarge(fmt.Sprintf("Размер файла превышает максимум %d байт", maxSize))
	default:
		return upstreamError(err)
	}
}
