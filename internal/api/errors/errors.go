// Пакет errors - ответы с ошибками в едином формате temp-storage.
// Формат: {"error": "<описание>", "code": "<КОД>"}; для 401 добавляется
// поле "message" с подсказкой. Все HTTP-ответы с ошибками должны
// использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib, пакет импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeUpstreamFetchError  = "UPSTREAM_FETCH_ERROR"
	CodeStorageIOError      = "STORAGE_IO_ERROR"
	CodeReconcileInProgress = "RECONCILE_IN_PROGRESS"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// errorBody - тело ответа ошибки.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// WriteError записывает ответ ошибки.
// statusCode - HTTP статус-код, code - машиночитаемый код, message - описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	writeBody(w, statusCode, errorBody{Error: message, Code: code})
}

func writeBody(w http.ResponseWriter, statusCode int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// ValidationError - 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound - 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized - 401 неверный или отсутствующий API-ключ.
// hint попадает в поле "message".
func Unauthorized(w http.ResponseWriter, message, hint string) {
	writeBody(w, http.StatusUnauthorized, errorBody{
		Error:   message,
		Code:    CodeUnauthorized,
		Message: hint,
	})
}

// MethodNotAllowed - 405 метод не поддерживается.
func MethodNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, message)
}

// FileTooLarge - 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// ReconcileInProgress - 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// NotImplemented - 501 функция не поддерживается.
func NotImplemented(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotImplemented, CodeNotImplemented, message)
}

// InternalError - 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
