package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/temp-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/temp-storage/internal/service"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, err error) {
	if se, ok := service.AsError(err); ok {
		apierrors.WriteError(w, se.StatusCode, se.Code, se.Message)
		return
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		apierrors.FileTooLarge(w, "Размер запроса превышает допустимый")
		return
	}
	apierrors.InternalError(w, "Внутренняя ошибка сервера")
}
