// system.go - описание сервиса (GET /) и агрегированный статус (GET /status).
// Публичные endpoints без аутентификации.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/goartstore/temp-storage/internal/config"
	"github.com/bigkaa/goartstore/temp-storage/internal/domain/filename"
	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/temp-storage/internal/service"
)

// DiskUsageFunc возвращает ёмкость хранилища: total, used, available в байтах.
type DiskUsageFunc func() (total, used, available int64, err error)

// SystemHandler - обработчик системных endpoints.
type SystemHandler struct {
	retrieve    *service.RetrieveService
	sweeper     *service.Sweeper
	maxFileSize int64
	retention   time.Duration
	diskUsage   DiskUsageFunc
	logger      *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
// diskUsage может быть nil (бэкенд s3): блок capacity не выводится.
func NewSystemHandler(
	retrieve *service.RetrieveService,
	sweeper *service.Sweeper,
	maxFileSize int64,
	retention time.Duration,
	diskUsage DiskUsageFunc,
	logger *slog.Logger,
) *SystemHandler {
	return &SystemHandler{
		retrieve:    retrieve,
		sweeper:     sweeper,
		maxFileSize: maxFileSize,
		retention:   retention,
		diskUsage:   diskUsage,
		logger:      logger.With(slog.String("component", "system_handler")),
	}
}

// Home обрабатывает GET / - описание сервиса.
func (h *SystemHandler) Home(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sweeper.Sweep(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "temp-storage",
		"version":     config.Version,
		"status":      "operational",
		"description": "Временное хранилище файлов со ссылками на скачивание",
		"features": map[string]any{
			"file_storage":     true,
			"upload_from_url":  true,
			"dual_api_keys":    true,
			"auto_cleanup":     true,
			"retention_hours":  h.retention.Hours(),
			"max_file_size_mb": model.SizeMB(h.maxFileSize),
		},
		"endpoints": map[string]string{
			"POST /upload":                "Загрузка файла (multipart, поле file)",
			"POST /convert":               "Алиас /upload",
			"POST /upload-from-url":       "Загрузка файла по URL",
			"GET /download/{id}":          "Скачивание файла",
			"GET /info/{id}":              "Сведения о файле",
			"GET /status":                 "Статус хранилища",
			"GET /health":                 "Проверка состояния",
			"POST /maintenance/reconcile": "Сверка хранилища",
		},
	})
}

// Status обрабатывает GET /status.
func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.retrieve.Status(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{
		"status":  "operational",
		"version": config.Version,
		"storage": map[string]any{
			"files_count":      st.FilesCount,
			"total_size_bytes": st.TotalSizeBytes,
			"total_size_mb":    model.SizeMB(st.TotalSizeBytes),
			"files":            st.Files,
		},
		"limits": map[string]any{
			"max_file_size_mb":  model.SizeMB(h.maxFileSize),
			"file_expiry_hours": h.retention.Hours(),
			"supported_formats": filename.KnownFormatsCount(),
		},
		"timestamp": st.Timestamp,
	}

	if h.diskUsage != nil {
		total, used, available, err := h.diskUsage()
		if err != nil {
			h.logger.Warn("Не удалось получить ёмкость хранилища", slog.String("error", err.Error()))
		} else {
			resp["capacity"] = map[string]int64{
				"total_bytes":     total,
				"used_bytes":      used,
				"available_bytes": available,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
