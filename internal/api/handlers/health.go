// health.go - обработчики health endpoints: /health, /health/live, /health/ready.
package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/goartstore/temp-storage/internal/config"
)

// statusFail - строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// StorageCounter - количество записей для /health.
type StorageCounter interface {
	Count() int
}

// MetadataChecker - проверка загрузки метаданных.
type MetadataChecker interface {
	Ready(ctx context.Context) error
}

// WritableChecker - проверка записи в хранилище содержимого.
type WritableChecker interface {
	CheckWritable() error
}

// DependencyHealth - состояние внешних зависимостей (topologymetrics).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler реализует health endpoints.
type HealthHandler struct {
	counter StorageCounter
	meta    MetadataChecker
	content WritableChecker
	deps    DependencyHealth
	walDir  string
	nowFunc func() time.Time
}

// NewHealthHandler создаёт обработчик health endpoints.
// content и deps могут быть nil: соответствующие проверки пропускаются.
func NewHealthHandler(counter StorageCounter, meta MetadataChecker, content WritableChecker, deps DependencyHealth, walDir string) *HealthHandler {
	return &HealthHandler{
		counter: counter,
		meta:    meta,
		content: content,
		deps:    deps,
		walDir:  walDir,
		nowFunc: time.Now,
	}
}

// Health обрабатывает GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"timestamp":     h.nowFunc().UTC().Format(time.RFC3339),
		"storage_count": h.counter.Count(),
	})
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.nowFunc().UTC().Format(time.RFC3339),
		"version":   config.Version,
		"service":   "temp-storage",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: хранилище содержимого, метаданные, журнал, зависимости.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	contentCheck := h.checkContent()
	if contentCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	metaCheck := map[string]any{"status": "ok"}
	if err := h.meta.Ready(r.Context()); err != nil {
		metaCheck = map[string]any{"status": statusFail, "message": err.Error()}
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	walCheck := h.checkWAL()
	if walCheck["status"] != "ok" && overallStatus != statusFail {
		overallStatus = "degraded"
	}

	checks := map[string]any{
		"content":  contentCheck,
		"metadata": metaCheck,
		"wal":      walCheck,
	}

	if h.deps != nil {
		deps := h.deps.Health()
		checks["dependencies"] = deps
		for _, healthy := range deps {
			if !healthy && overallStatus != statusFail {
				overallStatus = "degraded"
			}
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": h.nowFunc().UTC().Format(time.RFC3339),
		"version":   config.Version,
		"service":   "temp-storage",
		"checks":    checks,
	})
}

// checkContent проверяет запись в хранилище содержимого.
func (h *HealthHandler) checkContent() map[string]any {
	if h.content == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}
	if err := h.content.CheckWritable(); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Хранилище недоступно для записи: " + err.Error(),
		}
	}
	return map[string]any{"status": "ok"}
}

// checkWAL проверяет доступность директории журнала на запись.
func (h *HealthHandler) checkWAL() map[string]any {
	if h.walDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.walDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория WAL недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{"status": "ok"}
}
