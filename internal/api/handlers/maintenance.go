// maintenance.go - обработчик POST /maintenance/reconcile.
// Делегирует сверку в ReconcileService.
package handlers

import (
	"context"
	"net/http"

	"github.com/bigkaa/goartstore/temp-storage/internal/service"
)

// ReconcileRunner - запуск сверки.
// Позволяет тестировать handler без полного ReconcileService.
type ReconcileRunner interface {
	RunOnce(ctx context.Context) (*service.ReconcileReport, error)
}

// MaintenanceHandler - обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler}
}

// Reconcile запускает синхронную сверку и возвращает отчёт.
// Если сверка уже выполняется - 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.RunOnce(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
