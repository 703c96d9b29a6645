// reconcile.go - сверка хранилища содержимого с документом метаданных.
//
// Обнаруживает проблемы:
//   - orphaned_file: объект в хранилище без записи (старше grace-периода) - удаляется
//   - missing_file: запись без объекта - запись удаляется
//   - size_mismatch: размер объекта не совпадает с записью - только отчёт
//
// Запускается вручную (POST /maintenance/reconcile) и фоновым циклом
// с интервалом TS_RECONCILE_INTERVAL.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/goartstore/temp-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/content"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/metastore"
)

// Prometheus метрики сверки
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ts_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ts_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// DefaultOrphanGrace - минимальный возраст объекта без записи для удаления.
// Защищает объекты, для которых приём ещё не дошёл до вставки метаданных.
const DefaultOrphanGrace = time.Minute

// Типы проблем сверки.
const (
	IssueOrphanedFile = "orphaned_file"
	IssueMissingFile  = "missing_file"
	IssueSizeMismatch = "size_mismatch"
)

// ReconcileIssue - обнаруженная проблема.
type ReconcileIssue struct {
	Type        string `json:"type"`
	FileID      string `json:"file_id,omitempty"`
	Path        string `json:"path"`
	Description string `json:"description"`
	// Resolved - проблема устранена автоматически
	Resolved bool `json:"resolved"`
}

// ReconcileSummary - сводка по типам.
type ReconcileSummary struct {
	Ok             int `json:"ok"`
	OrphanedFiles  int `json:"orphaned_files"`
	MissingFiles   int `json:"missing_files"`
	SizeMismatches int `json:"size_mismatches"`
}

// ReconcileReport - результат сверки.
type ReconcileReport struct {
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
	FilesChecked int              `json:"files_checked"`
	Issues       []ReconcileIssue `json:"issues"`
	Summary      ReconcileSummary `json:"summary"`
}

// ReconcileService - сервис сверки.
type ReconcileService struct {
	meta     *metastore.Store
	content  content.Store
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	meta *metastore.Store,
	contentStore content.Store,
	interval time.Duration,
	grace time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		meta:     meta,
		content:  contentStore,
		interval: interval,
		grace:    grace,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновый цикл. При interval <= 0 ничего не делает.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.interval <= 0 {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(loopCtx)

	rs.logger.Info("Сверка запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновый цикл.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Сверка остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rs.RunOnce(ctx); err != nil && !IsKind(err, KindConflict) {
				rs.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет одну сверку. Если сверка уже выполняется -
// возвращает ошибку KindConflict.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, conflict(apierrors.CodeReconcileInProgress, "Сверка уже выполняется")
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	report := &ReconcileReport{StartedAt: time.Now().UTC(), Issues: []ReconcileIssue{}}
	rs.logger.Info("Сверка начата")

	snap, err := rs.meta.Snapshot(ctx)
	if err != nil {
		return nil, storageError("Ошибка чтения метаданных", err)
	}
	objects, err := rs.content.List(ctx)
	if err != nil {
		return nil, storageError("Ошибка листинга хранилища", err)
	}

	byName := make(map[string]content.Object, len(objects))
	for _, o := range objects {
		byName[o.Name] = o
	}
	referenced := make(map[string]bool, len(snap))

	var missing []string
	for id, rec := range snap {
		referenced[rec.StoredPath] = true

		obj, ok := byName[rec.StoredPath]
		switch {
		case !ok:
			missing = append(missing, id)
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueMissingFile,
				FileID:      id,
				Path:        rec.StoredPath,
				Description: "Запись метаданных без содержимого",
				Resolved:    true,
			})
			report.Summary.MissingFiles++
		case obj.Size != rec.SizeBytes:
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueSizeMismatch,
				FileID:      id,
				Path:        rec.StoredPath,
				Description: "Размер содержимого не совпадает с записью",
			})
			report.Summary.SizeMismatches++
		default:
			report.Summary.Ok++
		}
	}

	if len(missing) > 0 {
		if _, err := rs.meta.Remove(ctx, missing...); err != nil {
			return nil, storageError("Ошибка удаления записей без содержимого", err)
		}
	}

	cutoff := time.Now().Add(-rs.grace)
	for _, obj := range objects {
		if referenced[obj.Name] || obj.ModTime.After(cutoff) {
			continue
		}

		issue := ReconcileIssue{
			Type:        IssueOrphanedFile,
			Path:        obj.Name,
			Description: "Содержимое без записи метаданных",
		}
		if err := rs.content.Delete(ctx, obj.Name); err != nil {
			rs.logger.Error("Ошибка удаления осиротевшего объекта",
				slog.String("path", obj.Name),
				slog.String("error", err.Error()),
			)
		} else {
			issue.Resolved = true
		}
		report.Issues = append(report.Issues, issue)
		report.Summary.OrphanedFiles++
	}

	report.FilesChecked = len(snap)
	report.CompletedAt = time.Now().UTC()
	duration := report.CompletedAt.Sub(report.StartedAt)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(issue.Type).Inc()
	}

	rs.logger.Info("Сверка завершена",
		slog.Int("files_checked", report.FilesChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Int("ok", report.Summary.Ok),
		slog.Duration("duration", duration),
	)

	return report, nil
}
