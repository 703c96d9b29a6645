// sweep.go - очистка файлов с истёкшим сроком хранения.
//
// Sweep вызывается синхронно перед чтением метаданных (главная страница,
// скачивание, info, status) и перед приёмом нового файла. Дополнительно
// может работать фоновый цикл с интервалом TS_SWEEP_INTERVAL.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/temp-storage/internal/storage/content"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/metastore"
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_sweep_runs_total",
		Help: "Общее количество запусков очистки",
	})

	sweepEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_sweep_evicted_total",
		Help: "Общее количество файлов, удалённых по сроку хранения",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ts_sweep_duration_seconds",
		Help:    "Длительность очистки в секундах",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// SweepResult - результат одного прохода очистки.
type SweepResult struct {
	// Evicted - удалено записей
	Evicted int
	// Errors - ошибки удаления содержимого (запись остаётся до следующего прохода)
	Errors int
	// Duration - длительность
	Duration time.Duration
}

// Sweeper - очистка просроченных записей и их содержимого.
type Sweeper struct {
	meta     *metastore.Store
	content  content.Store
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper создаёт сервис очистки. interval используется только фоновым циклом.
func NewSweeper(meta *metastore.Store, contentStore content.Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		meta:     meta,
		content:  contentStore,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Sweep удаляет все записи с expires_at < now вместе с содержимым.
// Документ сохраняется один раз и только если что-то удалено.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{}

	err := s.meta.Update(ctx, func(doc metastore.Document) (bool, error) {
		now := time.Now().UTC()
		for id, rec := range doc {
			if !rec.IsExpired(now) {
				continue
			}

			if err := s.content.Delete(ctx, rec.StoredPath); err != nil {
				s.logger.Error("Ошибка удаления содержимого просроченного файла",
					slog.String("file_id", id),
					slog.String("stored_path", rec.StoredPath),
					slog.String("error", err.Error()),
				)
				result.Errors++
				continue
			}

			delete(doc, id)
			result.Evicted++
			s.logger.Debug("Просроченный файл удалён",
				slog.String("file_id", id),
				slog.String("filename", rec.DisplayName),
			)
		}
		return result.Evicted > 0, nil
	})

	result.Duration = time.Since(start)
	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())
	sweepEvictedTotal.Add(float64(result.Evicted))

	if err != nil {
		return result, storageError("Ошибка доступа к метаданным", err)
	}

	if result.Evicted > 0 || result.Errors > 0 {
		s.logger.Info("Очистка завершена",
			slog.Int("evicted", result.Evicted),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}
	return result, nil
}

// Start запускает фоновый цикл. При interval <= 0 ничего не делает.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(loopCtx)

	s.logger.Info("Фоновая очистка запущена",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый цикл и ждёт его завершения.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Фоновая очистка остановлена")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Ошибка фоновой очистки", slog.String("error", err.Error()))
			}
		}
	}
}
