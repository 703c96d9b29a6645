package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/metastore"
)

// Бизнес-метрики
var (
	// filesTotal - текущее количество записей.
	filesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ts_files_total",
		Help: "Текущее количество хранимых файлов",
	})

	// storageBytes - суммарный размер хранимых файлов.
	storageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ts_storage_bytes",
		Help: "Суммарный размер хранимых файлов в байтах",
	})

	// operationsTotal - файловые операции по типу и результату.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ts_operations_total",
		Help: "Общее количество файловых операций",
	}, []string{"operation", "result"})
)

// ObserveDocument обновляет gauge-метрики по состоянию документа.
// Подписывается на metastore.Store.OnChange.
func ObserveDocument(doc metastore.Document, _ []*model.FileRecord) {
	filesTotal.Set(float64(len(doc)))
	storageBytes.Set(float64(doc.TotalSize()))
}
