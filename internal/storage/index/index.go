// Пакет index - потокобезопасное in-memory зеркало документа метаданных.
//
// Индекс заменяется целиком после каждого изменения документа
// (подписка metastore.Store.OnChange) и обслуживает дешёвые запросы:
// количество записей для /health, суммарный объём для метрик,
// отсортированную выборку для /status.
package index

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
)

// Index - копия записей документа под sync.RWMutex.
type Index struct {
	mu        sync.RWMutex
	files     map[string]*model.FileRecord // file_id → запись
	totalSize int64
	ready     bool // индекс хотя бы раз заполнен
	logger    *slog.Logger
}

// New создаёт пустой индекс. Для заполнения вызовите Replace.
func New(logger *slog.Logger) *Index {
	return &Index{
		files:  make(map[string]*model.FileRecord),
		logger: logger.With(slog.String("component", "index")),
	}
}

// Replace заменяет содержимое индекса копией records.
func (idx *Index) Replace(records map[string]*model.FileRecord) {
	files := make(map[string]*model.FileRecord, len(records))
	var total int64
	for id, rec := range records {
		files[id] = rec.Clone()
		total += rec.SizeBytes
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	first := !idx.ready
	idx.files = files
	idx.totalSize = total
	idx.ready = true

	if first {
		idx.logger.Info("Индекс метаданных построен", slog.Int("files", len(files)))
	}
}

// IsReady возвращает true, если индекс был заполнен.
func (idx *Index) IsReady() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ready
}

// Get возвращает копию записи или nil.
func (idx *Index) Get(fileID string) *model.FileRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rec, ok := idx.files[fileID]
	if !ok {
		return nil
	}
	return rec.Clone()
}

// List возвращает страницу записей, отсортированных по времени создания
// (новые первые), и общее количество записей.
// limit = 0 - без ограничения.
func (idx *Index) List(limit, offset int) ([]*model.FileRecord, int) {
	idx.mu.RLock()
	all := make([]*model.FileRecord, 0, len(idx.files))
	for _, rec := range idx.files {
		all = append(all, rec.Clone())
	}
	idx.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].FileID < all[j].FileID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total
	}

	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total
}

// Count возвращает количество записей.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.files)
}

// TotalSize возвращает суммарный размер записей в байтах.
func (idx *Index) TotalSize() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.totalSize
}

// CountExpired возвращает количество записей, истёкших к моменту now
// (ещё не удалённых очисткой).
func (idx *Index) CountExpired(now time.Time) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	count := 0
	for _, rec := range idx.files {
		if rec.IsExpired(now) {
			count++
		}
	}
	return count
}
