// retrieve.go - выдача файлов и сведений о них.
//
// Запись, чьё содержимое отсутствует в хранилище, на всех путях чтения
// (download, info) удаляется, клиент получает NotFound.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/content"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/index"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/metastore"
)

// statusSampleSize - сколько записей показывает /status.
const statusSampleSize = 20

// Download - содержимое файла для ответа клиенту.
type Download struct {
	Content     []byte
	ContentType string
	DisplayName string
	Record      *model.FileRecord
}

// StatusFile - запись в выборке /status.
type StatusFile struct {
	ID             string  `json:"id"`
	Filename       string  `json:"filename"`
	SizeMB         float64 `json:"size_mb"`
	Type           string  `json:"type"`
	ExpiresInHours float64 `json:"expires_in_hours"`
}

// Status - агрегированное состояние хранилища.
type Status struct {
	FilesCount     int
	TotalSizeBytes int64
	Files          []StatusFile
	Timestamp      time.Time
}

// RetrieveService - шлюз выдачи файлов.
type RetrieveService struct {
	baseURL string
	meta    *metastore.Store
	content content.Store
	sweeper *Sweeper
	idx     *index.Index
	logger  *slog.Logger
}

// NewRetrieveService создаёт шлюз выдачи.
func NewRetrieveService(
	baseURL string,
	meta *metastore.Store,
	contentStore content.Store,
	sweeper *Sweeper,
	idx *index.Index,
	logger *slog.Logger,
) *RetrieveService {
	return &RetrieveService{
		baseURL: strings.TrimRight(baseURL, "/"),
		meta:    meta,
		content: contentStore,
		sweeper: sweeper,
		idx:     idx,
		logger:  logger.With(slog.String("component", "retrieve")),
	}
}

// ResolveAndRead находит живую запись и читает содержимое целиком.
func (s *RetrieveService) ResolveAndRead(ctx context.Context, fileID string) (*Download, error) {
	rec, err := s.resolve(ctx, fileID)
	if err != nil {
		return nil, err
	}

	data, err := s.content.Read(ctx, rec.StoredPath)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			s.dropDangling(ctx, rec)
			return nil, notFound("Файл не найден или срок хранения истёк")
		}
		operationsTotal.WithLabelValues("download", "error").Inc()
		s.logger.Error("Ошибка чтения содержимого",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, storageError("Ошибка чтения файла", err)
	}

	operationsTotal.WithLabelValues("download", "ok").Inc()
	return &Download{
		Content:     data,
		ContentType: rec.ContentType,
		DisplayName: rec.DisplayName,
		Record:      rec,
	}, nil
}

// Describe возвращает сведения о файле без чтения содержимого.
func (s *RetrieveService) Describe(ctx context.Context, fileID string) (*model.FileView, error) {
	rec, err := s.resolve(ctx, fileID)
	if err != nil {
		return nil, err
	}

	exists, err := s.content.Exists(ctx, rec.StoredPath)
	if err != nil {
		return nil, storageError("Ошибка проверки файла", err)
	}
	if !exists {
		s.dropDangling(ctx, rec)
		return nil, notFound("Файл не найден")
	}

	view := rec.View(time.Now(), DownloadURL(s.baseURL, rec.FileID))
	return &view, nil
}

// Status возвращает количество, объём и до 20 последних записей.
func (s *RetrieveService) Status(ctx context.Context) (*Status, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return nil, err
	}

	snap, err := s.meta.Snapshot(ctx)
	if err != nil {
		return nil, storageError("Ошибка чтения метаданных", err)
	}
	// Документ мог измениться другим процессом: индекс обновляется явно
	s.idx.Replace(snap)

	now := time.Now()
	sample, total := s.idx.List(statusSampleSize, 0)
	files := make([]StatusFile, 0, len(sample))
	for _, rec := range sample {
		files = append(files, StatusFile{
			ID:             rec.FileID,
			Filename:       rec.DisplayName,
			SizeMB:         model.SizeMB(rec.SizeBytes),
			Type:           rec.ContentType,
			ExpiresInHours: rec.TTLHours(now),
		})
	}

	return &Status{
		FilesCount:     total,
		TotalSizeBytes: s.idx.TotalSize(),
		Files:          files,
		Timestamp:      now.UTC(),
	}, nil
}

// Count возвращает количество записей по in-memory индексу.
func (s *RetrieveService) Count() int {
	return s.idx.Count()
}

// Ready проверяет, что метаданные загружаются.
func (s *RetrieveService) Ready(ctx context.Context) error {
	return s.meta.View(ctx, func(metastore.Document) error { return nil })
}

// resolve: очистка → поиск → повторная проверка срока.
func (s *RetrieveService) resolve(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return nil, err
	}

	rec, ok, err := s.meta.Get(ctx, fileID)
	if err != nil {
		return nil, storageError("Ошибка чтения метаданных", err)
	}
	if !ok {
		return nil, notFound("Файл не найден или срок хранения истёк")
	}

	// Срок мог истечь между очисткой и поиском
	if rec.IsExpired(time.Now()) {
		s.evict(ctx, rec)
		return nil, notFound("Срок хранения файла истёк")
	}
	return rec, nil
}

// evict удаляет содержимое и запись.
func (s *RetrieveService) evict(ctx context.Context, rec *model.FileRecord) {
	if err := s.content.Delete(ctx, rec.StoredPath); err != nil {
		s.logger.Error("Ошибка удаления содержимого просроченного файла",
			slog.String("file_id", rec.FileID),
			slog.String("error", err.Error()),
		)
		return
	}
	if _, err := s.meta.Remove(ctx, rec.FileID); err != nil {
		s.logger.Error("Ошибка удаления записи просроченного файла",
			slog.String("file_id", rec.FileID),
			slog.String("error", err.Error()),
		)
	}
}

// dropDangling удаляет запись без содержимого.
func (s *RetrieveService) dropDangling(ctx context.Context, rec *model.FileRecord) {
	s.logger.Warn("Запись без содержимого удалена",
		slog.String("file_id", rec.FileID),
		slog.String("stored_path", rec.StoredPath),
	)
	operationsTotal.WithLabelValues("self_heal", "ok").Inc()
	if _, err := s.meta.Remove(ctx, rec.FileID); err != nil {
		s.logger.Error("Ошибка удаления записи без содержимого",
			slog.String("file_id", rec.FileID),
			slog.String("error", err.Error()),
		)
	}
}
