// ingest.go - приём файлов: прямая загрузка и загрузка по URL.
//
// Поток Store:
//  1. Очистка просроченных записей
//  2. Генерация file_id, санитизация имени, определение MIME-типа
//  3. WAL Begin
//  4. Эксклюзивная запись содержимого
//  5. Вставка записи метаданных
//  6. WAL Commit
//
// При ошибке записи содержимого метаданные не создаются. Если сохранить
// метаданные не удалось, содержимое удаляется.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/temp-storage/internal/domain/filename"
	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/temp-storage/internal/fetcher"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/content"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/metastore"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/wal"
)

// IngestConfig - параметры приёма файлов.
type IngestConfig struct {
	// BaseURL - базовый URL для ссылок скачивания (без завершающего /)
	BaseURL string
	// Retention - окно хранения
	Retention time.Duration
	// MaxFileSize - максимальный размер файла в байтах
	MaxFileSize int64
}

// StoreParams - параметры сохранения файла.
type StoreParams struct {
	Content []byte
	// DisplayName - имя от клиента (санитизируется)
	DisplayName string
	// ContentType - MIME-тип от клиента (может быть пустым)
	ContentType string
}

// StoredFile - результат сохранения.
type StoredFile struct {
	Record      *model.FileRecord
	DownloadURL string
}

// FetchParams - параметры загрузки по URL.
type FetchParams struct {
	URL string
	// Filename - явное имя от клиента (приоритетнее имени из ответа)
	Filename string
}

// FetchedFile - содержимое, загруженное по URL, без сохранения.
type FetchedFile struct {
	Content     []byte
	Filename    string
	ContentType string
}

// IngestService - шлюз приёма файлов.
type IngestService struct {
	cfg     IngestConfig
	meta    *metastore.Store
	content content.Store
	journal *wal.WAL
	sweeper *Sweeper
	fetcher *fetcher.Client
	logger  *slog.Logger
}

// NewIngestService создаёт шлюз приёма файлов.
func NewIngestService(
	cfg IngestConfig,
	meta *metastore.Store,
	contentStore content.Store,
	journal *wal.WAL,
	sweeper *Sweeper,
	fetchClient *fetcher.Client,
	logger *slog.Logger,
) *IngestService {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &IngestService{
		cfg:     cfg,
		meta:    meta,
		content: contentStore,
		journal: journal,
		sweeper: sweeper,
		fetcher: fetchClient,
		logger:  logger.With(slog.String("component", "ingest")),
	}
}

// MaxFileSize возвращает настроенный лимит размера.
func (s *IngestService) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// Retention возвращает окно хранения.
func (s *IngestService) Retention() time.Duration {
	return s.cfg.Retention
}

// CheckSize возвращает PayloadTooLarge, если size превышает лимит.
// Лимит проверяет вызывающий код до Store.
func (s *IngestService) CheckSize(size int64) error {
	if size > s.cfg.MaxFileSize {
		return payloadTooLarge(fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", size, s.cfg.MaxFileSize))
	}
	return nil
}

// DownloadURL строит полный URL скачивания.
func (s *IngestService) DownloadURL(fileID string) string {
	return DownloadURL(s.cfg.BaseURL, fileID)
}

// DownloadURL строит полный URL скачивания для базового URL.
func DownloadURL(baseURL, fileID string) string {
	return strings.TrimRight(baseURL, "/") + "/download/" + fileID
}

// Store сохраняет содержимое и создаёт запись метаданных.
func (s *IngestService) Store(ctx context.Context, p StoreParams) (*StoredFile, error) {
	if strings.TrimSpace(p.DisplayName) == "" {
		return nil, validationError("Пустое имя файла")
	}

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return nil, err
	}

	fileID := uuid.New().String()
	displayName := filename.Sanitize(p.DisplayName)
	contentType := filename.ResolveContentType(p.ContentType, displayName)
	storedPath := fileID + "_" + displayName

	if format := filename.Format(displayName); !filename.IsKnownFormat(format) {
		s.logger.Warn("Нестандартное расширение файла",
			slog.String("file_id", fileID),
			slog.String("format", format),
		)
	}

	entry, err := s.journal.Begin(wal.OpIngest, fileID, storedPath)
	if err != nil {
		operationsTotal.WithLabelValues("store", "error").Inc()
		return nil, storageError("Внутренняя ошибка при создании транзакции", err)
	}

	written, err := s.content.Write(ctx, storedPath, p.Content)
	if err != nil {
		s.rollback(entry, "")
		operationsTotal.WithLabelValues("store", "error").Inc()
		s.logger.Error("Ошибка записи содержимого",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, storageError("Ошибка сохранения файла", err)
	}

	rec := model.NewFileRecord(fileID, storedPath, displayName, p.DisplayName, contentType,
		written.Size, time.Now(), s.cfg.Retention)

	if err := s.meta.Put(ctx, rec); err != nil {
		s.rollback(entry, storedPath)
		operationsTotal.WithLabelValues("store", "error").Inc()
		s.logger.Error("Ошибка сохранения метаданных",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, storageError("Ошибка сохранения метаданных", err)
	}

	if err := s.journal.Commit(entry.TransactionID); err != nil {
		s.logger.Warn("Не удалось завершить WAL-транзакцию",
			slog.String("tx_id", entry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	operationsTotal.WithLabelValues("store", "ok").Inc()
	s.logger.Info("Файл сохранён",
		slog.String("file_id", fileID),
		slog.String("filename", displayName),
		slog.Int64("size", written.Size),
		slog.String("sha256", written.Checksum),
	)

	return &StoredFile{Record: rec, DownloadURL: s.DownloadURL(fileID)}, nil
}

// rollback удаляет записанное содержимое (если storedPath задан)
// и отменяет транзакцию журнала.
func (s *IngestService) rollback(entry *wal.Entry, storedPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if storedPath != "" {
		if err := s.content.Delete(ctx, storedPath); err != nil {
			s.logger.Error("Не удалось удалить содержимое при откате",
				slog.String("stored_path", storedPath),
				slog.String("error", err.Error()),
			)
			// Запись журнала остаётся: содержимое будет удалено при старте
			return
		}
	}
	if err := s.journal.Rollback(entry.TransactionID); err != nil {
		s.logger.Warn("Не удалось отменить WAL-транзакцию",
			slog.String("tx_id", entry.TransactionID),
			slog.String("error", err.Error()),
		)
	}
}

// Fetch загружает содержимое по URL без сохранения.
// Имя: явное > Content-Disposition > последний сегмент пути > "download".
// MIME-тип: заголовок ответа > по расширению > application/octet-stream.
func (s *IngestService) Fetch(ctx context.Context, p FetchParams) (*FetchedFile, error) {
	if strings.TrimSpace(p.URL) == "" {
		return nil, validationError("URL не указан")
	}

	res, err := s.fetcher.Fetch(ctx, p.URL, s.cfg.MaxFileSize)
	if err != nil {
		operationsTotal.WithLabelValues("fetch", "error").Inc()
		s.logger.Warn("Ошибка загрузки по URL", slog.String("error", err.Error()))
		return nil, fetchError(err, s.cfg.MaxFileSize)
	}

	name := strings.TrimSpace(p.Filename)
	if name == "" {
		name = res.Filename
	}
	if name == "" {
		name = fetcher.FallbackName
	}

	operationsTotal.WithLabelValues("fetch", "ok").Inc()
	return &FetchedFile{
		Content:     res.Content,
		Filename:    name,
		ContentType: filename.ResolveContentType(res.ContentType, name),
	}, nil
}

// StoreFromURL загружает содержимое по URL и сохраняет его.
func (s *IngestService) StoreFromURL(ctx context.Context, p FetchParams) (*StoredFile, error) {
	fetched, err := s.Fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.Store(ctx, StoreParams{
		Content:     fetched.Content,
		DisplayName: fetched.Filename,
		ContentType: fetched.ContentType,
	})
}

// RecoverJournal обрабатывает незавершённые транзакции после рестарта:
// если запись метаданных существует - транзакция завершается,
// иначе содержимое удаляется. Возвращает число удалённых объектов.
func (s *IngestService) RecoverJournal(ctx context.Context) (int, error) {
	pending, err := s.journal.Pending()
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения WAL: %w", err)
	}

	removed := 0
	for _, entry := range pending {
		_, exists, err := s.meta.Get(ctx, entry.FileID)
		if err != nil {
			return removed, fmt.Errorf("ошибка чтения метаданных при восстановлении: %w", err)
		}

		if exists {
			_ = s.journal.Commit(entry.TransactionID)
			continue
		}

		if err := s.content.Delete(ctx, entry.StoredPath); err != nil {
			s.logger.Error("Не удалось удалить содержимое незавершённой транзакции",
				slog.String("tx_id", entry.TransactionID),
				slog.String("stored_path", entry.StoredPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		_ = s.journal.Rollback(entry.TransactionID)
		removed++

		s.logger.Info("Содержимое незавершённой транзакции удалено",
			slog.String("tx_id", entry.TransactionID),
			slog.String("file_id", entry.FileID),
		)
	}
	return removed, nil
}
