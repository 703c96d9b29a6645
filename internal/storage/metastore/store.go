// Пакет metastore - хранилище метаданных временных файлов.
//
// Метаданные хранятся одним документом (file_id → запись). Каждое
// изменение выполняется как load → mutate → save целиком, поэтому все
// операции сериализуются мьютексом процесса, а бэкенды, поддерживающие
// межпроцессную блокировку (Locker), дополнительно берут её на весь цикл.
package metastore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
)

// metadataFailuresTotal - ошибки чтения/записи документа метаданных.
var metadataFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ts_metadata_failures_total",
		Help: "Количество ошибок блокировки, загрузки и сохранения метаданных",
	},
	[]string{"op"},
)

// Backend - персистентное хранение документа целиком.
type Backend interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
}

// Locker - опциональная межпроцессная блокировка бэкенда.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Policy - поведение при ошибках бэкенда.
type Policy string

const (
	// PolicyOpen - ошибка загрузки даёт пустой документ, ошибка сохранения
	// логируется и игнорируется.
	PolicyOpen Policy = "open"
	// PolicyClosed - ошибки возвращаются вызывающему.
	PolicyClosed Policy = "closed"
)

// ParsePolicy разбирает строковое значение политики.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyOpen, PolicyClosed:
		return Policy(s), nil
	}
	return "", fmt.Errorf("неизвестная политика ошибок метаданных %q (допустимо: open, closed)", s)
}

// ChangeFunc вызывается после каждого изменения документа.
// doc - актуальное состояние (только чтение), removed - удалённые записи.
type ChangeFunc func(doc Document, removed []*model.FileRecord)

// Store - сериализованный доступ к документу метаданных.
type Store struct {
	backend Backend
	policy  Policy
	logger  *slog.Logger

	mu        sync.Mutex
	listeners []ChangeFunc
}

// New создаёт Store поверх бэкенда.
func New(backend Backend, policy Policy, logger *slog.Logger) *Store {
	if policy == "" {
		policy = PolicyOpen
	}
	return &Store{
		backend: backend,
		policy:  policy,
		logger:  logger.With(slog.String("component", "metastore")),
	}
}

// OnChange регистрирует подписчика на изменения. Подписчики вызываются
// под блокировкой хранилища и не должны обращаться к Store.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// View загружает документ и передаёт его fn без сохранения.
func (s *Store) View(ctx context.Context, fn func(doc Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockBackend(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	return fn(doc)
}

// Update выполняет цикл load → fn → save. Документ сохраняется только
// если fn вернула changed=true и не вернула ошибку.
func (s *Store) Update(ctx context.Context, fn func(doc Document) (changed bool, err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockBackend(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}

	before := make(map[string]*model.FileRecord, len(doc))
	for id, rec := range doc {
		before[id] = rec
	}

	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := s.save(ctx, doc); err != nil {
		return err
	}

	var removed []*model.FileRecord
	for id, rec := range before {
		if _, ok := doc[id]; !ok {
			removed = append(removed, rec)
		}
	}
	for _, l := range s.listeners {
		l(doc, removed)
	}
	return nil
}

// Get возвращает копию записи.
func (s *Store) Get(ctx context.Context, fileID string) (*model.FileRecord, bool, error) {
	var (
		rec *model.FileRecord
		ok  bool
	)
	err := s.View(ctx, func(doc Document) error {
		var found *model.FileRecord
		found, ok = doc[fileID]
		if ok {
			rec = found.Clone()
		}
		return nil
	})
	return rec, ok, err
}

// Put добавляет или заменяет запись.
func (s *Store) Put(ctx context.Context, rec *model.FileRecord) error {
	return s.Update(ctx, func(doc Document) (bool, error) {
		doc[rec.FileID] = rec.Clone()
		return true, nil
	})
}

// Remove удаляет записи и возвращает удалённые (отсутствующие пропускаются).
func (s *Store) Remove(ctx context.Context, fileIDs ...string) ([]*model.FileRecord, error) {
	var removed []*model.FileRecord
	err := s.Update(ctx, func(doc Document) (bool, error) {
		for _, id := range fileIDs {
			if rec, ok := doc[id]; ok {
				removed = append(removed, rec.Clone())
				delete(doc, id)
			}
		}
		return len(removed) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Snapshot возвращает копию документа.
func (s *Store) Snapshot(ctx context.Context) (Document, error) {
	var snap Document
	err := s.View(ctx, func(doc Document) error {
		snap = doc.Clone()
		return nil
	})
	return snap, err
}

func (s *Store) lockBackend(ctx context.Context) (func(), error) {
	locker, ok := s.backend.(Locker)
	if !ok {
		return func() {}, nil
	}
	unlock, err := locker.Lock(ctx)
	if err == nil {
		return unlock, nil
	}
	// Отмена запроса не является отказом бэкенда.
	if ctx.Err() != nil {
		return nil, fmt.Errorf("не удалось заблокировать метаданные: %w", err)
	}

	metadataFailuresTotal.WithLabelValues("lock").Inc()
	if s.policy == PolicyClosed {
		return nil, fmt.Errorf("не удалось заблокировать метаданные: %w", err)
	}
	s.logger.Error("Ошибка блокировки метаданных, цикл выполняется без межпроцессной блокировки",
		slog.String("error", err.Error()),
	)
	return func() {}, nil
}

func (s *Store) load(ctx context.Context) (Document, error) {
	doc, err := s.backend.Load(ctx)
	if err == nil {
		if doc == nil {
			doc = Document{}
		}
		return doc, nil
	}

	metadataFailuresTotal.WithLabelValues("load").Inc()
	if s.policy == PolicyClosed {
		return nil, fmt.Errorf("ошибка загрузки метаданных: %w", err)
	}
	s.logger.Error("Ошибка загрузки метаданных, используется пустой документ",
		slog.String("error", err.Error()),
	)
	return Document{}, nil
}

func (s *Store) save(ctx context.Context, doc Document) error {
	err := s.backend.Save(ctx, doc)
	if err == nil {
		return nil
	}

	metadataFailuresTotal.WithLabelValues("save").Inc()
	if s.policy == PolicyClosed {
		return fmt.Errorf("ошибка сохранения метаданных: %w", err)
	}
	s.logger.Error("Ошибка сохранения метаданных, изменение не сохранено",
		slog.String("error", err.Error()),
	)
	return nil
}
