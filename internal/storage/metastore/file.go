package metastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// lockRetryInterval - пауза между попытками захвата flock.
const lockRetryInterval = 10 * time.Millisecond

// FileBackend хранит документ в одном JSON-файле.
// Запись атомарна: temp → fsync → rename. Межпроцессная блокировка -
// flock на соседнем файле <path>.lock.
type FileBackend struct {
	path string
}

// NewFileBackend создаёт бэкенд для файла path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path возвращает путь к файлу документа.
func (b *FileBackend) Path() string {
	return b.path
}

// Load читает документ. Отсутствующий файл - пустой документ.
func (b *FileBackend) Load(_ context.Context) (Document, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("ошибка чтения %s: %w", b.path, err)
	}
	return decodeDocument(data)
}

// Save атомарно перезаписывает документ.
func (b *FileBackend) Save(_ context.Context, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmpPath := b.path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Lock захватывает эксклюзивный flock на <path>.lock.
// Ожидание прерывается отменой ctx.
func (b *FileBackend) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию метаданных: %w", err)
	}

	lockPath := b.path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть lock-файл %s: %w", lockPath, err)
	}

	fd := int(f.Fd())
	for {
		err = syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			_ = f.Close()
			return nil, fmt.Errorf("ошибка flock %s: %w", lockPath, err)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		_ = syscall.Flock(fd, syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}
