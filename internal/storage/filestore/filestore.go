// Пакет filestore - хранилище содержимого на локальном диске.
// Каждый объект - отдельный файл в корневой директории. Запись выполняется
// через temp-файл с fsync и эксклюзивной жёсткой ссылкой на итоговое имя.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/temp-storage/internal/storage/content"
)

// Временные файлы незавершённой записи: ".<name>.<random>.partial".
// Ведущая точка не даёт им совпасть ни с одним именем объекта.
const (
	tmpPrefix = "."
	tmpSuffix = ".partial"
)

// FileStore - управление файлами содержимого на диске.
type FileStore struct {
	// dataDir - корневая директория хранения файлов (TS_DATA_DIR)
	dataDir string
}

var _ content.Store = (*FileStore)(nil)

// New создаёт FileStore. Директория создаётся, если не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

// Write записывает data в файл name.
// Паттерн: скрытый temp файл → запись → fsync → link на итоговое имя → удаление temp.
// link не перезаписывает существующий файл, поэтому запись эксклюзивна.
func (fs *FileStore) Write(_ context.Context, name string, data []byte) (*content.WriteResult, error) {
	if err := content.ValidateName(name); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(fs.dataDir, name)

	f, err := os.CreateTemp(fs.dataDir, tmpPrefix+name+".*"+tmpSuffix)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	if err := f.Chmod(0o640); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка установки прав: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Link(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", name, content.ErrExists)
		}
		return nil, fmt.Errorf("ошибка публикации файла %s: %w", name, err)
	}
	os.Remove(tmpPath)

	sum := sha256.Sum256(data)
	return &content.WriteResult{
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

// Read читает файл целиком.
func (fs *FileStore) Read(_ context.Context, name string) ([]byte, error) {
	if err := content.ValidateName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(fs.dataDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, content.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", name, err)
	}
	return data, nil
}

// Delete удаляет файл. Возвращает nil, если файла уже нет.
func (fs *FileStore) Delete(_ context.Context, name string) error {
	if err := content.ValidateName(name); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(fs.dataDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", name, err)
	}
	return nil
}

// Exists проверяет наличие обычного файла name.
func (fs *FileStore) Exists(_ context.Context, name string) (bool, error) {
	if err := content.ValidateName(name); err != nil {
		return false, err
	}

	info, err := os.Stat(filepath.Join(fs.dataDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка stat %s: %w", name, err)
	}
	return info.Mode().IsRegular(), nil
}

// List возвращает обычные файлы корня, кроме скрытых (временных и служебных).
func (fs *FileStore) List(_ context.Context) ([]content.Object, error) {
	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", fs.dataDir, err)
	}

	objects := make([]content.Object, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}
		objects = append(objects, content.Object{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return objects, nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// CheckWritable проверяет возможность записи в директорию данных.
// Используется readiness-проверкой.
func (fs *FileStore) CheckWritable() error {
	f, err := os.CreateTemp(fs.dataDir, tmpPrefix+"writable-*"+tmpSuffix)
	if err != nil {
		return fmt.Errorf("директория %s недоступна для записи: %w", fs.dataDir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
