// Пакет content - общий контракт хранилища содержимого файлов.
// Реализации: filestore (локальный диск) и s3store (S3/MinIO).
package content

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound - объект отсутствует.
	ErrNotFound = errors.New("объект не найден")
	// ErrExists - объект с таким именем уже существует.
	ErrExists = errors.New("объект уже существует")
)

// Object - описание хранимого объекта.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// WriteResult - результат записи.
type WriteResult struct {
	Size int64
	// Checksum - SHA-256 содержимого (hex)
	Checksum string
}

// Store - хранилище содержимого. Имя объекта - stored_path записи,
// один сегмент без разделителей пути.
type Store interface {
	// Write записывает объект эксклюзивно: существующий объект не перезаписывается.
	Write(ctx context.Context, name string, data []byte) (*WriteResult, error)
	// Read читает объект целиком.
	Read(ctx context.Context, name string) ([]byte, error)
	// Delete удаляет объект; отсутствие объекта ошибкой не считается.
	Delete(ctx context.Context, name string) error
	// Exists проверяет наличие объекта.
	Exists(ctx context.Context, name string) (bool, error)
	// List возвращает все объекты хранилища.
	List(ctx context.Context) ([]Object, error)
}

// ValidateName проверяет, что имя - один безопасный сегмент пути.
// Имена с ведущей точкой зарезервированы под служебные файлы хранилища.
func ValidateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("недопустимое имя объекта %q", name)
	}
	return nil
}
