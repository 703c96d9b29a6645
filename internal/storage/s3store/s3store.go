// Пакет s3store - хранилище содержимого в S3-совместимом объектном
// хранилище (MinIO). Имя объекта совпадает с stored_path записи.
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/goartstore/temp-storage/internal/storage/content"
)

// Config - параметры подключения.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// HealthURL - адрес liveness-проверки MinIO.
func (c Config) HealthURL() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.Endpoint + "/minio/health/live"
}

// Store - content.Store поверх minio-go.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

var _ content.Store = (*Store)(nil)

// New создаёт клиента и при необходимости бакет.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания S3-клиента: %w", err)
	}

	s := &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With(slog.String("component", "s3store")),
	}

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("ошибка проверки бакета %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("ошибка создания бакета %s: %w", s.bucket, err)
	}
	s.logger.Info("Бакет создан", slog.String("bucket", s.bucket))
	return nil
}

// Write загружает объект, если объекта с таким именем ещё нет.
func (s *Store) Write(ctx context.Context, name string, data []byte) (*content.WriteResult, error) {
	if err := content.ValidateName(name); err != nil {
		return nil, err
	}

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", name, content.ErrExists)
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  "application/octet-stream",
			UserMetadata: map[string]string{"sha256": checksum},
		})
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки объекта %s: %w", name, err)
	}

	return &content.WriteResult{Size: int64(len(data)), Checksum: checksum}, nil
}

// Read скачивает объект целиком.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	if err := content.ValidateName(name); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("чтения", name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrap("чтения", name, err)
	}
	return data, nil
}

// Delete удаляет объект. Отсутствие объекта ошибкой не считается.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := content.ValidateName(name); err != nil {
		return err
	}

	err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("ошибка удаления объекта %s: %w", name, err)
	}
	return nil
}

// Exists проверяет наличие объекта через StatObject.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := content.ValidateName(name); err != nil {
		return false, err
	}

	_, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка StatObject %s: %w", name, err)
	}
	return true, nil
}

// List перечисляет все объекты бакета.
func (s *Store) List(ctx context.Context) ([]content.Object, error) {
	var objects []content.Object
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("ошибка листинга бакета %s: %w", s.bucket, info.Err)
		}
		objects = append(objects, content.Object{
			Name:    info.Key,
			Size:    info.Size,
			ModTime: info.LastModified,
		})
	}
	return objects, nil
}

func (s *Store) wrap(op, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", name, content.ErrNotFound)
	}
	return fmt.Errorf("ошибка %s объекта %s: %w", op, name, err)
}

// isNotFound распознаёт ответы S3 об отсутствии объекта.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == 404
	}
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
