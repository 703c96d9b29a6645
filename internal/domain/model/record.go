// Пакет model - доменные модели temp-storage.
// FileRecord - единая структура метаданных файла, используется
// как in-memory представление и как значение в документе метаданных.
package model

import (
	"math"
	"time"
)

// FileRecord - метаданные загруженного файла.
// Ключ записи (file_id) хранится снаружи, в ключе документа, и дублируется
// в поле FileID только в памяти.
type FileRecord struct {
	// FileID - уникальный идентификатор файла (UUID v4), в JSON не пишется
	FileID string `json:"-"`

	// StoredPath - имя файла в Content Store (относительно корня хранилища).
	// Формат: {file_id}_{display_name}
	StoredPath string `json:"stored_path"`

	// DisplayName - санитизированное имя, используется в Content-Disposition
	DisplayName string `json:"display_name"`

	// OriginalName - имя от клиента как есть. Только для отображения,
	// в построении путей не участвует.
	OriginalName string `json:"original_name"`

	// ContentType - MIME-тип содержимого
	ContentType string `json:"content_type"`

	// SizeBytes - точный размер содержимого в байтах
	SizeBytes int64 `json:"size_bytes"`

	// CreatedAt - время загрузки (UTC)
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt - CreatedAt + окно хранения
	ExpiresAt time.Time `json:"expires_at"`
}

// NewFileRecord создаёт запись с вычисленным сроком истечения.
func NewFileRecord(fileID, storedPath, displayName, originalName, contentType string, size int64, createdAt time.Time, retention time.Duration) *FileRecord {
	createdAt = createdAt.UTC()
	return &FileRecord{
		FileID:       fileID,
		StoredPath:   storedPath,
		DisplayName:  displayName,
		OriginalName: originalName,
		ContentType:  contentType,
		SizeBytes:    size,
		CreatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(retention),
	}
}

// IsExpired проверяет, истёк ли срок хранения.
// Граница не включается: запись жива, пока now <= ExpiresAt.
func (r *FileRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// TTLHours возвращает оставшееся время жизни в часах, не меньше нуля.
func (r *FileRecord) TTLHours(now time.Time) float64 {
	left := r.ExpiresAt.Sub(now).Hours()
	if left < 0 {
		return 0
	}
	return left
}

// Clone возвращает независимую копию записи.
func (r *FileRecord) Clone() *FileRecord {
	copied := *r
	return &copied
}

// FileView - представление записи для /info и /status.
type FileView struct {
	FileID         string    `json:"file_id"`
	Filename       string    `json:"filename"`
	OriginalName   string    `json:"original_filename"`
	ContentType    string    `json:"content_type"`
	SizeBytes      int64     `json:"size_bytes"`
	SizeMB         float64   `json:"size_mb"`
	Created        time.Time `json:"created"`
	ExpiresAt      time.Time `json:"expires_at"`
	ExpiresInHours float64   `json:"expires_in_hours"`
	DownloadURL    string    `json:"download_url"`
}

// View строит представление записи на момент now.
func (r *FileRecord) View(now time.Time, downloadURL string) FileView {
	return FileView{
		FileID:         r.FileID,
		Filename:       r.DisplayName,
		OriginalName:   r.OriginalName,
		ContentType:    r.ContentType,
		SizeBytes:      r.SizeBytes,
		SizeMB:         SizeMB(r.SizeBytes),
		Created:        r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
		ExpiresInHours: r.TTLHours(now),
		DownloadURL:    downloadURL,
	}
}

// SizeMB переводит байты в мегабайты с округлением до сотых.
func SizeMB(size int64) float64 {
	return math.Round(float64(size)/(1024*1024)*100) / 100
}
