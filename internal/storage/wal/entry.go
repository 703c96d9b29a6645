// Пакет wal - журнал незавершённых операций записи содержимого.
//
// Перед записью байтов в хранилище содержимого создаётся запись журнала
// {tx_id}.wal.json. После сохранения метаданных запись удаляется.
// Записи, пережившие рестарт, указывают на байты, которые могли остаться
// без метаданных.
package wal

import (
	"time"
)

// OperationType - тип операции, записываемой в журнал.
type OperationType string

const (
	// OpIngest - приём нового файла (запись байтов + вставка метаданных)
	OpIngest OperationType = "ingest"
)

// Entry - запись журнала. Хранится как JSON-файл {tx_id}.wal.json.
type Entry struct {
	// TransactionID - уникальный идентификатор транзакции (UUID v4)
	TransactionID string `json:"transaction_id"`

	// Operation - тип операции
	Operation OperationType `json:"operation"`

	// FileID - идентификатор файла
	FileID string `json:"file_id"`

	// StoredPath - имя объекта в хранилище содержимого
	StoredPath string `json:"stored_path"`

	// StartedAt - время начала транзакции (UTC)
	StartedAt time.Time `json:"started_at"`
}

// walSuffix - суффикс файлов журнала.
const walSuffix = ".wal.json"

// walFileName возвращает имя файла журнала для транзакции.
func walFileName(txID string) string {
	return txID + walSuffix
}
