package metastore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
)

// Document - полный набор записей метаданных, ключ - file_id.
type Document map[string]*model.FileRecord

// Clone возвращает глубокую копию документа.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for id, rec := range d {
		out[id] = rec.Clone()
	}
	return out
}

// TotalSize - суммарный размер всех записей в байтах.
func (d Document) TotalSize() int64 {
	var total int64
	for _, rec := range d {
		total += rec.SizeBytes
	}
	return total
}

// decodeDocument разбирает JSON-документ. Пустые данные - пустой документ.
// FileID каждой записи восстанавливается из ключа.
func decodeDocument(data []byte) (Document, error) {
	doc := Document{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ошибка десериализации документа метаданных: %w", err)
	}

	for id, rec := range doc {
		if rec == nil {
			delete(doc, id)
			continue
		}
		rec.FileID = id
	}
	return doc, nil
}

func encodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации документа метаданных: %w", err)
	}
	return data, nil
}
