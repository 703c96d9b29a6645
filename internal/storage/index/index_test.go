package index

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
)

// testLogger возвращает логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// createTestRecord создаёт тестовую запись с уникальным ID.
func createTestRecord(id string, createdAt time.Time, size int64) *model.FileRecord {
	return model.NewFileRecord(id, id+"_file.txt", "file.txt", "file.txt",
		"text/plain", size, createdAt, time.Hour)
}

func docOf(recs ...*model.FileRecord) map[string]*model.FileRecord {
	m := make(map[string]*model.FileRecord, len(recs))
	for _, r := range recs {
		m[r.FileID] = r
	}
	return m
}

// TestNew проверяет создание пустого индекса.
func TestNew(t *testing.T) {
	idx := New(testLogger())

	if idx.Count() != 0 {
		t.Errorf("ожидалось 0 файлов, получено %d", idx.Count())
	}
	if idx.IsReady() {
		t.Error("новый индекс не должен быть ready")
	}
}

// TestReplace проверяет заполнение индекса и подсчёт объёма.
func TestReplace(t *testing.T) {
	idx := New(testLogger())
	now := time.Now()

	idx.Replace(docOf(
		createTestRecord("a", now, 100),
		createTestRecord("b", now, 50),
	))

	if !idx.IsReady() {
		t.Error("индекс должен быть ready после Replace")
	}
	if idx.Count() != 2 {
		t.Errorf("ожидалось 2 файла, получено %d", idx.Count())
	}
	if idx.TotalSize() != 150 {
		t.Errorf("ожидалось 150 байт, получено %d", idx.TotalSize())
	}

	idx.Replace(docOf(createTestRecord("c", now, 7)))
	if idx.Count() != 1 || idx.TotalSize() != 7 {
		t.Errorf("Replace должен заменять содержимое: count=%d size=%d", idx.Count(), idx.TotalSize())
	}
	if idx.Get("a") != nil {
		t.Error("старая запись должна исчезнуть после Replace")
	}
}

// TestReplace_CopiesData проверяет независимость индекса от исходного документа.
func TestReplace_CopiesData(t *testing.T) {
	idx := New(testLogger())
	rec := createTestRecord("a", time.Now(), 1)
	idx.Replace(docOf(rec))

	rec.DisplayName = "changed"
	if got := idx.Get("a"); got.DisplayName != "file.txt" {
		t.Errorf("индекс изменился вместе с исходной записью: %s", got.DisplayName)
	}

	got := idx.Get("a")
	got.DisplayName = "changed"
	if idx.Get("a").DisplayName != "file.txt" {
		t.Error("Get должен возвращать копию")
	}
}

// TestList_SortedNewestFirst проверяет сортировку и пагинацию.
func TestList_SortedNewestFirst(t *testing.T) {
	idx := New(testLogger())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var recs []*model.FileRecord
	for i := range 5 {
		recs = append(recs, createTestRecord(fmt.Sprintf("f%d", i), base.Add(time.Duration(i)*time.Minute), 1))
	}
	idx.Replace(docOf(recs...))

	page, total := idx.List(2, 0)
	if total != 5 {
		t.Errorf("ожидалось total=5, получено %d", total)
	}
	if len(page) != 2 || page[0].FileID != "f4" || page[1].FileID != "f3" {
		t.Errorf("неожиданная первая страница: %v", ids(page))
	}

	page, _ = idx.List(2, 4)
	if len(page) != 1 || page[0].FileID != "f0" {
		t.Errorf("неожиданная последняя страница: %v", ids(page))
	}

	page, _ = idx.List(2, 10)
	if page != nil {
		t.Errorf("смещение за пределами должно давать nil, получено %v", ids(page))
	}

	page, _ = idx.List(0, 0)
	if len(page) != 5 {
		t.Errorf("limit=0 должен возвращать все записи, получено %d", len(page))
	}
}

func TestCountExpired(t *testing.T) {
	idx := New(testLogger())
	now := time.Now()

	idx.Replace(docOf(
		createTestRecord("old", now.Add(-2*time.Hour), 1),
		createTestRecord("fresh", now, 1),
	))

	if got := idx.CountExpired(now); got != 1 {
		t.Errorf("ожидалась 1 истёкшая запись, получено %d", got)
	}
}

// TestConcurrentAccess проверяет отсутствие гонок при параллельных операциях.
func TestConcurrentAccess(t *testing.T) {
	idx := New(testLogger())
	now := time.Now()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			idx.Replace(docOf(createTestRecord(fmt.Sprintf("w%d", i), now, 1)))
		}()
		go func() {
			defer wg.Done()
			_, _ = idx.List(5, 0)
			_ = idx.Count()
			_ = idx.TotalSize()
		}()
	}
	wg.Wait()

	if idx.Count() != 1 {
		t.Errorf("после Replace должна остаться одна запись, получено %d", idx.Count())
	}
}

func ids(recs []*model.FileRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.FileID)
	}
	return out
}
