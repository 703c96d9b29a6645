package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/temp-storage/internal/storage/content"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/metastore"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/wal"
)

func TestStore_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("содержимое файла")
	stored, err := env.ingest.Store(ctx, StoreParams{Content: data, DisplayName: "Café Résumé (final)!!.PDF"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	rec := stored.Record
	if rec.DisplayName != "Cafe_Resume_final.PDF" {
		t.Errorf("DisplayName = %q", rec.DisplayName)
	}
	if rec.OriginalName != "Café Résumé (final)!!.PDF" {
		t.Errorf("OriginalName = %q", rec.OriginalName)
	}
	if rec.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", rec.ContentType)
	}
	if rec.StoredPath != rec.FileID+"_"+rec.DisplayName {
		t.Errorf("StoredPath = %q", rec.StoredPath)
	}
	if stored.DownloadURL != "http://files.test/download/"+rec.FileID {
		t.Errorf("DownloadURL = %q", stored.DownloadURL)
	}

	dl, err := env.retrieve.ResolveAndRead(ctx, rec.FileID)
	if err != nil {
		t.Fatalf("ResolveAndRead: %v", err)
	}
	if string(dl.Content) != string(data) {
		t.Errorf("содержимое не совпадает: %q", dl.Content)
	}
	if dl.DisplayName != "Cafe_Resume_final.PDF" || dl.ContentType != "application/pdf" {
		t.Errorf("неожиданные атрибуты: %s %s", dl.DisplayName, dl.ContentType)
	}

	if pending, _ := env.journal.Pending(); len(pending) != 0 {
		t.Errorf("после успешного приёма журнал должен быть пуст, получено %d", len(pending))
	}
}

func TestStore_ExpiryIsCreatedPlusRetention(t *testing.T) {
	env := newTestEnv(t)

	stored, err := env.ingest.Store(context.Background(), StoreParams{Content: []byte("x"), DisplayName: "a.txt"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	rec := stored.Record
	if got := rec.ExpiresAt.Sub(rec.CreatedAt); got != 24*time.Hour {
		t.Errorf("expires_at - created_at = %v", got)
	}
}

func TestStore_UniqueIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	paths := make(map[string]bool)
	for range 30 {
		stored, err := env.ingest.Store(ctx, StoreParams{Content: []byte("x"), DisplayName: "same.txt"})
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		if seen[stored.Record.FileID] {
			t.Fatalf("повтор file_id %s", stored.Record.FileID)
		}
		if paths[stored.Record.StoredPath] {
			t.Fatalf("повтор stored_path %s", stored.Record.StoredPath)
		}
		seen[stored.Record.FileID] = true
		paths[stored.Record.StoredPath] = true
	}
}

// Длинное имя из многобайтовых символов сохраняется, а не падает на NAME_MAX.
func TestStore_LongWideName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	name := strings.Repeat("𠀀", 200) + "." + strings.Repeat("𠀁", 64)
	stored, err := env.ingest.Store(ctx, StoreParams{Content: []byte("abc"), DisplayName: name})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if len(stored.Record.StoredPath) > 255 {
		t.Errorf("stored_path %d байт > 255", len(stored.Record.StoredPath))
	}

	dl, err := env.retrieve.ResolveAndRead(ctx, stored.Record.FileID)
	if err != nil {
		t.Fatalf("ResolveAndRead: %v", err)
	}
	if string(dl.Content) != "abc" {
		t.Errorf("содержимое = %q", dl.Content)
	}
}

func TestStore_EmptyName(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ingest.Store(context.Background(), StoreParams{Content: []byte("x"), DisplayName: "  "})
	if !IsKind(err, KindValidation) {
		t.Errorf("ожидалась ValidationError, получено %v", err)
	}
}

func TestCheckSize(t *testing.T) {
	env := newTestEnv(t)

	if err := env.ingest.CheckSize(1024); err != nil {
		t.Errorf("размер на границе лимита должен проходить: %v", err)
	}
	err := env.ingest.CheckSize(1025)
	se, ok := AsError(err)
	if !ok || se.Kind != KindPayloadTooLarge || se.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("ожидалась PayloadTooLarge, получено %v", err)
	}
}

// Параллельные загрузки в пустое хранилище должны быть доступны обе.
func TestStore_ConcurrentUploadsBothRetrievable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 2
	var wg sync.WaitGroup
	results := make([]*StoredFile, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = env.ingest.Store(ctx, StoreParams{
				Content:     []byte(fmt.Sprintf("payload-%d", i)),
				DisplayName: fmt.Sprintf("file-%d.txt", i),
			})
		}()
	}
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("Store %d: %v", i, errs[i])
		}
		dl, err := env.retrieve.ResolveAndRead(ctx, results[i].Record.FileID)
		if err != nil {
			t.Fatalf("загрузка %d недоступна: %v", i, err)
		}
		if string(dl.Content) != fmt.Sprintf("payload-%d", i) {
			t.Errorf("содержимое %d: %q", i, dl.Content)
		}
	}
}

func TestStore_ManyConcurrentUploads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.ingest.Store(ctx, StoreParams{Content: []byte("x"), DisplayName: fmt.Sprintf("f%d.bin", i)})
		}()
	}
	wg.Wait()

	snap, err := env.meta.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap) != n {
		t.Errorf("ожидалось %d записей, получено %d", n, len(snap))
	}
}

// failingContent - хранилище содержимого, всегда отказывающее в записи.
type failingContent struct {
	content.Store
}

func (failingContent) Write(context.Context, string, []byte) (*content.WriteResult, error) {
	return nil, errors.New("disk full")
}

func TestStore_WriteFailureLeavesNoRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ingest := NewIngestService(IngestConfig{BaseURL: "http://x", Retention: time.Hour, MaxFileSize: 10},
		env.meta, failingContent{Store: env.files}, env.journal, env.sweeper, nil, testLogger())

	_, err := ingest.Store(ctx, StoreParams{Content: []byte("x"), DisplayName: "a.txt"})
	if !IsKind(err, KindStorageIO) {
		t.Fatalf("ожидалась StorageIOError, получено %v", err)
	}

	snap, _ := env.meta.Snapshot(ctx)
	if len(snap) != 0 {
		t.Errorf("запись не должна создаваться: %d", len(snap))
	}
	if pending, _ := env.journal.Pending(); len(pending) != 0 {
		t.Errorf("журнал должен быть очищен после отката: %d", len(pending))
	}
}

// saveFailingBackend - бэкенд метаданных, отказывающий в сохранении.
type saveFailingBackend struct{}

func (saveFailingBackend) Load(context.Context) (metastore.Document, error) {
	return metastore.Document{}, nil
}

func (saveFailingBackend) Save(context.Context, metastore.Document) error {
	return errors.New("read-only")
}

func TestStore_FailClosedMetadataRemovesContent(t *testing.T) {
	env := newTestEnvWithBackend(t, saveFailingBackend{}, metastore.PolicyClosed)
	ctx := context.Background()

	_, err := env.ingest.Store(ctx, StoreParams{Content: []byte("x"), DisplayName: "a.txt"})
	if !IsKind(err, KindStorageIO) {
		t.Fatalf("ожидалась StorageIOError, получено %v", err)
	}

	objects, _ := env.files.List(ctx)
	if len(objects) != 0 {
		t.Errorf("содержимое должно быть удалено после ошибки метаданных: %v", objects)
	}
}

// loadFailingBackend - бэкенд метаданных с повреждённым документом.
type loadFailingBackend struct{}

func (loadFailingBackend) Load(context.Context) (metastore.Document, error) {
	return nil, errors.New("corrupt document")
}

func (loadFailingBackend) Save(context.Context, metastore.Document) error { return nil }

func TestFailClosed_LoadErrorSurfaces(t *testing.T) {
	env := newTestEnvWithBackend(t, loadFailingBackend{}, metastore.PolicyClosed)

	_, err := env.retrieve.ResolveAndRead(context.Background(), "any")
	if !IsKind(err, KindStorageIO) {
		t.Errorf("ожидалась StorageIOError, получено %v", err)
	}
}

func TestFailOpen_LoadErrorDegrades(t *testing.T) {
	env := newTestEnvWithBackend(t, loadFailingBackend{}, metastore.PolicyOpen)

	_, err := env.retrieve.ResolveAndRead(context.Background(), "any")
	if !IsKind(err, KindNotFound) {
		t.Errorf("ожидалась NotFound, получено %v", err)
	}
}

func TestRecoverJournal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Незавершённый приём: байты записаны, метаданных нет
	orphan, _ := env.journal.Begin(wal.OpIngest, "orphan-id", "orphan-id_a.txt")
	_, _ = env.files.Write(ctx, "orphan-id_a.txt", []byte("x"))

	// Метаданные успели сохраниться, но Commit не выполнен
	stored, err := env.ingest.Store(ctx, StoreParams{Content: []byte("y"), DisplayName: "b.txt"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	_, _ = env.journal.Begin(wal.OpIngest, stored.Record.FileID, stored.Record.StoredPath)

	removed, err := env.ingest.RecoverJournal(ctx)
	if err != nil {
		t.Fatalf("RecoverJournal: %v", err)
	}
	if removed != 1 {
		t.Errorf("ожидался 1 удалённый объект, получено %d", removed)
	}
	if env.contentExists(t, orphan.StoredPath) {
		t.Error("содержимое незавершённого приёма должно быть удалено")
	}
	if !env.contentExists(t, stored.Record.StoredPath) {
		t.Error("содержимое с метаданными должно сохраниться")
	}
	if pending, _ := env.journal.Pending(); len(pending) != 0 {
		t.Errorf("журнал должен быть пуст: %d", len(pending))
	}
}

func TestFetch_ReturnsBytesWithoutPersisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	fetched, err := env.ingest.Fetch(ctx, FetchParams{URL: srv.URL + "/data/report.pdf"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(fetched.Content) != "0123456789" {
		t.Errorf("содержимое: %q", fetched.Content)
	}
	if fetched.Filename != "report.pdf" {
		t.Errorf("имя: %q", fetched.Filename)
	}

	snap, _ := env.meta.Snapshot(ctx)
	objects, _ := env.files.List(ctx)
	if len(snap) != 0 || len(objects) != 0 {
		t.Errorf("Fetch не должен ничего сохранять: records=%d objects=%d", len(snap), len(objects))
	}
}

func TestStoreFromURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	stored, err := env.ingest.StoreFromURL(ctx, FetchParams{URL: srv.URL + "/img", Filename: "My Photo.png"})
	if err != nil {
		t.Fatalf("StoreFromURL: %v", err)
	}
	if stored.Record.DisplayName != "My_Photo.png" || stored.Record.ContentType != "image/png" {
		t.Errorf("неожиданная запись: %+v", stored.Record)
	}
}

func TestFetch_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	big := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer big.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	tests := []struct {
		name string
		url  string
		kind Kind
	}{
		{"пустой URL", "", KindValidation},
		{"относительный URL", "/a/b", KindValidation},
		{"превышение лимита", big.URL, KindPayloadTooLarge},
		{"ошибка источника", broken.URL, KindUpstreamFetch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ingest.StoreFromURL(ctx, FetchParams{URL: tt.url})
			if !IsKind(err, tt.kind) {
				t.Errorf("ожидалась %s, получено %v", tt.kind, err)
			}
		})
	}

	if snap, _ := env.meta.Snapshot(ctx); len(snap) != 0 {
		t.Errorf("при ошибках записи не создаются: %d", len(snap))
	}
}
