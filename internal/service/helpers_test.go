package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/temp-storage/internal/fetcher"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/filestore"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/index"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/metastore"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/wal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv - полный набор сервисов поверх временной директории.
type testEnv struct {
	dir       string
	meta      *metastore.Store
	files     *filestore.FileStore
	journal   *wal.WAL
	idx       *index.Index
	sweeper   *Sweeper
	ingest    *IngestService
	retrieve  *RetrieveService
	reconcile *ReconcileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithBackend(t, nil, metastore.PolicyOpen)
}

func newTestEnvWithBackend(t *testing.T, backend metastore.Backend, policy metastore.Policy) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := testLogger()

	if backend == nil {
		backend = metastore.NewFileBackend(filepath.Join(dir, "metadata.json"))
	}
	meta := metastore.New(backend, policy, logger)

	files, err := filestore.New(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	journal, err := wal.New(filepath.Join(dir, "wal"), logger)
	if err != nil {
		t.Fatalf("wal.New: %v", err)
	}

	idx := index.New(logger)
	meta.OnChange(func(doc metastore.Document, _ []*model.FileRecord) { idx.Replace(doc) })

	sweeper := NewSweeper(meta, files, 0, logger)
	ingest := NewIngestService(IngestConfig{
		BaseURL:     "http://files.test/",
		Retention:   24 * time.Hour,
		MaxFileSize: 1024,
	}, meta, files, journal, sweeper, fetcher.New(5*time.Second, logger), logger)
	retrieve := NewRetrieveService("http://files.test", meta, files, sweeper, idx, logger)
	reconcile := NewReconcileService(meta, files, 0, DefaultOrphanGrace, logger)

	return &testEnv{
		dir:       dir,
		meta:      meta,
		files:     files,
		journal:   journal,
		idx:       idx,
		sweeper:   sweeper,
		ingest:    ingest,
		retrieve:  retrieve,
		reconcile: reconcile,
	}
}

// putExpired вставляет запись с содержимым, срок которой истёк час назад.
func (e *testEnv) putExpired(t *testing.T, id string) *model.FileRecord {
	t.Helper()
	ctx := context.Background()

	rec := model.NewFileRecord(id, id+"_old.txt", "old.txt", "old.txt", "text/plain", 3,
		time.Now().Add(-25*time.Hour), 24*time.Hour)
	if _, err := e.files.Write(ctx, rec.StoredPath, []byte("old")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := e.meta.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return rec
}

func (e *testEnv) contentExists(t *testing.T, storedPath string) bool {
	t.Helper()
	ok, err := e.files.Exists(context.Background(), storedPath)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	return ok
}
