package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/temp-storage/internal/api/handlers"
	"github.com/bigkaa/goartstore/temp-storage/internal/api/middleware"
	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/temp-storage/internal/fetcher"
	"github.com/bigkaa/goartstore/temp-storage/internal/service"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/filestore"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/index"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/metastore"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/wal"
)

const (
	testKey       = "test-primary"
	testSecondary = "test-secondary"
	testMaxSize   = 4096
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestRouter собирает полный роутер поверх временной директории.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	logger := testLogger()

	meta := metastore.New(metastore.NewFileBackend(filepath.Join(dir, "metadata.json")), metastore.PolicyOpen, logger)
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

	sweeper := service.NewSweeper(meta, files, 0, logger)
	ingest := service.NewIngestService(service.IngestConfig{
		BaseURL:     "http://files.test",
		Retention:   24 * time.Hour,
		MaxFileSize: testMaxSize,
	}, meta, files, journal, sweeper, fetcher.New(5*time.Second, logger), logger)
	retrieve := service.NewRetrieveService("http://files.test", meta, files, sweeper, idx, logger)
	reconcile := service.NewReconcileService(meta, files, 0, service.DefaultOrphanGrace, logger)

	return NewRouter(Handlers{
		Files:       handlers.NewFilesHandler(ingest, retrieve, logger),
		System:      handlers.NewSystemHandler(retrieve, sweeper, testMaxSize, 24*time.Hour, nil, logger),
		Health:      handlers.NewHealthHandler(retrieve, retrieve, files, nil, journal.Dir()),
		Maintenance: handlers.NewMaintenanceHandler(reconcile),
		Auth:        middleware.NewAPIKeyAuth(testKey, testSecondary, logger),
	}, RouterConfig{MaxFileSize: testMaxSize, AllowedOrigins: []string{"*"}}, logger)
}

// multipartUpload формирует multipart-запрос с полем file.
func multipartUpload(t *testing.T, path, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()

	r := httptest.NewRequest(http.MethodPost, path, &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func do(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело не JSON (%d): %s", w.Code, w.Body.String())
	}
	return body
}

// Загрузка → скачивание → info → статус.
func TestUploadDownloadFlow(t *testing.T) {
	router := newTestRouter(t)
	content := []byte("%PDF-1.4 test")

	req := multipartUpload(t, "/upload", "Café Résumé (final)!!.PDF", content)
	req.Header.Set(middleware.HeaderAPIKey, testKey)
	w := do(router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if resp["success"] != true {
		t.Errorf("success = %v", resp["success"])
	}
	if resp["filename"] != "Cafe_Resume_final.PDF" {
		t.Errorf("filename = %v", resp["filename"])
	}
	if resp["format"] != "pdf" {
		t.Errorf("format = %v", resp["format"])
	}
	if resp["api_key_used"] != "primary" {
		t.Errorf("api_key_used = %v", resp["api_key_used"])
	}
	if resp["expiry_hours"] != float64(24) {
		t.Errorf("expiry_hours = %v", resp["expiry_hours"])
	}
	fileID, _ := resp["file_id"].(string)
	if resp["download_url"] != "http://files.test/download/"+fileID || resp["direct_url"] != resp["download_url"] {
		t.Errorf("download_url = %v", resp["download_url"])
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/download/"+fileID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("download: %d %s", w.Code, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Errorf("содержимое не совпадает")
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "Cafe_Resume_final.PDF") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if w.Header().Get("Cache-Control") != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/info/"+fileID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("info: %d", w.Code)
	}
	info := decode(t, w)
	if info["size_bytes"] != float64(len(content)) {
		t.Errorf("size_bytes = %v", info["size_bytes"])
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/status", nil))
	st := decode(t, w)
	storage, _ := st["storage"].(map[string]any)
	if storage["files_count"] != float64(1) {
		t.Errorf("files_count = %v", storage["files_count"])
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	if decode(t, w)["storage_count"] != float64(1) {
		t.Errorf("storage_count: %s", w.Body.String())
	}
}

func TestDownload_Range(t *testing.T) {
	router := newTestRouter(t)

	req := multipartUpload(t, "/convert", "a.txt", []byte("0123456789"))
	req.Header.Set(middleware.HeaderAPIKey, testSecondary)
	fileID, _ := decode(t, do(router, req))["file_id"].(string)

	r := httptest.NewRequest(http.MethodGet, "/download/"+fileID, nil)
	r.Header.Set("Range", "bytes=2-4")
	w := do(router, r)
	if w.Code != http.StatusPartialContent {
		t.Fatalf("статус = %d", w.Code)
	}
	if w.Body.String() != "234" {
		t.Errorf("тело = %q", w.Body.String())
	}
}

// return_binary: байты возвращаются, запись не создаётся.
func TestUploadFromURL_ReturnBinary(t *testing.T) {
	router := newTestRouter(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(bytes.Repeat([]byte("p"), 1000))
	}))
	defer upstream.Close()

	body := `{"url":"` + upstream.URL + `/pic.png","return_binary":true}`
	r := httptest.NewRequest(http.MethodPost, "/upload-from-url", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(middleware.HeaderAPIKey, testKey)
	w := do(router, r)

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d %s", w.Code, w.Body.String())
	}
	if w.Body.Len() != 1000 {
		t.Errorf("длина тела = %d", w.Body.Len())
	}
	if w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "pic.png") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	st := decode(t, do(router, httptest.NewRequest(http.MethodGet, "/status", nil)))
	storage, _ := st["storage"].(map[string]any)
	if storage["files_count"] != float64(0) {
		t.Errorf("return_binary не должен создавать запись: %v", storage["files_count"])
	}
}

func TestUploadFromURL_StoresForm(t *testing.T) {
	router := newTestRouter(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="report.csv"`)
		_, _ = w.Write([]byte("a,b\n1,2\n"))
	}))
	defer upstream.Close()

	form := "url=" + upstream.URL + "/export&api_key=" + testKey
	r := httptest.NewRequest(http.MethodPost, "/upload-from-url", strings.NewReader(form))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := do(router, r)

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d %s", w.Code, w.Body.String())
	}
	if resp := decode(t, w); resp["filename"] != "report.csv" {
		t.Errorf("filename = %v", resp["filename"])
	}
}

func TestUploadFromURL_Errors(t *testing.T) {
	router := newTestRouter(t)

	big := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), testMaxSize+1))
	}))
	defer big.Close()

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"нет URL", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"некорректный JSON", `{"url":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"схема ftp", `{"url":"ftp://example.com/a"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"слишком большой", `{"url":"` + big.URL + `"}`, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/upload-from-url", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			r.Header.Set(middleware.HeaderAPIKey, testKey)
			w := do(router, r)
			if w.Code != tt.status {
				t.Fatalf("статус = %d, ожидался %d: %s", w.Code, tt.status, w.Body.String())
			}
			if code := decode(t, w)["code"]; code != tt.code {
				t.Errorf("code = %v", code)
			}
		})
	}
}

func TestUpload_Unauthorized(t *testing.T) {
	router := newTestRouter(t)

	req := multipartUpload(t, "/upload", "a.txt", []byte("x"))
	req.Header.Set(middleware.HeaderAPIKey, "wrong")
	w := do(router, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("статус = %d", w.Code)
	}
	body := decode(t, w)
	if body["error"] == nil || body["message"] == nil {
		t.Errorf("ожидались error и message: %v", body)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	router := newTestRouter(t)

	req := multipartUpload(t, "/upload", "big.bin", bytes.Repeat([]byte("a"), testMaxSize+1))
	req.Header.Set(middleware.HeaderAPIKey, testKey)
	w := do(router, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("статус = %d %s", w.Code, w.Body.String())
	}

	st := decode(t, do(router, httptest.NewRequest(http.MethodGet, "/status", nil)))
	storage, _ := st["storage"].(map[string]any)
	if storage["files_count"] != float64(0) {
		t.Errorf("запись не должна создаваться: %v", storage["files_count"])
	}
}

func TestUpload_MissingFile(t *testing.T) {
	router := newTestRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/upload", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set(middleware.HeaderAPIKey, testKey)
	if w := do(router, r); w.Code != http.StatusBadRequest {
		t.Errorf("статус = %d", w.Code)
	}
}

func TestNotFoundPaths(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{
		"/download/not-a-uuid",
		"/info/../../etc/passwd",
		"/download/00000000-0000-0000-0000-000000000000",
		"/info/00000000-0000-0000-0000-000000000000",
		"/no-such-endpoint",
	} {
		t.Run(path, func(t *testing.T) {
			w := do(router, httptest.NewRequest(http.MethodGet, path, nil))
			if w.Code != http.StatusNotFound {
				t.Fatalf("статус = %d", w.Code)
			}
			if decode(t, w)["error"] == nil {
				t.Errorf("ожидалось поле error: %s", w.Body.String())
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, httptest.NewRequest(http.MethodDelete, "/status", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("статус = %d", w.Code)
	}
	if decode(t, w)["error"] == nil {
		t.Errorf("ожидалось поле error")
	}
}

func TestQRCode_Retired(t *testing.T) {
	router := newTestRouter(t)

	r := httptest.NewRequest(http.MethodPost, "/qrcode", nil)
	r.Header.Set(middleware.HeaderAPIKey, testKey)
	if w := do(router, r); w.Code != http.StatusNotImplemented {
		t.Errorf("статус = %d", w.Code)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	router := newTestRouter(t)

	r := httptest.NewRequest(http.MethodPost, "/maintenance/reconcile", nil)
	r.Header.Set(middleware.HeaderAPIKey, testKey)
	w := do(router, r)
	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d %s", w.Code, w.Body.String())
	}
	if _, ok := decode(t, w)["summary"]; !ok {
		t.Errorf("ожидалось поле summary")
	}
}

func TestPublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/", "/health", "/health/live", "/health/ready", "/status"} {
		t.Run(path, func(t *testing.T) {
			w := do(router, httptest.NewRequest(http.MethodGet, path, nil))
			if w.Code != http.StatusOK {
				t.Errorf("статус = %d %s", w.Code, w.Body.String())
			}
		})
	}

	w := do(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	data, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(data), "ts_http_requests_total") {
		t.Error("в /metrics нет ts_http_requests_total")
	}
}
