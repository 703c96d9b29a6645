// files.go - HTTP handlers файловых операций temp-storage.
// Upload (и алиас convert), upload-from-url, download, info, qrcode.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goartstore/temp-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/temp-storage/internal/api/middleware"
	"github.com/bigkaa/goartstore/temp-storage/internal/domain/filename"
	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/temp-storage/internal/service"
)

// maxMultipartMemory - часть multipart-формы, которая держится в памяти.
const maxMultipartMemory = 32 << 20

// StoredFileResponse - ответ на успешное сохранение файла.
type StoredFileResponse struct {
	Success          bool      `json:"success"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	DownloadURL      string    `json:"download_url"`
	DirectURL        string    `json:"direct_url"`
	FileID           string    `json:"file_id"`
	Format           string    `json:"format"`
	SizeBytes        int64     `json:"size_bytes"`
	SizeMB           float64   `json:"size_mb"`
	ContentType      string    `json:"content_type"`
	UploadedAt       time.Time `json:"uploaded_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiryHours      float64   `json:"expiry_hours"`
	APIKeyUsed       string    `json:"api_key_used"`
	Message          string    `json:"message"`
}

// uploadFromURLRequest - тело POST /upload-from-url.
type uploadFromURLRequest struct {
	URL          string          `json:"url"`
	Filename     string          `json:"filename"`
	ReturnBinary json.RawMessage `json:"return_binary"`
}

// FilesHandler - обработчик файловых endpoints.
type FilesHandler struct {
	ingest   *service.IngestService
	retrieve *service.RetrieveService
	logger   *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(ingest *service.IngestService, retrieve *service.RetrieveService, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		ingest:   ingest,
		retrieve: retrieve,
		logger:   logger.With(slog.String("component", "files_handler")),
	}
}

// Upload обрабатывает POST /upload и POST /convert.
// Multipart form: file (обязательно).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер файла превышает максимум %d байт", h.ingest.MaxFileSize()))
			return
		}
		apierrors.ValidationError(w, "Ожидается multipart/form-data с полем 'file'")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Файл не передан: поле 'file' обязательно")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		apierrors.ValidationError(w, "Пустое имя файла")
		return
	}
	if err := h.ingest.CheckSize(header.Size); err != nil {
		writeServiceError(w, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.ingest.CheckSize(int64(len(data))); err != nil {
		writeServiceError(w, err)
		return
	}

	stored, err := h.ingest.Store(r.Context(), service.StoreParams{
		Content:     data,
		DisplayName: header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.storedResponse(r, stored, "Файл загружен"))
}

// UploadFromURL обрабатывает POST /upload-from-url.
// Тело: JSON или форма {url, filename?, return_binary?}.
func (h *FilesHandler) UploadFromURL(w http.ResponseWriter, r *http.Request) {
	req, err := parseUploadFromURL(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	params := service.FetchParams{URL: req.URL, Filename: req.Filename}

	if isTruthy(req.ReturnBinary) {
		fetched, err := h.ingest.Fetch(r.Context(), params)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", fetched.ContentType)
		w.Header().Set("Content-Disposition", attachment(filename.Sanitize(fetched.Filename)))
		w.Header().Set("Content-Length", fmt.Sprint(len(fetched.Content)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(fetched.Content)
		return
	}

	stored, err := h.ingest.StoreFromURL(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.storedResponse(r, stored, "Файл загружен по URL"))
}

// Download обрабатывает GET /download/{file_id}.
// Поддерживает Range и условные запросы через http.ServeContent.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parseFileID(chi.URLParam(r, "file_id"))
	if !ok {
		apierrors.NotFound(w, "Файл не найден или срок хранения истёк")
		return
	}

	dl, err := h.retrieve.ResolveAndRead(r.Context(), fileID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", attachment(dl.DisplayName))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, dl.DisplayName, dl.Record.CreatedAt, bytes.NewReader(dl.Content))
}

// Info обрабатывает GET /info/{file_id}.
func (h *FilesHandler) Info(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parseFileID(chi.URLParam(r, "file_id"))
	if !ok {
		apierrors.NotFound(w, "Файл не найден")
		return
	}

	view, err := h.retrieve.Describe(r.Context(), fileID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// QRCode обрабатывает POST /qrcode - функция выведена из эксплуатации.
func (h *FilesHandler) QRCode(w http.ResponseWriter, _ *http.Request) {
	apierrors.NotImplemented(w, "Функция больше не поддерживается, используйте /upload")
}

func (h *FilesHandler) storedResponse(r *http.Request, stored *service.StoredFile, message string) StoredFileResponse {
	rec := stored.Record
	retention := h.ingest.Retention()
	return StoredFileResponse{
		Success:          true,
		Filename:         rec.DisplayName,
		OriginalFilename: rec.OriginalName,
		DownloadURL:      stored.DownloadURL,
		DirectURL:        stored.DownloadURL,
		FileID:           rec.FileID,
		Format:           filename.Format(rec.DisplayName),
		SizeBytes:        rec.SizeBytes,
		SizeMB:           model.SizeMB(rec.SizeBytes),
		ContentType:      rec.ContentType,
		UploadedAt:       rec.CreatedAt,
		ExpiresAt:        rec.ExpiresAt,
		ExpiryHours:      retention.Hours(),
		APIKeyUsed:       middleware.KeyKindFromContext(r.Context()),
		Message:          fmt.Sprintf("%s, ссылка действительна %s", message, retention),
	}
}

// parseUploadFromURL разбирает JSON или форму.
func parseUploadFromURL(r *http.Request) (*uploadFromURLRequest, error) {
	req := &uploadFromURLRequest{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, err
			}
			return nil, &service.Error{
				Kind:       service.KindValidation,
				StatusCode: http.StatusBadRequest,
				Code:       apierrors.CodeValidationError,
				Message:    "Некорректный JSON",
				Err:        err,
			}
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}
	req.URL = r.FormValue("url")
	req.Filename = r.FormValue("filename")
	if rb := r.FormValue("return_binary"); rb != "" {
		encoded, _ := json.Marshal(rb)
		req.ReturnBinary = encoded
	}
	return req, nil
}

// isTruthy: JSON true, либо строка true/1/yes без учёта регистра.
func isTruthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes":
			return true
		}
	}
	return false
}

// parseFileID принимает только UUID; ответ - каноническая запись.
func parseFileID(raw string) (string, bool) {
	var id openapi_types.UUID
	if err := id.UnmarshalText([]byte(raw)); err != nil {
		return "", false
	}
	return id.String(), true
}

// attachment формирует Content-Disposition; не-ASCII имена
// кодируются через filename*.
func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
