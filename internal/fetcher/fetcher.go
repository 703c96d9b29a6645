// Пакет fetcher - загрузка содержимого по URL для приёма файлов
// из удалённых источников. Ограничивает время запроса и размер тела,
// выводит имя файла из Content-Disposition или пути URL.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FallbackName - имя файла, если вывести его не удалось.
const FallbackName = "download"

// fetchTotal - результаты загрузок по URL.
var fetchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ts_fetch_total",
		Help: "Количество загрузок по URL по результату",
	},
	[]string{"result"},
)

var (
	// ErrInvalidURL - URL не абсолютный или схема не http/https.
	ErrInvalidURL = errors.New("некорректный URL")
	// ErrTooLarge - тело ответа превышает допустимый размер.
	ErrTooLarge = errors.New("размер содержимого превышает лимит")
)

// UpstreamError - источник недоступен или ответил не-2xx.
type UpstreamError struct {
	StatusCode int // 0, если ответа не было
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("источник ответил HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("ошибка загрузки по URL: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Result - загруженное содержимое.
type Result struct {
	Content []byte
	// ContentType - значение заголовка ответа (может быть пустым)
	ContentType string
	// Filename - имя из Content-Disposition или пути URL
	Filename string
}

// Client - HTTP-клиент для загрузки по URL.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиента с общим таймаутом на запрос.
func New(timeout time.Duration, logger *slog.Logger) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 10,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With(slog.String("component", "fetcher")),
	}
}

// Fetch скачивает rawURL целиком. Если тело длиннее maxBytes -
// возвращается ErrTooLarge, прочитанное отбрасывается.
func (c *Client) Fetch(ctx context.Context, rawURL string, maxBytes int64) (*Result, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		fetchTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		fetchTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		fetchTotal.WithLabelValues("error").Inc()
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fetchTotal.WithLabelValues("error").Inc()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		fetchTotal.WithLabelValues("too_large").Inc()
		return nil, ErrTooLarge
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		fetchTotal.WithLabelValues("error").Inc()
		return nil, &UpstreamError{Err: err}
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		fetchTotal.WithLabelValues("too_large").Inc()
		return nil, ErrTooLarge
	}

	fetchTotal.WithLabelValues("ok").Inc()
	c.logger.Debug("Содержимое загружено",
		slog.String("host", u.Host),
		slog.Int("size", len(body)),
		slog.Duration("duration", time.Since(start)),
	)

	name := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = FilenameFromURL(u)
	}

	return &Result{
		Content:     body,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    name,
	}, nil
}

// ParseURL принимает только абсолютные http/https URL с хостом.
func ParseURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: пустой URL", ErrInvalidURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: схема должна быть http или https", ErrInvalidURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: отсутствует хост", ErrInvalidURL)
	}
	return u, nil
}

// FilenameFromDisposition извлекает имя из Content-Disposition.
// filename* (RFC 5987) приоритетнее filename; mime.ParseMediaType
// декодирует оба в параметр "filename".
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["filename"])
}

// FilenameFromURL возвращает последний сегмент пути URL (без query)
// или FallbackName. У пути, оканчивающегося на "/", последний сегмент пуст.
func FilenameFromURL(u *url.URL) string {
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return FallbackName
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." || base == "" {
		return FallbackName
	}
	return base
}
