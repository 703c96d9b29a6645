// auth.go - проверка статического API-ключа.
// Ключ берётся из заголовка X-API-Key, параметра запроса api_key
// или поля формы api_key и сравнивается с основным и резервным ключами.
// Публичные endpoints (download, info, status, health, metrics) - без проверки.
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/goartstore/temp-storage/internal/api/errors"
)

// contextKey - тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyAPIKeyKind - ключ для вида использованного API-ключа.
const ContextKeyAPIKeyKind contextKey = "api_key_kind"

// Виды API-ключей.
const (
	KeyKindPrimary   = "primary"
	KeyKindSecondary = "secondary"
)

// HeaderAPIKey - заголовок с API-ключом.
const HeaderAPIKey = "X-API-Key"

// maxFormMemory - объём multipart-формы в памяти, остальное во временных файлах.
const maxFormMemory = 32 << 20

// APIKeyAuth - middleware проверки API-ключа.
type APIKeyAuth struct {
	primary   []byte
	secondary []byte
	logger    *slog.Logger
}

// NewAPIKeyAuth создаёт middleware с основным и резервным ключами.
func NewAPIKeyAuth(primary, secondary string, logger *slog.Logger) *APIKeyAuth {
	return &APIKeyAuth{
		primary:   []byte(primary),
		secondary: []byte(secondary),
		logger:    logger.With(slog.String("component", "api_key_auth")),
	}
}

// Middleware возвращает HTTP middleware. При успехе вид ключа
// помещается в контекст запроса.
func (a *APIKeyAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractKey(r)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					apierrors.FileTooLarge(w, "Размер запроса превышает допустимый")
					return
				}
				apierrors.ValidationError(w, "Некорректное тело запроса")
				return
			}

			kind := a.match(token)
			if kind == "" {
				a.logger.Debug("API-ключ не принят",
					slog.String("remote_addr", r.RemoteAddr),
					slog.Bool("present", token != ""),
				)
				apierrors.Unauthorized(w, "Неверный или отсутствующий API-ключ",
					"Передайте основной или резервный ключ в заголовке X-API-Key")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyAPIKeyKind, kind)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// match сравнивает ключ с обоими значениями за постоянное время.
func (a *APIKeyAuth) match(token string) string {
	if token == "" {
		return ""
	}
	t := []byte(token)
	isPrimary := subtle.ConstantTimeCompare(t, a.primary) == 1
	isSecondary := subtle.ConstantTimeCompare(t, a.secondary) == 1
	switch {
	case isPrimary:
		return KeyKindPrimary
	case isSecondary:
		return KeyKindSecondary
	default:
		return ""
	}
}

// extractKey: заголовок > query > поле формы.
// Тело читается только для form-urlencoded и multipart.
func extractKey(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(r.URL.Query().Get("api_key")); key != "" {
		return key, nil
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", nil
	}
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return "", err
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return "", err
		}
	default:
		return "", nil
	}
	return strings.TrimSpace(r.PostFormValue("api_key")), nil
}

// KeyKindFromContext возвращает вид API-ключа из контекста запроса.
// Пустая строка, если запрос не проходил проверку.
func KeyKindFromContext(ctx context.Context) string {
	kind, _ := ctx.Value(ContextKeyAPIKeyKind).(string)
	return kind
}
