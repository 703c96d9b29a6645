package middleware

import (
	"net/http"

	apierrors "github.com/bigkaa/goartstore/temp-storage/internal/api/errors"
)

// MultipartOverhead - запас на заголовки multipart сверх лимита файла.
const MultipartOverhead = 1 << 20

// BodyLimit ограничивает тело запроса maxFileSize + MultipartOverhead байт.
// Превышение проявляется как *http.MaxBytesError при чтении тела.
func BodyLimit(maxFileSize int64) func(http.Handler) http.Handler {
	limit := maxFileSize + MultipartOverhead
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				apierrors.FileTooLarge(w, "Размер запроса превышает допустимый")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
