// metrics.go - Prometheus HTTP метрики temp-storage.
// Регистрирует метрики: ts_http_requests_total, ts_http_request_duration_seconds.
// Бизнес-метрики (ts_files_total, ts_storage_bytes и др.) регистрируются
// в пакете service.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ts_http_requests_total",
			Help: "Общее количество HTTP-запросов к temp-storage",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ts_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к temp-storage в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// knownPaths - пути без параметров, попадающие в лейбл как есть.
var knownPaths = map[string]bool{
	"/":                      true,
	"/health":                true,
	"/health/live":           true,
	"/health/ready":          true,
	"/metrics":               true,
	"/upload":                true,
	"/convert":               true,
	"/upload-from-url":       true,
	"/status":                true,
	"/qrcode":                true,
	"/maintenance/reconcile": true,
}

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет идентификатор файла на {id}, неизвестные
// пути сводит к "other" для ограничения кардинальности.
// /download/a1b2c3d4-e5f6-7890-abcd-ef1234567890 → /download/{id}
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	for _, prefix := range []string{"/download/", "/info/"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return prefix + "{id}"
		}
	}
	return "other"
}
