// Пакет server - HTTP-сервер temp-storage: маршруты, TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "github.com/bigkaa/goartstore/temp-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/temp-storage/internal/api/handlers"
	"github.com/bigkaa/goartstore/temp-storage/internal/api/middleware"
	"github.com/bigkaa/goartstore/temp-storage/internal/config"
)

// Handlers - набор обработчиков, монтируемых на роутер.
type Handlers struct {
	Files       *handlers.FilesHandler
	System      *handlers.SystemHandler
	Health      *handlers.HealthHandler
	Maintenance *handlers.MaintenanceHandler
	Auth        *middleware.APIKeyAuth
}

// RouterConfig - параметры роутера.
type RouterConfig struct {
	MaxFileSize    int64
	AllowedOrigins []string
}

// NewRouter собирает chi-роутер со всеми endpoints.
// Мутирующие endpoints требуют API-ключ и ограничены по размеру тела.
func NewRouter(h Handlers, rc RouterConfig, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(chimw.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: rc.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.HeaderAPIKey, "X-Request-ID", "Range"},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length", "Content-Range"},
		MaxAge:         300,
	}))

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Endpoint не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierrors.MethodNotAllowed(w, fmt.Sprintf("Метод %s не поддерживается", r.Method))
	})

	// Публичные endpoints
	router.Get("/", h.System.Home)
	router.Get("/status", h.System.Status)
	router.Get("/health", h.Health.Health)
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/download/{file_id}", h.Files.Download)
	router.Head("/download/{file_id}", h.Files.Download)
	router.Get("/info/{file_id}", h.Files.Info)

	// Endpoints с API-ключом
	router.Group(func(r chi.Router) {
		r.Use(middleware.BodyLimit(rc.MaxFileSize))
		r.Use(h.Auth.Middleware())

		r.Post("/upload", h.Files.Upload)
		r.Post("/convert", h.Files.Upload)
		r.Post("/upload-from-url", h.Files.UploadFromURL)
		r.Post("/qrcode", h.Files.QRCode)
		r.Post("/maintenance/reconcile", h.Maintenance.Reconcile)
	})

	return router
}

// Server - HTTP-сервер temp-storage.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с готовым handler.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Загрузка по URL может занимать до TS_FETCH_TIMEOUT
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: cfg.FetchTimeout + 5*time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown с таймаутом
// TS_SHUTDOWN_TIMEOUT.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSEnabled()),
		)

		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...",
		slog.String("timeout", s.cfg.ShutdownTimeout.String()),
	)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
