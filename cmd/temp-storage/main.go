// Точка входа temp-storage - временного хранилища файлов со ссылками на скачивание.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bigkaa/goartstore/temp-storage/internal/api/handlers"
	"github.com/bigkaa/goartstore/temp-storage/internal/api/middleware"
	"github.com/bigkaa/goartstore/temp-storage/internal/config"
	"github.com/bigkaa/goartstore/temp-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/temp-storage/internal/fetcher"
	"github.com/bigkaa/goartstore/temp-storage/internal/server"
	"github.com/bigkaa/goartstore/temp-storage/internal/service"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/content"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/filestore"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/index"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/metastore"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/s3store"
	"github.com/bigkaa/goartstore/temp-storage/internal/storage/wal"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("temp-storage запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("base_url", cfg.BaseURL),
		slog.String("metadata_backend", cfg.MetadataBackend),
		slog.String("content_backend", cfg.ContentBackend),
		slog.String("retention", cfg.Retention.String()),
		slog.Int64("max_file_size", cfg.MaxFileSize),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Ошибка запуска", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("temp-storage остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Хранилище метаданных
	policy, err := metastore.ParsePolicy(cfg.MetadataFailurePolicy)
	if err != nil {
		return err
	}
	backend, closeBackend, err := openMetadataBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()
	meta := metastore.New(backend, policy, logger)

	// 2. Хранилище содержимого
	contentStore, writable, diskUsage, err := openContentStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// 3. Журнал приёма
	journal, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		return fmt.Errorf("инициализация WAL: %w", err)
	}

	// 4. In-memory индекс и метрики следуют за документом
	idx := index.New(logger)
	meta.OnChange(func(doc metastore.Document, removed []*model.FileRecord) {
		idx.Replace(doc)
		service.ObserveDocument(doc, removed)
	})
	snap, err := meta.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("загрузка метаданных: %w", err)
	}
	idx.Replace(snap)
	service.ObserveDocument(snap, nil)
	logger.Info("Метаданные загружены", slog.Int("files", idx.Count()))

	// 5. Сервисы
	sweeper := service.NewSweeper(meta, contentStore, cfg.SweepInterval, logger)
	ingest := service.NewIngestService(service.IngestConfig{
		BaseURL:     cfg.BaseURL,
		Retention:   cfg.Retention,
		MaxFileSize: cfg.MaxFileSize,
	}, meta, contentStore, journal, sweeper, fetcher.New(cfg.FetchTimeout, logger), logger)
	retrieve := service.NewRetrieveService(cfg.BaseURL, meta, contentStore, sweeper, idx, logger)
	reconcile := service.NewReconcileService(meta, contentStore, cfg.ReconcileInterval, service.DefaultOrphanGrace, logger)

	// WAL recovery: незавершённые приёмы после рестарта
	removed, err := ingest.RecoverJournal(ctx)
	if err != nil {
		return fmt.Errorf("восстановление WAL: %w", err)
	}
	if removed > 0 {
		logger.Warn("Удалено содержимое незавершённых приёмов", slog.Int("count", removed))
	}

	// 6. Фоновые процессы
	sweeper.Start(ctx)
	defer sweeper.Stop()
	reconcile.Start(ctx)
	defer reconcile.Stop()

	var deps handlers.DependencyHealth
	if cfg.ContentBackend == config.ContentBackendS3 {
		dephealthSvc := startDephealth(ctx, cfg, logger)
		if dephealthSvc != nil {
			defer dephealthSvc.Stop()
			deps = dephealthSvc
		}
	}

	// 7. HTTP
	router := server.NewRouter(server.Handlers{
		Files:       handlers.NewFilesHandler(ingest, retrieve, logger),
		System:      handlers.NewSystemHandler(retrieve, sweeper, cfg.MaxFileSize, cfg.Retention, diskUsage, logger),
		Health:      handlers.NewHealthHandler(retrieve, retrieve, writable, deps, journal.Dir()),
		Maintenance: handlers.NewMaintenanceHandler(reconcile),
		Auth:        middleware.NewAPIKeyAuth(cfg.PrimaryAPIKey, cfg.SecondaryAPIKey, logger),
	}, server.RouterConfig{
		MaxFileSize:    cfg.MaxFileSize,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)

	srv := server.New(cfg, logger, router)
	return srv.Run(ctx)
}

// openMetadataBackend открывает бэкенд метаданных по конфигурации.
func openMetadataBackend(ctx context.Context, cfg *config.Config) (metastore.Backend, func(), error) {
	if cfg.MetadataBackend == config.MetadataBackendRedis {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		rb, err := metastore.OpenRedis(pingCtx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, nil, fmt.Errorf("подключение к Redis: %w", err)
		}
		return rb, func() { _ = rb.Close() }, nil
	}
	return metastore.NewFileBackend(cfg.MetadataPath), func() {}, nil
}

// openContentStore открывает хранилище содержимого. Для local возвращает
// также проверку записи и функцию ёмкости диска; для s3 они nil.
func openContentStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (content.Store, handlers.WritableChecker, handlers.DiskUsageFunc, error) {
	if cfg.ContentBackend == config.ContentBackendS3 {
		store, err := s3store.New(ctx, s3Config(cfg), logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("инициализация S3: %w", err)
		}
		return store, nil, nil, nil
	}

	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("инициализация FileStore: %w", err)
	}
	return store, store, diskUsageFn(cfg.DataDir), nil
}

func s3Config(cfg *config.Config) s3store.Config {
	return s3store.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	}
}

// startDephealth запускает мониторинг объектного хранилища.
// Ошибки не фатальны: сервис работает без мониторинга.
func startDephealth(ctx context.Context, cfg *config.Config, logger *slog.Logger) *service.DephealthService {
	name := cfg.DephealthName
	if name == "" {
		hostname, _ := os.Hostname()
		name = parseOwnerName(hostname)
	}
	healthURL := s3Config(cfg).HealthURL()

	dephealthSvc, err := service.NewDephealthService(name, cfg.DephealthGroup, healthURL, cfg.DephealthCheckInterval, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("topologymetrics запущен",
		slog.String("name", name),
		slog.String("health_url", healthURL),
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return dephealthSvc
}

// diskUsageFn возвращает функцию для получения информации об ёмкости диска.
func diskUsageFn(dataDir string) handlers.DiskUsageFunc {
	return func() (int64, int64, int64, error) {
		return getDiskUsage(dataDir)
	}
}
