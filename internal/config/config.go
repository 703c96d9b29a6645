// Пакет config - загрузка и валидация конфигурации temp-storage
// из переменных окружения (с необязательным файлом .env).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранения.
const (
	MetadataBackendFile  = "file"
	MetadataBackendRedis = "redis"
	ContentBackendLocal  = "local"
	ContentBackendS3     = "s3"
)

// Config содержит все параметры конфигурации temp-storage.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Базовый URL для ссылок скачивания (без завершающего /)
	BaseURL string
	// Основной и резервный API-ключи
	PrimaryAPIKey   string
	SecondaryAPIKey string
	// Максимальный размер файла в байтах
	MaxFileSize int64
	// Окно хранения файлов
	Retention time.Duration

	// Директория содержимого (бэкенд local)
	DataDir string
	// Путь к документу метаданных (бэкенд file)
	MetadataPath string
	// Директория журнала приёма
	WALDir string

	// Бэкенд метаданных: file или redis
	MetadataBackend string
	RedisURL        string
	RedisKey        string
	// Политика отказа метаданных: open или closed
	MetadataFailurePolicy string

	// Бэкенд содержимого: local или s3
	ContentBackend string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UseSSL       bool

	// Таймаут загрузки по URL
	FetchTimeout time.Duration
	// Интервал фоновой очистки (0 - отключена)
	SweepInterval time.Duration
	// Интервал фоновой сверки (0 - отключена)
	ReconcileInterval time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя владельца пода для метки name в topologymetrics (DEPHEALTH_NAME)
	DephealthName string

	// Разрешённые CORS-источники
	CORSAllowedOrigins []string

	// Путь к TLS сертификату и ключу (TLS включается, если заданы оба)
	TLSCert string
	TLSKey  string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// TLSEnabled возвращает true, если заданы сертификат и ключ.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// LoadDotEnv загружает переменные из файла .env, не перезаписывая
// уже заданные. Отсутствие файла не является ошибкой.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("загрузка %s: %w", p, err)
		}
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// TS_PORT - порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("TS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("TS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("TS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.BaseURL = strings.TrimRight(getEnvDefault("TS_BASE_URL", "http://localhost:8080"), "/")
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("TS_BASE_URL: ожидается http:// или https:// URL, получено %q", cfg.BaseURL)
	}

	cfg.PrimaryAPIKey, err = getEnvRequired("TS_PRIMARY_API_KEY")
	if err != nil {
		return nil, err
	}
	cfg.SecondaryAPIKey, err = getEnvRequired("TS_SECONDARY_API_KEY")
	if err != nil {
		return nil, err
	}

	// TS_MAX_FILE_SIZE - по умолчанию 180 MiB
	cfg.MaxFileSize, err = getEnvInt64("TS_MAX_FILE_SIZE", 180*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("TS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("TS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.Retention, err = getEnvDuration("TS_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("TS_RETENTION: %w", err)
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("TS_RETENTION: значение должно быть положительным")
	}

	cfg.DataDir = getEnvDefault("TS_DATA_DIR", "./data/files")
	cfg.MetadataPath = getEnvDefault("TS_METADATA_PATH", "./data/metadata.json")
	cfg.WALDir = getEnvDefault("TS_WAL_DIR", "./data/wal")

	cfg.MetadataBackend = getEnvDefault("TS_METADATA_BACKEND", MetadataBackendFile)
	if cfg.MetadataBackend != MetadataBackendFile && cfg.MetadataBackend != MetadataBackendRedis {
		return nil, fmt.Errorf("TS_METADATA_BACKEND: недопустимое значение %q, допустимые: file, redis", cfg.MetadataBackend)
	}
	cfg.RedisURL = getEnvDefault("TS_REDIS_URL", "redis://localhost:6379/0")
	cfg.RedisKey = getEnvDefault("TS_REDIS_KEY", "temp-storage:metadata")

	cfg.MetadataFailurePolicy = getEnvDefault("TS_METADATA_FAILURE_POLICY", "open")
	if cfg.MetadataFailurePolicy != "open" && cfg.MetadataFailurePolicy != "closed" {
		return nil, fmt.Errorf("TS_METADATA_FAILURE_POLICY: недопустимое значение %q, допустимые: open, closed", cfg.MetadataFailurePolicy)
	}

	cfg.ContentBackend = getEnvDefault("TS_CONTENT_BACKEND", ContentBackendLocal)
	switch cfg.ContentBackend {
	case ContentBackendLocal:
	case ContentBackendS3:
		if err := loadS3(cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("TS_CONTENT_BACKEND: недопустимое значение %q, допустимые: local, s3", cfg.ContentBackend)
	}

	cfg.FetchTimeout, err = getEnvDuration("TS_FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TS_FETCH_TIMEOUT: %w", err)
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("TS_FETCH_TIMEOUT: значение должно быть положительным")
	}

	// 0 отключает фоновую очистку: очистка выполняется на каждом запросе
	cfg.SweepInterval, err = getEnvDuration("TS_SWEEP_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("TS_SWEEP_INTERVAL: %w", err)
	}

	cfg.ReconcileInterval, err = getEnvDuration("TS_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("TS_RECONCILE_INTERVAL: %w", err)
	}

	cfg.DephealthCheckInterval, err = getEnvDuration("TS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("TS_DEPHEALTH_GROUP", "temp-storage")
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	cfg.CORSAllowedOrigins = splitList(getEnvDefault("TS_CORS_ALLOWED_ORIGINS", "*"))

	cfg.TLSCert = getEnvDefault("TS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("TS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("TS_TLS_CERT и TS_TLS_KEY задаются только вместе")
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("TS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("TS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadS3 читает параметры бэкенда s3; все, кроме TS_S3_USE_SSL, обязательны.
func loadS3(cfg *Config) error {
	var err error
	if cfg.S3Endpoint, err = getEnvRequired("TS_S3_ENDPOINT"); err != nil {
		return err
	}
	if cfg.S3AccessKey, err = getEnvRequired("TS_S3_ACCESS_KEY"); err != nil {
		return err
	}
	if cfg.S3SecretKey, err = getEnvRequired("TS_S3_SECRET_KEY"); err != nil {
		return err
	}
	if cfg.S3Bucket, err = getEnvRequired("TS_S3_BUCKET"); err != nil {
		return err
	}
	if cfg.S3UseSSL, err = getEnvBool("TS_S3_USE_SSL", false); err != nil {
		return fmt.Errorf("TS_S3_USE_SSL: %w", err)
	}
	return nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("отрицательная длительность: %q", val)
	}
	return d, nil
}

// splitList разбирает список через запятую, пропуская пустые элементы.
func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
