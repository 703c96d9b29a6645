package metastore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// redisLockTTL - время жизни блокировки на случай падения владельца.
	redisLockTTL = 30 * time.Second
	// redisLockRetry - пауза между попытками захвата блокировки.
	redisLockRetry = 20 * time.Millisecond
)

// releaseScript снимает блокировку, только если она принадлежит нам.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisBackend хранит документ целиком в одном ключе Redis.
// Блокировка между экземплярами - SET NX на ключе <key>:lock.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend создаёт бэкенд поверх готового клиента.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

// OpenRedis разбирает URL, подключается и проверяет соединение.
func OpenRedis(ctx context.Context, rawURL, key string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("некорректный TS_REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}

	return NewRedisBackend(client, key), nil
}

// Load читает документ. Отсутствующий ключ - пустой документ.
func (b *RedisBackend) Load(ctx context.Context) (Document, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("ошибка чтения ключа %s: %w", b.key, err)
	}
	return decodeDocument(data)
}

// Save перезаписывает ключ документом целиком.
func (b *RedisBackend) Save(ctx context.Context, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("ошибка записи ключа %s: %w", b.key, err)
	}
	return nil
}

// Lock захватывает блокировку <key>:lock.
func (b *RedisBackend) Lock(ctx context.Context) (func(), error) {
	lockKey := b.key + ":lock"

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("ошибка генерации токена блокировки: %w", err)
	}
	token := hex.EncodeToString(buf)

	for {
		ok, err := b.client.SetNX(ctx, lockKey, token, redisLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("ошибка захвата блокировки %s: %w", lockKey, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisLockRetry):
		}
	}

	return func() {
		// Освобождение не зависит от отмены исходного запроса.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, b.client, []string{lockKey}, token).Err()
	}, nil
}

// Ping проверяет доступность Redis.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
