package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/config"
)

const runGuardKeyPrefix = "stockflow:guard:"

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunGuard implements invoicing.RunGuard using Redis SETNX.
// Suitable for deployments where several instances run the automation.
type RedisRunGuard struct {
	client    *redis.Client
	keyPrefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisRunGuard creates a Redis-backed run guard and checks the connection
func NewRedisRunGuard(cfg config.RedisConfig) (*RedisRunGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRunGuardWithClient(client, ""), nil
}

// NewRedisRunGuardWithClient creates a guard with an existing Redis client
func NewRedisRunGuardWithClient(client *redis.Client, keyPrefix string) *RedisRunGuard {
	if keyPrefix == "" {
		keyPrefix = runGuardKeyPrefix
	}
	return &RedisRunGuard{
		client:    client,
		keyPrefix: keyPrefix,
		tokens:    make(map[string]string),
	}
}

// TryAcquire sets the guard key if it is absent. The key expires after ttl so a crashed
// holder cannot block later runs.
func (g *RedisRunGuard) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run guard: %w", err)
	}
	if ok {
		g.mu.Lock()
		g.tokens[key] = token
		g.mu.Unlock()
	}
	return ok, nil
}

// Release deletes the guard key if this guard still holds it
func (g *RedisRunGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, g.client, []string{g.keyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release run guard: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (g *RedisRunGuard) Close() error {
	return g.client.Close()
}

// Ensure RedisRunGuard implements RunGuard
var _ invoicing.RunGuard = (*RedisRunGuard)(nil)
