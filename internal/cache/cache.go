package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftlabs/driftroute/internal/config"
	"github.com/driftlabs/driftroute/pkg/types"
	"github.com/driftlabs/driftroute/pkg/utils"
)

// entry is the stored cache payload.
type entry struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ResponseCache stores responses for cheap, repeatable prompts in Redis.
// Cache trouble never fails a routing call: misses are returned on error
// and writes are best effort.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *utils.Logger
}

// Connect opens the Redis connection and verifies it with a ping. Returns
// nil without error when caching is disabled in the configuration.
func Connect(cfg *config.Config, log *utils.Logger) (*ResponseCache, error) {
	if !cfg.CacheEnabled() {
		return nil, nil
	}
	if log == nil {
		log = utils.NewLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info("response cache connected at %s", cfg.GetRedisAddr())
	return &ResponseCache{client: client, ttl: cfg.Redis.TTL.Std(), log: log}, nil
}

// Key hashes the prompt into a stable cache key.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "driftroute:response:" + hex.EncodeToString(sum[:])
}

// Get returns the cached response for the prompt, if any.
func (c *ResponseCache) Get(ctx context.Context, text string) (types.GenerateResult, bool) {
	raw, err := c.client.Get(ctx, Key(text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("cache get failed: %v", err)
		}
		return types.GenerateResult{}, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return types.GenerateResult{}, false
	}
	return types.GenerateResult{Text: e.Text, Confidence: e.Confidence}, true
}

// Set stores a response for the prompt. Failures are logged and dropped.
func (c *ResponseCache) Set(ctx context.Context, text string, result types.GenerateResult) {
	raw, err := json.Marshal(entry{Text: result.Text, Confidence: result.Confidence})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, Key(text), raw, c.ttl).Err(); err != nil {
		c.log.Debug("cache set failed: %v", err)
	}
}

// HealthCheck pings Redis.
func (c *ResponseCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *ResponseCache) Close() error {
	return c.client.Close()
}
