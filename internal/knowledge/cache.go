package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dentalchat-ai/platform/pkg/logging"
)

// CachedRetriever wraps a Retriever with a Redis read-through cache so
// repeated questions skip the embedding and index round trips. Cache faults
// fall through to the inner retriever.
type CachedRetriever struct {
	inner  Retriever
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

var _ Retriever = (*CachedRetriever)(nil)

// NewCachedRetriever wraps a retriever with a Redis cache.
func NewCachedRetriever(inner Retriever, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRetriever {
	if inner == nil {
		panic("knowledge: inner retriever cannot be nil")
	}
	if redisClient == nil {
		panic("knowledge: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedRetriever{inner: inner, redis: redisClient, ttl: ttl, logger: logger}
}

func (c *CachedRetriever) key(clientID, query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return "knowledge:context:" + clientID + ":" + hex.EncodeToString(sum[:])
}

// Retrieve serves from cache when possible, otherwise asks the inner
// retriever and stores the result.
func (c *CachedRetriever) Retrieve(ctx context.Context, clientID, query string) ([]string, error) {
	key := c.key(clientID, query)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var snippets []string
		if jsonErr := json.Unmarshal(data, &snippets); jsonErr == nil {
			return snippets, nil
		}
		// Unreadable entry; treat as a miss and overwrite below.
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("context cache read failed", "error", err)
	}

	snippets, err := c.inner.Retrieve(ctx, clientID, query)
	if err != nil {
		return nil, err
	}

	if encoded, jsonErr := json.Marshal(snippets); jsonErr == nil {
		if setErr := c.redis.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.logger.Warn("context cache write failed", "error", setErr)
		}
	}
	return snippets, nil
}
