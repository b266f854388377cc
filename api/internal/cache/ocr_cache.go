package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

// OCRCache keeps recognized page text so that resubmitting the same photo
// does not cost another vision call.
type OCRCache interface {
	Get(ctx context.Context, engine string, image []byte) (string, bool, error)
	Set(ctx context.Context, engine string, image []byte, text string) error
}

type ocrCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewOCRCache(client *redis.Client, ttl time.Duration) OCRCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ocrCache{client: client, ttl: ttl}
}

func Key(engine string, image []byte) string {
	sum := sha256.Sum256(image)
	return "ocr:" + engine + ":" + hex.EncodeToString(sum[:])
}

func (c *ocrCache) Get(ctx context.Context, engine string, image []byte) (string, bool, error) {
	text, err := c.client.Get(ctx, Key(engine, image)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (c *ocrCache) Set(ctx context.Context, engine string, image []byte, text string) error {
	return c.client.Set(ctx, Key(engine, image), text, c.ttl).Err()
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string, []byte) (string, bool, error) { return "", false, nil }
func (Nop) Set(context.Context, string, []byte, string) error         { return nil }

// Connect opens a client for addr (redis:// prefix allowed) and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opts)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
