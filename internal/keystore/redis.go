package keystore

import (
	"context"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Redis implements Store on a shared Redis instance. SetMany uses MULTI/EXEC
// (TxPipelined) so the batch applies atomically and readers never observe a
// partial write.
type Redis struct {
	c *rdb.Client
}

// NewRedis connects and pings; a store that cannot reach Redis at startup is
// a configuration problem, not something to discover on the first Get.
func NewRedis(addr string, db int, password string) (*Redis, error) {
	c := rdb.NewClient(&rdb.Options{Addr: addr, DB: db, Password: password})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("keystore: redis ping failed: %w", err)
	}
	return &Redis{c: c}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.c.Get(ctx, key).Bytes()
	if err == rdb.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: get %s: %w", key, err)
	}
	return b, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.c.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("keystore: set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) SetMany(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	_, err := r.c.TxPipelined(ctx, func(p rdb.Pipeliner) error {
		for _, op := range ops {
			ttl := op.TTL
			if ttl < 0 {
				ttl = 0
			}
			p.Set(ctx, op.Key, op.Value, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("keystore: multi-set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.c.Close()
}
