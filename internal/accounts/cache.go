package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	balanceKeyPrefix    = "ledger:balance"
	generationKeyPrefix = "ledger:balance:gen"
	generationTTL       = 24 * time.Hour
)

// errStaleFill aborts a cache fill that raced with an invalidation.
var errStaleFill = errors.New("accounts: balance changed during cache fill")

// Cache keeps committed balances in Redis. Every committed mutation drops the
// entry and bumps a per-account generation; a fill only lands when the
// generation it started under is still current.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func balanceKey(id uuid.UUID) string {
	return strings.Join([]string{balanceKeyPrefix, id.String()}, ":")
}

func generationKey(id uuid.UUID) string {
	return strings.Join([]string{generationKeyPrefix, id.String()}, ":")
}

// FetchBalance returns the cached balance or fills it using loader. Concurrent
// misses for the same account share one loader call. Redis failures fall back
// to the loader.
func (c *Cache) FetchBalance(ctx context.Context, id uuid.UUID, loader func(context.Context) (Balance, error)) (Balance, error) {
	if loader == nil {
		return Balance{}, errors.New("accounts: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	key := balanceKey(id)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var out Balance
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("balance cache read failed", slog.String("key", key), slog.Any("error", err))
		return loader(ctx)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		fillCtx := context.WithoutCancel(ctx)
		genKey := generationKey(id)
		gen, err := c.client.Get(fillCtx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Warn("balance cache generation read failed", slog.String("key", genKey), slog.Any("error", err))
			return loader(fillCtx)
		}

		bal, err := loader(fillCtx)
		if err != nil {
			return Balance{}, err
		}
		if err := c.store(fillCtx, key, genKey, gen, bal); err != nil {
			if errors.Is(err, errStaleFill) || errors.Is(err, redis.TxFailedErr) {
				c.logger.Debug("balance cache fill skipped", slog.String("key", key))
			} else {
				c.logger.Warn("balance cache write failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		return bal, nil
	})
	if err != nil {
		return Balance{}, err
	}
	return v.(Balance), nil
}

// store writes bal under key only if the generation is still gen.
func (c *Cache) store(ctx context.Context, key, genKey, gen string, bal Balance) error {
	raw, err := json.Marshal(bal)
	if err != nil {
		return err
	}
	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

// Invalidate drops cached balances for the given accounts and advances their
// generation so fills already in flight are discarded. Later readers do not
// join those fills.
func (c *Cache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	if c == nil || c.client == nil || len(ids) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			genKey := generationKey(id)
			pipe.Incr(ctx, genKey)
			pipe.Expire(ctx, genKey, generationTTL)
			pipe.Del(ctx, balanceKey(id))
		}
		return nil
	})
	for _, id := range ids {
		c.group.Forget(balanceKey(id))
	}
	return err
}
