package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// flushAttempts bounds WATCH retries of a single Flush.
const flushAttempts = 3

// Redis keeps records in one hash, field = cache key, value = msgpack encoded entry.
// Durability is delegated to the redis persistence settings.
type Redis struct {
	client *redis.Client
	hash   string

	mu      sync.Mutex
	touched map[string]model.Entry
}

// DialRedis connects to redis and verifies the connection.
func DialRedis(ctx context.Context, cfg *config.RedisCfg) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("[index] connected to redis")
	return NewRedis(client, cfg.Prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client:  client,
		hash:    prefix + ":entries",
		touched: make(map[string]model.Entry),
	}
}

func (r *Redis) Load(ctx context.Context) ([]model.Entry, error) {
	values, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("load index hash: %w", err)
	}

	out := make([]model.Entry, 0, len(values))
	for key, raw := range values {
		var e model.Entry
		if err = msgpack.Unmarshal([]byte(raw), &e); err != nil || e.Key != key {
			log.Warn().Str("key", key).Msg("[index] corrupted redis record skipped")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Redis) Put(ctx context.Context, e model.Entry) error {
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal index record: %w", err)
	}
	r.mu.Lock()
	delete(r.touched, e.Key)
	r.mu.Unlock()
	return r.client.HSet(ctx, r.hash, e.Key, data).Err()
}

// Touch is buffered until Flush to keep network I/O out of the read path.
func (r *Redis) Touch(_ context.Context, e model.Entry) error {
	r.mu.Lock()
	if prev, ok := r.touched[e.Key]; !ok || e.Seq >= prev.Seq {
		r.touched[e.Key] = e
	}
	r.mu.Unlock()
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	delete(r.touched, key)
	r.mu.Unlock()
	return r.client.HDel(ctx, r.hash, key).Err()
}

func (r *Redis) Clear(ctx context.Context) error {
	r.mu.Lock()
	clear(r.touched)
	r.mu.Unlock()
	return r.client.Del(ctx, r.hash).Err()
}

// Flush writes buffered touches onto records that still hold the touched generation.
// The compare and the write run in one WATCH transaction, a concurrent Put or Delete
// makes it retry.
func (r *Redis) Flush(ctx context.Context) error {
	r.mu.Lock()
	pending := r.touched
	r.touched = make(map[string]model.Entry, len(pending))
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}

	apply := func(tx *redis.Tx) error {
		values, err := tx.HMGet(ctx, r.hash, keys...).Result()
		if err != nil {
			return fmt.Errorf("check touched records: %w", err)
		}

		updates := make([]interface{}, 0, 2*len(keys))
		for i, k := range keys {
			raw, ok := values[i].(string)
			if !ok {
				continue
			}
			var live model.Entry
			if err = msgpack.Unmarshal([]byte(raw), &live); err != nil {
				continue
			}
			e, ok := touched(live, pending[k])
			if !ok {
				continue
			}
			data, mErr := msgpack.Marshal(&e)
			if mErr != nil {
				continue
			}
			updates = append(updates, k, data)
		}
		if len(updates) == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.hash, updates...)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < flushAttempts; attempt++ {
		err := r.client.Watch(ctx, apply, r.hash)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("flush touched records: %w", err)
		}
		return nil
	}
	// losing touches costs LRU ordering only
	log.Warn().Int("records", len(keys)).Msg("[index] touches dropped after concurrent writes")
	return nil
}

func (r *Redis) Close() error {
	_ = r.Flush(context.Background())
	return r.client.Close()
}
