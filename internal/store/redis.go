package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "billdesk"
	mergeLockTTL       = 5 * time.Second
)

// ConnectRedis accepts either a redis:// URL or a plain host:port address.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps each record as a JSON string and indexes keys per collection in a sorted set.
type RedisStore struct {
	client *redis.Client
	locker *redislock.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		locker: redislock.New(client),
		prefix: prefix,
	}
}

func (s *RedisStore) Get(ctx context.Context, collection, key string) (Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(collection, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return unmarshalRecord(raw)
}

func (s *RedisStore) Set(ctx context.Context, collection, key string, rec Record, mode Mode) error {
	if mode == ModeMerge {
		return s.mergeSet(ctx, collection, key, rec)
	}
	return s.write(ctx, collection, key, rec)
}

func (s *RedisStore) mergeSet(ctx context.Context, collection, key string, patch Record) error {
	lock, err := s.locker.Obtain(ctx, s.recordKey(collection, key)+":lock", mergeLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 20),
	})
	if err != nil {
		return fmt.Errorf("lock %s/%s: %w", collection, key, err)
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()

	existing, err := s.Get(ctx, collection, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.write(ctx, collection, key, patch)
	case err != nil:
		return err
	}
	return s.write(ctx, collection, key, merge(existing, patch))
}

func (s *RedisStore) write(ctx context.Context, collection, key string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(collection, key), raw, 0)
		pipe.ZAdd(ctx, s.indexKey(collection), redis.Z{Member: key})
		return nil
	})
	return err
}

func (s *RedisStore) Create(ctx context.Context, collection, key string, rec Record) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	created, err := s.client.SetNX(ctx, s.recordKey(collection, key), raw, 0).Result()
	if err != nil || !created {
		return false, err
	}
	if err := s.client.ZAdd(ctx, s.indexKey(collection), redis.Z{Member: key}).Err(); err != nil {
		return true, err
	}
	return true, nil
}

func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(collection, key))
		pipe.ZRem(ctx, s.indexKey(collection), key)
		return nil
	})
	return err
}

func (s *RedisStore) List(ctx context.Context, collection string) ([]Record, error) {
	keys, err := s.client.ZRange(ctx, s.indexKey(collection), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []Record{}, nil
	}
	recordKeys := make([]string, len(keys))
	for i, key := range keys {
		recordKeys[i] = s.recordKey(collection, key)
	}
	values, err := s.client.MGet(ctx, recordKeys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		rec, err := unmarshalRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) recordKey(collection, key string) string {
	return s.prefix + ":" + collection + ":" + key
}

func (s *RedisStore) indexKey(collection string) string {
	return s.prefix + ":" + collection + ":_keys"
}
