package kv

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mindbuzzer:terminal:"

// Redis stores each namespace as one hash, so Clear is a single DEL.
type Redis struct {
	client *redis.Client
}

func ConnectRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.PoolSize = 100
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	log.Println("[KV] Connected to Redis")
	return &Redis{client: client}, nil
}

func hashKey(namespace string) string {
	return redisKeyPrefix + namespace
}

func (r *Redis) Get(ctx context.Context, namespace, key string) (string, error) {
	v, err := r.client.HGet(ctx, hashKey(namespace), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, namespace, key, value string) error {
	if err := r.client.HSet(ctx, hashKey(namespace), key, value).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, namespace, key string) error {
	if err := r.client.HDel(ctx, hashKey(namespace), key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, namespace string) error {
	if err := r.client.Del(ctx, hashKey(namespace)).Err(); err != nil {
		return fmt.Errorf("clearing namespace: %w", err)
	}
	return nil
}

func (r *Redis) Keys(ctx context.Context, namespace string) ([]string, error) {
	keys, err := r.client.HKeys(ctx, hashKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
