package kv

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Prefix namespaces every key written by the backend.
	// Default: "designer"
	Prefix string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// Redis is a Backend that keeps each table in a Redis hash.
//
// Key layout:
//
//	<prefix>:tables         set of known table names
//	<prefix>:table:<name>   hash of item id -> JSON document
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.Prefix == "" {
		opts.Prefix = "designer"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client, prefix: opts.Prefix}, nil
}

// Run executes req against Redis.
func (r *Redis) Run(ctx context.Context, req Request) (*Response, error) {
	return dispatch(ctx, r, req)
}

// CreateTable registers table in the table set.
func (r *Redis) CreateTable(ctx context.Context, table string) error {
	if err := r.client.SAdd(ctx, r.key("tables"), table).Err(); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(parts ...string) string {
	return strings.Join(append([]string{r.prefix}, parts...), ":")
}

func (r *Redis) ensureTable(ctx context.Context, table string) error {
	ok, err := r.client.SIsMember(ctx, r.key("tables"), table).Result()
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", table, err)
	}
	if !ok {
		return ErrTableNotFound
	}
	return nil
}

func (r *Redis) get(ctx context.Context, table, id string) (map[string]any, error) {
	if err := r.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	raw, err := r.client.HGet(ctx, r.key("table", table), id).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s from %s: %w", id, table, err)
	}
	return decodeItem([]byte(raw))
}

func (r *Redis) scan(ctx context.Context, table string) ([]map[string]any, error) {
	if err := r.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	all, err := r.client.HGetAll(ctx, r.key("table", table)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		item, err := decodeItem([]byte(all[id]))
		if err != nil {
			// Skip documents written by other tools in an unexpected format
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Redis) put(ctx context.Context, table, id string, item map[string]any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", id, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.key("tables"), table)
		pipe.HSet(ctx, r.key("table", table), id, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put %s into %s: %w", id, table, err)
	}
	return nil
}
