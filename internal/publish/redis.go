// Package publish forwards snapshots to systems off the vessel: a redis
// instance shared with other shipboard services and an HTTP webhook.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/banshee-data/watercolumn/internal/monitoring"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

var logf = monitoring.Tagged("publish")

// ErrRedisDisabled is returned by NewRedisSink when no address is configured.
var ErrRedisDisabled = errors.New("redis publishing disabled")

// DefaultHistoryLength bounds the redis history list.
const DefaultHistoryLength = 3600

// RedisOptions configures a RedisSink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key and the pub/sub channel.
	Prefix        string
	HistoryLength int64
}

// RedisSink stores the latest snapshot, keeps a bounded history list and
// publishes each record line.
type RedisSink struct {
	client *redis.Client
	opts   RedisOptions
}

// NewRedisSink connects to redis and checks the connection with a ping.
func NewRedisSink(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	if opts.Addr == "" {
		return nil, ErrRedisDisabled
	}
	if opts.Prefix == "" {
		opts.Prefix = "watercolumn"
	}
	if opts.HistoryLength <= 0 {
		opts.HistoryLength = DefaultHistoryLength
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 2 * time.Second,
		MaxRetries:  1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	logf("connected to redis at %s (prefix %s)", opts.Addr, opts.Prefix)
	return &RedisSink{client: client, opts: opts}, nil
}

func (s *RedisSink) key(name string) string {
	return s.opts.Prefix + ":" + name
}

// Emit writes the snapshot in one pipeline.
func (s *RedisSink) Emit(ctx context.Context, snap *watercolumn.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %d: %w", snap.Seq, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key("latest"), data, 0)
	pipe.Set(ctx, s.key("record"), snap.Record, 0)
	pipe.LPush(ctx, s.key("history"), data)
	pipe.LTrim(ctx, s.key("history"), 0, s.opts.HistoryLength-1)
	pipe.Publish(ctx, s.key("records"), snap.Record)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish failed for ensemble %d: %w", snap.EnsembleNumber, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
