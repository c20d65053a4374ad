package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/config"
)

// DefaultKey is the Redis list that holds pending jobs.
const DefaultKey = "chess:analyzer:analysis-jobs"

// RedisQueue stores jobs as JSON in a Redis list: RPUSH to enqueue, LPOP to take.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    zerolog.Logger
}

// ConnectRedis accepts either a redis:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, url, password, key string, log zerolog.Logger) (*RedisQueue, error) {
	var opts *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: url, DB: 0}
	}
	if password != "" {
		opts.Password = password
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisQueue(client, key, log), nil
}

func NewRedisQueue(client *redis.Client, key string, log zerolog.Logger) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{
		client: client,
		key:    key,
		log:    log.With().Str("component", "redis-queue").Str("key", key).Logger(),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.GameID, err)
	}
	q.log.Debug().Str("game_id", job.GameID).Msg("job enqueued")
	return nil
}

func (q *RedisQueue) Take(ctx context.Context) (*Job, error) {
	payload, err := q.client.LPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode job %q: %w", payload, err)
	}
	return &job, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Open connects to Redis when REDIS_URL is set. Without it there is no queue and
// Open returns nil.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*RedisQueue, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	return ConnectRedis(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.QueueKey, log)
}
