package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/odit-bit/rcaccelerator/model"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

// Redis stores a session as a list under "history:<session>".
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	max int
}

func NewRedis(ctx context.Context, redisURL string, ttl time.Duration, maxMessages int) (*Redis, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("history: empty redis url")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis: %w", err)
	}
	slog.Debug("history connected to redis", "addr", opt.Addr)

	return &Redis{rdb: rdb, ttl: ttl, max: maxMessages}, nil
}

func key(session string) string {
	return "history:" + session
}

func (r *Redis) Load(ctx context.Context, session string) ([]model.Message, error) {
	vals, err := r.rdb.LRange(ctx, key(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history load: %w", err)
	}
	msgs := make([]model.Message, 0, len(vals))
	for _, v := range vals {
		var m model.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("history decode: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *Redis) Append(ctx context.Context, session string, msgs ...model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	vals := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("history encode: %w", err)
		}
		vals = append(vals, string(b))
	}

	k := key(session)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, k, vals...)
		p.LTrim(ctx, k, int64(-r.max), -1)
		p.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, session string) error {
	if err := r.rdb.Del(ctx, key(session)).Err(); err != nil {
		return fmt.Errorf("history clear: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
