// Package history keeps the previous turns of a chat session.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/odit-bit/rcaccelerator/model"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"

	_default_ttl          = 24 * time.Hour
	_default_max_messages = 20
)

// Store keeps at most a fixed number of the latest messages per session.
type Store interface {
	Load(ctx context.Context, session string) ([]model.Message, error)
	Append(ctx context.Context, session string, msgs ...model.Message) error
	Clear(ctx context.Context, session string) error
}

type Config struct {
	//redis or memory
	Backend     string        `mapstructure:"backend"`
	RedisURL    string        `mapstructure:"redis_url"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxMessages int           `mapstructure:"max_messages"`
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = _default_ttl
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = _default_max_messages
	}
	return c
}

func Open(ctx context.Context, cfg Config) (Store, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemory(cfg.TTL, cfg.MaxMessages), nil
	case BackendRedis:
		return NewRedis(ctx, cfg.RedisURL, cfg.TTL, cfg.MaxMessages)
	default:
		return nil, fmt.Errorf("history: unknown backend %q", cfg.Backend)
	}
}
