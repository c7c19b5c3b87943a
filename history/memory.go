package history

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/odit-bit/rcaccelerator/model"
	"github.com/patrickmn/go-cache"
)

var _ Store = (*Memory)(nil)

type Memory struct {
	mu  sync.Mutex
	c   *cache.Cache
	max int
}

func NewMemory(ttl time.Duration, maxMessages int) *Memory {
	return &Memory{
		c:   cache.New(ttl, 2*ttl),
		max: maxMessages,
	}
}

func (m *Memory) Load(ctx context.Context, session string) ([]model.Message, error) {
	v, ok := m.c.Get(session)
	if !ok {
		return []model.Message{}, nil
	}
	return slices.Clone(v.([]model.Message)), nil
}

func (m *Memory) Append(ctx context.Context, session string, msgs ...model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var prev []model.Message
	if v, ok := m.c.Get(session); ok {
		prev = v.([]model.Message)
	}
	next := append(slices.Clone(prev), msgs...)
	if len(next) > m.max {
		next = next[len(next)-m.max:]
	}
	m.c.SetDefault(session, next)
	return nil
}

func (m *Memory) Clear(ctx context.Context, session string) error {
	m.c.Delete(session)
	return nil
}
