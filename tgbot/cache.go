package telebot

import (
	"sync"
	"time"
)

// ChatCache keeps the chosen profile of every chat. Conversation turns live on the
// server, keyed by the chat session.
type ChatCache struct {
	mu sync.Mutex
	m  map[int64]StoredChat
}

func NewCache() *ChatCache {
	return &ChatCache{m: map[int64]StoredChat{}}
}

// Get returns the chat state, a zero profile means the server default.
func (cc *ChatCache) Get(id int64) StoredChat {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	sc, ok := cc.m[id]
	if !ok {
		return StoredChat{ID: id, Updated: time.Now()}
	}
	return sc
}

func (cc *ChatCache) SetProfile(id int64, profile string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.m[id] = StoredChat{ID: id, Profile: profile, Updated: time.Now()}
}

func (cc *ChatCache) Clear(id int64) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.m, id)
}

func (cc *ChatCache) Len() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.m)
}

type StoredChat struct {
	ID      int64
	Profile string
	Updated time.Time
}
