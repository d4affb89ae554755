// Package cache is the device-local, TTL-bounded cache of friend lists,
// chat room summaries and per-chat message history.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"duet/internal/models"
	"duet/internal/storage"
)

const (
	DefaultSummaryTTL = 7 * 24 * time.Hour
	DefaultMessageTTL = 3 * 24 * time.Hour
)

type TTLs struct {
	Friends   time.Duration
	ChatRooms time.Duration
	Messages  time.Duration
}

var DefaultTTLs = TTLs{
	Friends:   DefaultSummaryTTL,
	ChatRooms: DefaultSummaryTTL,
	Messages:  DefaultMessageTTL,
}

type backend interface {
	PutCacheEntry(entry storage.DBCacheEntry) error
	GetCacheEntry(key string) (storage.DBCacheEntry, error)
	DeleteCacheEntry(key string) error
}

// Cache never returns errors: a failing backend reads as a miss and a
// failing write is dropped.
type Cache struct {
	backend backend
	ttl     TTLs
	now     func() time.Time
}

func New(b backend, ttl TTLs) *Cache {
	return &Cache{backend: b, ttl: ttl, now: time.Now}
}

func (c *Cache) Friends() Space[models.Profile] {
	return Space[models.Profile]{c: c, prefix: "friends:", ttl: c.ttl.Friends}
}

func (c *Cache) ChatRooms() Space[models.ChatRoomSummary] {
	return Space[models.ChatRoomSummary]{c: c, prefix: "chatrooms:", ttl: c.ttl.ChatRooms}
}

func (c *Cache) Messages() Space[models.Message] {
	return Space[models.Message]{c: c, prefix: "messages:", ttl: c.ttl.Messages}
}

// Space is one key space of the cache, e.g. friends:<userId>.
type Space[E any] struct {
	c      *Cache
	prefix string
	ttl    time.Duration
}

// Load returns the cached list if present and unexpired. An expired or
// unreadable entry is deleted on the way out.
func (s Space[E]) Load(id string) ([]E, bool) {
	key := s.prefix + id

	entry, err := s.c.backend.GetCacheEntry(key)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logCacheError("read", key, err)
		}
		return nil, false
	}

	if s.c.now().UnixMilli() > entry.ExpiresAt {
		s.delete(key)
		return nil, false
	}

	var out []E
	if err := json.Unmarshal(entry.Payload, &out); err != nil {
		logCacheError("decode", key, err)
		s.delete(key)
		return nil, false
	}
	return out, true
}

// Save stores v unless it is empty, so an empty fetch never replaces a
// good entry.
func (s Space[E]) Save(id string, v []E) {
	if len(v) == 0 {
		return
	}
	key := s.prefix + id

	payload, err := json.Marshal(v)
	if err != nil {
		logCacheError("encode", key, err)
		return
	}

	if err := s.c.backend.PutCacheEntry(storage.DBCacheEntry{
		CacheKey:  key,
		Payload:   payload,
		ExpiresAt: s.c.now().Add(s.ttl).UnixMilli(),
	}); err != nil {
		logCacheError("write", key, err)
	}
}

// Query runs the stale-while-revalidate read for id.
func (s Space[E]) Query(ctx context.Context, id string, fetch func(context.Context) ([]E, error)) <-chan Result[[]E] {
	return Query(ctx,
		func() ([]E, bool) { return s.Load(id) },
		fetch,
		func(v []E) { s.Save(id, v) },
	)
}

func (s Space[E]) delete(key string) {
	if err := s.c.backend.DeleteCacheEntry(key); err != nil {
		logCacheError("delete", key, err)
	}
}

func logCacheError(op, key string, err error) {
	slog.Debug("cache "+op+" failed", "key", key, "error", fmt.Errorf("%w: %w", models.ErrCache, err))
}
