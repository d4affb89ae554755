package storage

import (
	"context"
	"time"

	"duet/internal/models"
)

// Store is the durable message and profile store.
type Store interface {
	PersistMessage(ctx context.Context, chatID string, sender models.SenderRef, content string, attachments []models.Attachment) (models.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	ListChatRooms(ctx context.Context, userID string) ([]models.ChatRoomSummary, error)

	UpsertProfile(ctx context.Context, profile models.Profile) error
	TouchProfile(ctx context.Context, userID string, seen time.Time) error
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	DeleteProfile(ctx context.Context, userID string) error
	ListFriends(ctx context.Context, userID string) ([]models.Profile, error)

	Close() error
}

var (
	_ Store = (*BboltStorage)(nil)
	_ Store = (*RedisStore)(nil)
)
