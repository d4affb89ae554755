package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"duet/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketProfiles = []byte("profiles")
	bucketChats    = []byte("chats")
	bucketMessages = []byte("messages")
	bucketCache    = []byte("cache")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketProfiles, bucketChats, bucketMessages, bucketCache} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// PersistMessage stores a new message. Id, sequence and timestamps are
// assigned inside the same write transaction, and the chat summary is
// updated with it.
func (s *BboltStorage) PersistMessage(_ context.Context, chatID string, sender models.SenderRef, content string, attachments []models.Attachment) (models.Message, error) {
	if chatID == "" {
		return models.Message{}, fmt.Errorf("%w: message missing chatID", models.ErrProtocol)
	}

	var msg models.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(chatID))
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		now := s.now().UTC().Truncate(time.Millisecond)
		msg = models.Message{
			ID:          uuid.NewString(),
			ChatID:      chatID,
			Sender:      sender,
			Content:     content,
			Attachments: attachments,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if msg.Attachments == nil {
			msg.Attachments = []models.Attachment{}
		}

		dbMessage := messageFromModel(seq, msg)
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := chatBucket.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		return s.updateChat(tx, chatID, dbMessage)
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *BboltStorage) updateChat(tx *bbolt.Tx, chatID string, last *DBMessage) error {
	b := tx.Bucket(bucketChats)

	dbChat := DBChat{ID: chatID}
	if data := b.Get([]byte(chatID)); data != nil {
		if err := dbChat.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal chat: %w", err)
		}
	} else if p, ok := models.ParticipantsOf(chatID); ok {
		dbChat.Participants = p[:]
	}

	dbChat.LastMessage = last
	dbChat.UpdatedAt = last.CreatedAt

	data, err := dbChat.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(dbChat.Key(), data)
}

// ListMessages returns all messages of a chat in ascending order.
func (s *BboltStorage) ListMessages(_ context.Context, chatID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		profiles, err := loadProfiles(tx)
		if err != nil {
			return err
		}

		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil // No messages for this chat
		}

		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg.toModel(profiles))
			return nil
		})
	})
	return messages, err
}

// ListChatRooms returns the chats userID participates in, most recent first.
func (s *BboltStorage) ListChatRooms(_ context.Context, userID string) ([]models.ChatRoomSummary, error) {
	rooms := []models.ChatRoomSummary{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		profiles, err := loadProfiles(tx)
		if err != nil {
			return err
		}

		return tx.Bucket(bucketChats).ForEach(func(k, v []byte) error {
			var dbChat DBChat
			if err := dbChat.UnmarshalBinary(v); err != nil {
				return err
			}
			if !dbChat.hasParticipant(userID) {
				return nil
			}
			room := models.ChatRoomSummary{
				ID:           dbChat.ID,
				Participants: dbChat.Participants,
				UpdatedAt:    time.UnixMilli(dbChat.UpdatedAt).UTC(),
			}
			if dbChat.LastMessage != nil {
				last := dbChat.LastMessage.toModel(profiles)
				room.LastMessage = &last
			}
			rooms = append(rooms, room)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

func loadProfiles(tx *bbolt.Tx) (map[string]models.Profile, error) {
	profiles := make(map[string]models.Profile)
	err := tx.Bucket(bucketProfiles).ForEach(func(k, v []byte) error {
		var p DBProfile
		if err := p.UnmarshalBinary(v); err != nil {
			return err
		}
		profiles[p.ID] = p.toModel()
		return nil
	})
	return profiles, err
}

// UpsertProfile stores new or updated profile.
func (s *BboltStorage) UpsertProfile(_ context.Context, profile models.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("%w: profile missing id", models.ErrProtocol)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbProfile := profileFromModel(profile)
		data, err := dbProfile.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProfiles).Put(dbProfile.Key(), data)
	})
}

// TouchProfile records that userID was seen, creating a bare profile for
// users the store has never heard of.
func (s *BboltStorage) TouchProfile(_ context.Context, userID string, seen time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		dbProfile := DBProfile{ID: userID, UserName: userID, DisplayName: userID}
		if data := b.Get([]byte(userID)); data != nil {
			if err := dbProfile.UnmarshalBinary(data); err != nil {
				return err
			}
		}
		dbProfile.LastSeen = seen.Unix()

		data, err := dbProfile.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbProfile.Key(), data)
	})
}

func (s *BboltStorage) GetProfile(_ context.Context, userID string) (models.Profile, error) {
	var dbProfile DBProfile
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProfiles).Get([]byte(userID))
		if data == nil {
			return models.ErrNotFound
		}
		return dbProfile.UnmarshalBinary(data)
	})
	if err != nil {
		return models.Profile{}, err
	}
	return dbProfile.toModel(), nil
}

func (s *BboltStorage) DeleteProfile(_ context.Context, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		if b.Get([]byte(userID)) == nil {
			return models.ErrNotFound
		}
		return b.Delete([]byte(userID))
	})
}

// ListFriends returns every known profile except userID, by display name.
func (s *BboltStorage) ListFriends(_ context.Context, userID string) ([]models.Profile, error) {
	friends := []models.Profile{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		profiles, err := loadProfiles(tx)
		if err != nil {
			return err
		}
		for id, p := range profiles {
			if id != userID {
				friends = append(friends, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortProfiles(friends)
	return friends, nil
}

func sortProfiles(profiles []models.Profile) {
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].DisplayName != profiles[j].DisplayName {
			return profiles[i].DisplayName < profiles[j].DisplayName
		}
		return profiles[i].ID < profiles[j].ID
	})
}

func (s *BboltStorage) PutCacheEntry(entry DBCacheEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := entry.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCache).Put(entry.Key(), data)
	})
}

func (s *BboltStorage) GetCacheEntry(key string) (DBCacheEntry, error) {
	var entry DBCacheEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCache).Get([]byte(key))
		if data == nil {
			return models.ErrNotFound
		}
		return entry.UnmarshalBinary(data)
	})
	return entry, err
}

func (s *BboltStorage) DeleteCacheEntry(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).Delete([]byte(key))
	})
}
