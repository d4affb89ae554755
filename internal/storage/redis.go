package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"duet/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const profilesKey = "profiles"

// RedisStore keeps messages in one sorted set per chat, scored by a
// per-chat sequence.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client, now: time.Now}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func chatSeqKey(chatID string) string {
	return fmt.Sprintf("chat:%s:seq", chatID)
}

func chatMessagesKey(chatID string) string {
	return fmt.Sprintf("chat:%s:messages", chatID)
}

func chatKey(chatID string) string {
	return fmt.Sprintf("chat:%s", chatID)
}

func userChatsKey(userID string) string {
	return fmt.Sprintf("user:%s:chats", userID)
}

func profileKey(userID string) string {
	return fmt.Sprintf("profile:%s", userID)
}

const persistRetries = 32

// PersistMessage allocates the next sequence, stamps the message and writes
// it in one optimistic transaction. Sequence order and CreatedAt order agree:
// a commit never carries a timestamp older than the chat's last message.
func (s *RedisStore) PersistMessage(ctx context.Context, chatID string, sender models.SenderRef, content string, attachments []models.Attachment) (models.Message, error) {
	if chatID == "" {
		return models.Message{}, fmt.Errorf("%w: message missing chatID", models.ErrProtocol)
	}

	var msg models.Message
	persist := func(tx *redis.Tx) error {
		seq, err := tx.Get(ctx, chatSeqKey(chatID)).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read sequence: %w", err)
		}
		seq++

		var prev DBChat
		data, err := tx.Get(ctx, chatKey(chatID)).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("failed to read chat: %w", err)
		default:
			if err := prev.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("failed to unmarshal chat: %w", err)
			}
		}

		now := s.now().UTC().Truncate(time.Millisecond)
		if prev.LastMessage != nil && now.UnixMilli() < prev.LastMessage.CreatedAt {
			now = time.UnixMilli(prev.LastMessage.CreatedAt).UTC()
		}

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
		msgData, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		dbChat := DBChat{ID: chatID, LastMessage: dbMessage, UpdatedAt: dbMessage.CreatedAt}
		if p, ok := models.ParticipantsOf(chatID); ok {
			dbChat.Participants = p[:]
		}
		chatData, err := dbChat.MarshalBinary()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, chatSeqKey(chatID), seq, 0)
			pipe.ZAdd(ctx, chatMessagesKey(chatID), redis.Z{Score: float64(seq), Member: string(msgData)})
			pipe.Set(ctx, chatKey(chatID), chatData, 0)
			for _, userID := range dbChat.Participants {
				pipe.SAdd(ctx, userChatsKey(userID), chatID)
			}
			return nil
		})
		return err
	}

	for range persistRetries {
		err := s.client.Watch(ctx, persist, chatSeqKey(chatID), chatKey(chatID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return models.Message{}, fmt.Errorf("failed to store message: %w", err)
		}
		return msg, nil
	}
	return models.Message{}, fmt.Errorf("failed to store message: %w", redis.TxFailedErr)
}

func (s *RedisStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	results, err := s.client.ZRange(ctx, chatMessagesKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var dbMsg DBMessage
		if err := dbMsg.UnmarshalBinary([]byte(data)); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, dbMsg.toModel(profiles))
	}
	return messages, nil
}

func (s *RedisStore) ListChatRooms(ctx context.Context, userID string) ([]models.ChatRoomSummary, error) {
	chatIDs, err := s.client.SMembers(ctx, userChatsKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	rooms := []models.ChatRoomSummary{}
	if len(chatIDs) == 0 {
		return rooms, nil
	}

	keys := make([]string, len(chatIDs))
	for i, id := range chatIDs {
		keys[i] = chatKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return nil, err
	}

	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var dbChat DBChat
		if err := dbChat.UnmarshalBinary([]byte(data)); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat: %w", err)
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
	}

	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

func (s *RedisStore) loadProfiles(ctx context.Context) (map[string]models.Profile, error) {
	profiles := make(map[string]models.Profile)

	ids, err := s.client.SMembers(ctx, profilesKey).Result()
	if err != nil || len(ids) == 0 {
		return profiles, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = profileKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var p DBProfile
		if err := p.UnmarshalBinary([]byte(data)); err != nil {
			return nil, err
		}
		profiles[p.ID] = p.toModel()
	}
	return profiles, nil
}

func (s *RedisStore) UpsertProfile(ctx context.Context, profile models.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("%w: profile missing id", models.ErrProtocol)
	}
	return s.putProfile(ctx, profileFromModel(profile))
}

func (s *RedisStore) putProfile(ctx context.Context, p *DBProfile) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, profileKey(p.ID), data, 0)
		pipe.SAdd(ctx, profilesKey, p.ID)
		return nil
	})
	return err
}

func (s *RedisStore) TouchProfile(ctx context.Context, userID string, seen time.Time) error {
	dbProfile := DBProfile{ID: userID, UserName: userID, DisplayName: userID}

	data, err := s.client.Get(ctx, profileKey(userID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return err
	default:
		if err := dbProfile.UnmarshalBinary(data); err != nil {
			return err
		}
	}

	dbProfile.LastSeen = seen.Unix()
	return s.putProfile(ctx, &dbProfile)
}

func (s *RedisStore) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	data, err := s.client.Get(ctx, profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Profile{}, models.ErrNotFound
	}
	if err != nil {
		return models.Profile{}, err
	}
	var p DBProfile
	if err := p.UnmarshalBinary(data); err != nil {
		return models.Profile{}, err
	}
	return p.toModel(), nil
}

func (s *RedisStore) DeleteProfile(ctx context.Context, userID string) error {
	n, err := s.client.Del(ctx, profileKey(userID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return s.client.SRem(ctx, profilesKey, userID).Err()
}

func (s *RedisStore) ListFriends(ctx context.Context, userID string) ([]models.Profile, error) {
	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return nil, err
	}
	friends := []models.Profile{}
	for id, p := range profiles {
		if id != userID {
			friends = append(friends, p)
		}
	}
	sortProfiles(friends)
	return friends, nil
}
