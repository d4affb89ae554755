package storage

import (
	"encoding"
	"encoding/binary"
	"time"

	"duet/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBProfile struct {
	ID          string `msgpack:"id"`
	UserName    string `msgpack:"userName"`
	DisplayName string `msgpack:"displayName"`
	AvatarURL   string `msgpack:"avatarUrl"`
	LastSeen    int64  `msgpack:"lastSeen"`
}

func (p *DBProfile) Key() []byte {
	return []byte(p.ID)
}

func (p *DBProfile) MarshalBinary() (data []byte, err error) {
	type alias DBProfile
	return msgpack.Marshal((*alias)(p))
}

func (p *DBProfile) UnmarshalBinary(data []byte) error {
	type alias DBProfile
	return msgpack.Unmarshal(data, (*alias)(p))
}

func (p *DBProfile) toModel() models.Profile {
	return models.Profile{
		ID:          p.ID,
		UserName:    p.UserName,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		LastSeen:    p.LastSeen,
	}
}

func profileFromModel(p models.Profile) *DBProfile {
	return &DBProfile{
		ID:          p.ID,
		UserName:    p.UserName,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		LastSeen:    p.LastSeen,
	}
}

type DBChat struct {
	ID           string     `msgpack:"id"`
	Participants []string   `msgpack:"participants"`
	LastMessage  *DBMessage `msgpack:"lastMessage"`
	UpdatedAt    int64      `msgpack:"updatedAt"` // Unix milliseconds
}

func (c *DBChat) Key() []byte {
	return []byte(c.ID)
}

func (c *DBChat) MarshalBinary() (data []byte, err error) {
	type alias DBChat
	return msgpack.Marshal((*alias)(c))
}

func (c *DBChat) UnmarshalBinary(data []byte) error {
	type alias DBChat
	return msgpack.Unmarshal(data, (*alias)(c))
}

func (c *DBChat) hasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

type DBMessage struct {
	Seq         uint64         `msgpack:"seq"`
	ID          string         `msgpack:"id"`
	ChatID      string         `msgpack:"chatId"`
	SenderID    string         `msgpack:"senderId"`
	Content     string         `msgpack:"content"`
	Attachments []DBAttachment `msgpack:"attachments"`
	CreatedAt   int64          `msgpack:"createdAt"` // Unix milliseconds
	UpdatedAt   int64          `msgpack:"updatedAt"` // Unix milliseconds
}

type DBAttachment struct {
	Kind     string         `msgpack:"kind"`
	URL      string         `msgpack:"url"`
	Metadata map[string]any `msgpack:"metadata"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.Seq)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

// toModel converts the record; sender is inlined when its profile is known.
func (m *DBMessage) toModel(profiles map[string]models.Profile) models.Message {
	msg := models.Message{
		ID:          m.ID,
		ChatID:      m.ChatID,
		Sender:      models.SenderByID(m.SenderID),
		Content:     m.Content,
		Attachments: []models.Attachment{},
		CreatedAt:   time.UnixMilli(m.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(m.UpdatedAt).UTC(),
	}
	if p, ok := profiles[m.SenderID]; ok {
		msg.Sender = models.SenderInline(p)
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Kind:     models.AttachmentKind(a.Kind),
			URL:      a.URL,
			Metadata: a.Metadata,
		})
	}
	return msg
}

func messageFromModel(seq uint64, msg models.Message) *DBMessage {
	dbMessage := &DBMessage{
		Seq:       seq,
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		SenderID:  msg.Sender.UserID(),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UnixMilli(),
		UpdatedAt: msg.UpdatedAt.UnixMilli(),
	}
	if len(msg.Attachments) > 0 {
		dbMessage.Attachments = make([]DBAttachment, len(msg.Attachments))
		for i, a := range msg.Attachments {
			dbMessage.Attachments[i] = DBAttachment{
				Kind:     string(a.Kind),
				URL:      a.URL,
				Metadata: a.Metadata,
			}
		}
	}
	return dbMessage
}

// DBCacheEntry is a client-side cache record. Payload is opaque to storage.
type DBCacheEntry struct {
	CacheKey  string `msgpack:"key"`
	Payload   []byte `msgpack:"payload"`
	ExpiresAt int64  `msgpack:"expiresAt"` // Unix milliseconds
}

func (e *DBCacheEntry) Key() []byte {
	return []byte(e.CacheKey)
}

func (e *DBCacheEntry) MarshalBinary() (data []byte, err error) {
	type alias DBCacheEntry
	return msgpack.Marshal((*alias)(e))
}

func (e *DBCacheEntry) UnmarshalBinary(data []byte) error {
	type alias DBCacheEntry
	return msgpack.Unmarshal(data, (*alias)(e))
}
