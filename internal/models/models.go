package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Profile is the public part of a user.
type Profile struct {
	ID          string `json:"id"`
	UserName    string `json:"userName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	LastSeen    int64  `json:"lastSeen,omitempty"` // Unix timestamp (seconds)
}

// SenderRef is either a bare user id or an inline profile.
// The zero value is an empty id reference.
type SenderRef struct {
	id      string
	profile *Profile
}

func SenderByID(userID string) SenderRef {
	return SenderRef{id: userID}
}

func SenderInline(p Profile) SenderRef {
	return SenderRef{id: p.ID, profile: &p}
}

// UserID returns the sender id for both variants.
func (s SenderRef) UserID() string {
	return s.id
}

// Profile returns the inline profile, if any.
func (s SenderRef) Profile() (Profile, bool) {
	if s.profile == nil {
		return Profile{}, false
	}
	return *s.profile, true
}

func (s SenderRef) IsInline() bool {
	return s.profile != nil
}

func (s SenderRef) MarshalJSON() ([]byte, error) {
	if s.profile != nil {
		return json.Marshal(s.profile)
	}
	return json.Marshal(s.id)
}

func (s *SenderRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty sender", ErrProtocol)
	}

	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("%w: sender id: %v", ErrProtocol, err)
		}
		*s = SenderByID(id)
		return nil
	case '{':
		var p Profile
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("%w: sender profile: %v", ErrProtocol, err)
		}
		if p.ID == "" {
			return fmt.Errorf("%w: sender profile without id", ErrProtocol)
		}
		*s = SenderInline(p)
		return nil
	default:
		return fmt.Errorf("%w: sender must be a string or an object", ErrProtocol)
	}
}

// Message represents a chat message.
type Message struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chatId"`
	Sender      SenderRef    `json:"sender"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type AttachmentKind string

const (
	AttachmentKindImage AttachmentKind = "image"
	AttachmentKindAudio AttachmentKind = "audio"
	AttachmentKindFile  AttachmentKind = "file"
	AttachmentKindLink  AttachmentKind = "link"
)

func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachmentKindImage, AttachmentKindAudio, AttachmentKindFile, AttachmentKindLink:
		return true
	}
	return false
}

type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChatRoomSummary is a row of the chat list.
type ChatRoomSummary struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Draft is an unsent message. It survives failed sends.
type Draft struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

func (d Draft) Empty() bool {
	return d.Content == "" && len(d.Attachments) == 0
}
