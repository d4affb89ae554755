package content

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"duet/internal/models"

	"github.com/h2non/filetype"
	"github.com/microcosm-cc/bluemonday"
)

var (
	policy      = bluemonday.UGCPolicy()
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._]+$`)
)

// Sanitize removes unsafe HTML from the input string using the UGC policy.
// It is applied to message content before it is persisted.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// ValidateUserID checks that a user id is usable in a direct chat id:
// alphanumeric, dot and underscore only. The hyphen is reserved as the
// chat id delimiter.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id cannot be empty", models.ErrProtocol)
	}
	if !userIDRegex.MatchString(userID) {
		return fmt.Errorf("%w: user id %q contains invalid characters (allowed: alphanumeric, dot, underscore)", models.ErrProtocol, userID)
	}
	return nil
}

// InferKind guesses the attachment kind from the URL's file extension.
// URLs without a recognised extension are links.
func InferKind(rawURL string) models.AttachmentKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.AttachmentKindLink
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if ext == "" {
		return models.AttachmentKindLink
	}

	t := filetype.GetType(ext)
	if t == filetype.Unknown {
		return models.AttachmentKindLink
	}

	switch t.MIME.Type {
	case "image":
		return models.AttachmentKindImage
	case "audio":
		return models.AttachmentKindAudio
	default:
		return models.AttachmentKindFile
	}
}

// NormalizeAttachments fills missing kinds and rejects invalid ones.
func NormalizeAttachments(attachments []models.Attachment) ([]models.Attachment, error) {
	out := make([]models.Attachment, 0, len(attachments))
	for i, a := range attachments {
		if a.URL == "" {
			return nil, fmt.Errorf("%w: attachment %d has no url", models.ErrProtocol, i)
		}
		if a.Kind == "" {
			a.Kind = InferKind(a.URL)
		}
		if !a.Kind.Valid() {
			return nil, fmt.Errorf("%w: attachment %d has unknown kind %q", models.ErrProtocol, i, a.Kind)
		}
		out = append(out, a)
	}
	return out, nil
}
