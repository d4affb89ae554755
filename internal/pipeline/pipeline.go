package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"duet/internal/content"
	"duet/internal/metrics"
	"duet/internal/models"
	"duet/internal/notify"
)

const notifyTimeout = 5 * time.Second

type messageStore interface {
	PersistMessage(ctx context.Context, chatID string, sender models.SenderRef, content string, attachments []models.Attachment) (models.Message, error)
}

type publisher interface {
	Publish(msg models.Message)
}

type SendRequest struct {
	ChatID      string
	SenderID    string
	Content     string
	Attachments []models.Attachment
}

// Pipeline writes a message to the store and, once it is committed,
// fans it out to connected clients and hands it to push delivery.
type Pipeline struct {
	store    messageStore
	hub      publisher
	notifier notify.Notifier
	wg       sync.WaitGroup
}

func New(store messageStore, hub publisher, notifier notify.Notifier) *Pipeline {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Pipeline{
		store:    store,
		hub:      hub,
		notifier: notifier,
	}
}

// Send persists then broadcasts. Nothing is broadcast when the store
// write fails.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (models.Message, error) {
	text, attachments, err := validate(req)
	if err != nil {
		metrics.MessagesRejected.WithLabelValues("invalid").Inc()
		return models.Message{}, err
	}

	msg, err := p.store.PersistMessage(ctx, req.ChatID, models.SenderByID(req.SenderID), text, attachments)
	if err != nil {
		metrics.MessagesRejected.WithLabelValues("store").Inc()
		return models.Message{}, fmt.Errorf("failed to persist message: %w", err)
	}
	metrics.MessagesPersisted.Inc()

	p.hub.Publish(msg)

	p.wg.Go(func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := p.notifier.MessageCreated(nctx, msg); err != nil {
			metrics.NotifyFailures.Inc()
			slog.Warn("push hand-off failed", "chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
		}
	})

	return msg, nil
}

// Close waits for pending push hand-offs.
func (p *Pipeline) Close() error {
	p.wg.Wait()
	return p.notifier.Close()
}

func validate(req SendRequest) (string, []models.Attachment, error) {
	if req.ChatID == "" {
		return "", nil, fmt.Errorf("%w: chatId is required", models.ErrProtocol)
	}
	if !models.IsParticipant(req.SenderID, req.ChatID) {
		return "", nil, fmt.Errorf("%w: %q is not a participant of %q", models.ErrProtocol, req.SenderID, req.ChatID)
	}

	attachments, err := content.NormalizeAttachments(req.Attachments)
	if err != nil {
		return "", nil, err
	}

	text := strings.TrimSpace(content.Sanitize(req.Content))
	if text == "" && len(attachments) == 0 {
		return "", nil, fmt.Errorf("%w: message has no content", models.ErrProtocol)
	}
	return text, attachments, nil
}
