package client

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"duet/internal/client/reconcile"
	"duet/internal/client/scroll"
	"duet/internal/client/session"
	"duet/internal/models"
	"duet/internal/pubsub"
)

const topicMessages = "messages"

type nopScroller struct{}

func (nopScroller) ScrollToEnd(bool) {}

// ChatView is one open conversation: history from the cache and the
// API, live events from the session, merged by the reconciler.
type ChatView struct {
	chatID   string
	client   *Client
	session  *session.Session
	messages *reconcile.Reconciler
	scroll   *scroll.Controller
	updates  *pubsub.Bus[[]models.Message]
	unsub    func()

	mu      sync.Mutex
	draft   models.Draft
	closed  bool
	loading bool
	stale   bool
	loadErr error
}

func newChatView(ctx context.Context, c *Client, chatID string, scroller scroll.Scroller) *ChatView {
	if scroller == nil {
		scroller = nopScroller{}
	}
	v := &ChatView{
		chatID:   chatID,
		client:   c,
		messages: reconcile.New(),
		scroll:   scroll.New(scroller),
		updates:  pubsub.New[[]models.Message](),
		loading:  true,
	}

	v.session = session.Open(ctx, c.newSocket(), c.token, chatID)
	v.unsub = v.session.Subscribe(models.ServerEventChatMessage, func(evt models.ServerEvent) {
		if evt.Message != nil {
			v.apply([]models.Message{*evt.Message})
		}
	})

	go v.load(ctx)
	return v
}

func (v *ChatView) load(ctx context.Context) {
	results := v.client.cache.Messages().Query(ctx, v.chatID, func(ctx context.Context) ([]models.Message, error) {
		return v.client.rest.ListMessages(ctx, v.chatID)
	})
	for r := range results {
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			continue
		}
		v.loading = r.Loading
		v.stale = r.Stale
		v.loadErr = r.Err
		v.mu.Unlock()

		if r.Err != nil {
			slog.Debug("message history refresh failed", "chat_id", v.chatID, "error", r.Err)
		}
		v.apply(r.Data)
	}
}

// apply merges msgs into the view. The cache is left alone: only a
// successful history fetch writes it.
func (v *ChatView) apply(msgs []models.Message) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return
	}

	if len(msgs) > 0 {
		v.messages.UpsertAll(msgs)
	}
	current := v.messages.Messages()
	v.scroll.OnData(len(current))
	v.updates.Publish(topicMessages, current)
}

func (v *ChatView) ChatID() string { return v.chatID }

func (v *ChatView) Messages() []models.Message { return v.messages.Messages() }

func (v *ChatView) Status() session.State { return v.session.Status() }

func (v *ChatView) LastError() error { return v.session.LastError() }

func (v *ChatView) Scroll() *scroll.Controller { return v.scroll }

// Loading and Stale describe the history query.
func (v *ChatView) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

func (v *ChatView) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}

func (v *ChatView) LoadError() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadErr
}

// OnMessages registers h to receive the merged list after every change.
func (v *ChatView) OnMessages(h func([]models.Message)) func() {
	return v.updates.Subscribe(topicMessages, h)
}

// Subscribe forwards to the session, e.g. for typing or presence events.
func (v *ChatView) Subscribe(t models.ServerEventType, h func(models.ServerEvent)) func() {
	return v.session.Subscribe(t, h)
}

func (v *ChatView) Typing(started bool) error {
	if started {
		return v.session.Emit(models.ClientEventTypingStart)
	}
	return v.session.Emit(models.ClientEventTypingStop)
}

func (v *ChatView) SetDraft(content string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.draft.Content = content
}

func (v *ChatView) Attach(a models.Attachment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.draft.Attachments = append(v.draft.Attachments, a)
}

func (v *ChatView) Draft() models.Draft {
	v.mu.Lock()
	defer v.mu.Unlock()
	d := v.draft
	d.Attachments = append([]models.Attachment(nil), v.draft.Attachments...)
	return d
}

// Send posts the current draft. Once the server accepts it, the sent
// content and attachments are removed from the draft; anything added
// while the request was in flight stays.
func (v *ChatView) Send(ctx context.Context) (models.Message, error) {
	draft := v.Draft()
	if strings.TrimSpace(draft.Content) == "" && len(draft.Attachments) == 0 {
		return models.Message{}, fmt.Errorf("%w: nothing to send", models.ErrProtocol)
	}

	msg, err := v.client.rest.SendMessage(ctx, v.chatID, draft)
	if err != nil {
		return models.Message{}, err
	}

	v.mu.Lock()
	v.draft = withoutSent(v.draft, draft)
	v.mu.Unlock()

	v.apply([]models.Message{msg})
	return msg, nil
}

// Close detaches pending results and tears the session down.
func (v *ChatView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.unsub()
	v.updates.Clear()
	v.session.Close()
}

// withoutSent strips sent from the front of current. Content that was
// replaced rather than extended is kept whole.
func withoutSent(current, sent models.Draft) models.Draft {
	if strings.HasPrefix(current.Content, sent.Content) {
		current.Content = current.Content[len(sent.Content):]
	}

	n := len(sent.Attachments)
	if n <= len(current.Attachments) &&
		slices.EqualFunc(current.Attachments[:n], sent.Attachments, sameAttachment) {
		current.Attachments = slices.Clone(current.Attachments[n:])
	}
	if len(current.Attachments) == 0 {
		current.Attachments = nil
	}
	return current
}

func sameAttachment(a, b models.Attachment) bool {
	return a.Kind == b.Kind && a.URL == b.URL
}
