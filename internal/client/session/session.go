// Package session owns the live connection of one open chat: it joins
// the room on every (re)connect, leaves it on close and filters out
// events that belong to other chats.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"duet/internal/client/transport"
	"duet/internal/models"
	"duet/internal/pubsub"
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Socket is the transport a session runs on.
type Socket interface {
	Run(ctx context.Context, token string, l transport.Listener) error
	Emit(evt models.ClientEvent) error
}

type Session struct {
	chatID string
	socket Socket
	bus    *pubsub.Bus[models.ServerEvent]

	mu      sync.Mutex
	state   State
	lastErr error

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open starts a session for chatID. Without a token or a chat id the
// session stays idle and never dials.
func Open(ctx context.Context, socket Socket, token, chatID string) *Session {
	s := &Session{
		chatID: chatID,
		socket: socket,
		bus:    pubsub.New[models.ServerEvent](),
		state:  StateIdle,
		done:   make(chan struct{}),
	}

	if socket == nil || token == "" || chatID == "" {
		close(s.done)
		return s
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateConnecting

	go func() {
		defer close(s.done)
		err := socket.Run(ctx, token, s)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.fail(err)
		}
	}()

	return s
}

// With opens a session, runs fn and closes the session on every path.
func With(ctx context.Context, socket Socket, token, chatID string, fn func(*Session) error) error {
	s := Open(ctx, socket, token, chatID)
	defer s.Close()
	return fn(s)
}

// Close leaves the room and releases the connection. It is safe to call
// more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			if err := s.socket.Emit(models.ClientEvent{
				Type:   models.ClientEventLeaveChat,
				ChatID: s.chatID,
			}); err != nil {
				slog.Debug("leave-chat not sent", "chat_id", s.chatID, "error", err)
			}
			s.cancel()
		}
		<-s.done
		s.bus.Clear()

		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	})
}

func (s *Session) ChatID() string { return s.chatID }

func (s *Session) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe registers h for events of type t that belong to this chat.
func (s *Session) Subscribe(t models.ServerEventType, h func(models.ServerEvent)) func() {
	return s.bus.Subscribe(string(t), h)
}

// Emit sends a client event for this chat, e.g. typing signals.
func (s *Session) Emit(t models.ClientEventType) error {
	if s.cancel == nil {
		return fmt.Errorf("%w: session is idle", models.ErrTransport)
	}
	return s.socket.Emit(models.ClientEvent{Type: t, ChatID: s.chatID})
}

func (s *Session) OnStatus(status transport.Status, err error) {
	switch status {
	case transport.StatusConnect:
		s.setState(StateConnected, nil)
		// Room membership does not survive a reconnect.
		if err := s.socket.Emit(models.ClientEvent{
			Type:   models.ClientEventJoinChat,
			ChatID: s.chatID,
		}); err != nil {
			s.fail(err)
		}
	case transport.StatusReconnectAttempt:
		s.setState(StateConnecting, nil)
	case transport.StatusDisconnect:
		s.setState(StateDisconnected, err)
	case transport.StatusConnectError:
		s.fail(err)
	}
}

func (s *Session) OnEvent(evt models.ServerEvent) {
	if evt.RoomScoped() && evt.EventChatID() != s.chatID {
		return
	}
	if evt.Type == models.ServerEventError && evt.Error != nil {
		s.mu.Lock()
		s.lastErr = fmt.Errorf("%w: %s", models.ErrProtocol, evt.Error.Message)
		s.mu.Unlock()
	}
	s.bus.Publish(string(evt.Type), evt)
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if err != nil {
		s.lastErr = err
	}
}

func (s *Session) fail(err error) {
	s.setState(StateError, err)
}
