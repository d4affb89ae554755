package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"duet/internal/metrics"
	"duet/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
}

type messageHub interface {
	Register(connID, userID string) chan models.ServerEvent
	Unregister(connID string)
	JoinRoom(connID, chatID string)
	LeaveRoom(connID, chatID string)
	Typing(connID, chatID string, started bool)
}

type Connection struct {
	id         string
	userID     string
	ws         wsConnection
	hub        messageHub
	rooms      map[string]struct{}
	fromClient chan models.ClientEvent
	fromServer chan models.ServerEvent
	errorCh    chan error
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	connID string,
	userID string,
) *Connection {
	return &Connection{
		id:         connID,
		userID:     userID,
		ws:         ws,
		hub:        hub,
		rooms:      make(map[string]struct{}),
		fromClient: make(chan models.ClientEvent),
		fromServer: hub.Register(connID, userID),
		errorCh:    make(chan error, 2),
	}
}

// Handle runs the connection until the socket fails or ctx is done.
// Whatever the cause, every joined room gets a single user-left and the
// connection is unregistered before Handle returns.
func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		for chatID := range c.rooms {
			c.hub.LeaveRoom(c.id, chatID)
		}
		clear(c.rooms)
		c.hub.Unregister(c.id)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	<-ctx.Done()
	c.ws.Close()
	wg.Wait()

	// The first goroutine to finish holds the cause.
	err := <-c.errorCh
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var evt models.ClientEvent
		if err := c.ws.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", models.ErrTransport, err)
		}
		select {
		case c.fromClient <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case evt := <-c.fromClient:
			if err := c.processClientEvent(evt); err != nil {
				return err
			}
		case evt, ok := <-c.fromServer:
			if !ok {
				return fmt.Errorf("%w: connection unregistered", models.ErrTransport)
			}
			if err := c.ws.WriteJSON(evt); err != nil {
				return fmt.Errorf("%w: %w", models.ErrTransport, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientEvent(evt models.ClientEvent) error {
	metrics.GatewayEvents.WithLabelValues(string(evt.Type)).Inc()

	if evt.ChatID == "" {
		return c.reject(evt, "chatId is required")
	}

	_, joined := c.rooms[evt.ChatID]

	switch evt.Type {
	case models.ClientEventJoinChat:
		if !models.IsParticipant(c.userID, evt.ChatID) {
			return c.reject(evt, "not a participant of this chat")
		}
		if joined {
			return nil
		}
		c.rooms[evt.ChatID] = struct{}{}
		c.hub.JoinRoom(c.id, evt.ChatID)
	case models.ClientEventLeaveChat:
		if !joined {
			return nil
		}
		delete(c.rooms, evt.ChatID)
		c.hub.LeaveRoom(c.id, evt.ChatID)
	case models.ClientEventTypingStart, models.ClientEventTypingStop:
		if !joined {
			return nil
		}
		c.hub.Typing(c.id, evt.ChatID, evt.Type == models.ClientEventTypingStart)
	default:
		return c.reject(evt, fmt.Sprintf("unknown event type %q", evt.Type))
	}

	return nil
}

// reject reports a protocol error to this connection only.
func (c *Connection) reject(evt models.ClientEvent, reason string) error {
	slog.Debug("rejecting client event",
		"conn_id", c.id, "user_id", c.userID, "type", evt.Type, "chat_id", evt.ChatID, "reason", reason)

	if err := c.ws.WriteJSON(models.ServerEvent{
		Type:   models.ServerEventError,
		ChatID: evt.ChatID,
		Error: &models.EventError{
			Code:    models.ErrorCodeProtocol,
			Message: reason,
		},
	}); err != nil {
		return fmt.Errorf("%w: %w", models.ErrTransport, err)
	}
	return nil
}
