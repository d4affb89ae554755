// Package transport is the client side of the websocket gateway: one
// logical connection that redials with exponential backoff.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"duet/internal/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

type Status string

const (
	StatusConnect          Status = "connect"
	StatusDisconnect       Status = "disconnect"
	StatusConnectError     Status = "connect_error"
	StatusReconnectAttempt Status = "reconnect_attempt"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Listener receives status transitions and server events. Calls come
// from the transport goroutine, one at a time.
type Listener interface {
	OnStatus(status Status, err error)
	OnEvent(evt models.ServerEvent)
}

type Transport struct {
	url        string
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff

	mu   sync.Mutex
	conn *websocket.Conn
}

// New returns a transport for the gateway at serverURL, e.g.
// ws://localhost:8080/api/chat.
func New(serverURL string) *Transport {
	return &Transport{
		url: serverURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Run keeps a connection open until ctx is done or the credential is
// rejected. Transport failures are reported to l and retried.
func (t *Transport) Run(ctx context.Context, token string, l Listener) error {
	target, err := withToken(t.url, token)
	if err != nil {
		return err
	}

	b := t.newBackOff()
	first := true
	for {
		if !first {
			if err := sleep(ctx, b.NextBackOff()); err != nil {
				return err
			}
			l.OnStatus(StatusReconnectAttempt, nil)
		}
		first = false

		conn, resp, err := t.dialer.DialContext(ctx, target, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				err = fmt.Errorf("%w: handshake rejected", models.ErrAuthentication)
				l.OnStatus(StatusConnectError, err)
				return err
			}
			l.OnStatus(StatusConnectError, fmt.Errorf("%w: %w", models.ErrTransport, err))
			continue
		}

		b.Reset()
		t.setConn(conn)
		l.OnStatus(StatusConnect, nil)

		err = t.read(ctx, conn, l)
		t.setConn(nil)

		if ctx.Err() != nil {
			l.OnStatus(StatusDisconnect, nil)
			return ctx.Err()
		}
		slog.Debug("socket dropped", "error", err)
		l.OnStatus(StatusDisconnect, fmt.Errorf("%w: %w", models.ErrTransport, err))
	}
}

// Emit sends evt on the current connection.
func (t *Transport) Emit(evt models.ClientEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("%w: not connected", models.ErrTransport)
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %w", models.ErrTransport, err)
	}
	if err := t.conn.WriteJSON(evt); err != nil {
		return fmt.Errorf("%w: %w", models.ErrTransport, err)
	}
	return nil
}

func (t *Transport) read(ctx context.Context, conn *websocket.Conn, l Listener) error {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	for {
		var evt models.ServerEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if isDecodeError(err) {
				slog.Warn("skipping malformed event", "error", err)
				continue
			}
			return err
		}
		l.OnEvent(evt)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, models.ErrProtocol)
}

func (t *Transport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
}

func withToken(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
