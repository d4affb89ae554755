package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"duet/internal/auth"
	"duet/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type tokenVerifier interface {
	Verify(token string) (string, error)
}

type profileToucher interface {
	TouchProfile(ctx context.Context, userID string, seen time.Time) error
}

// Server admits websocket connections to the hub.
type Server struct {
	verifier tokenVerifier
	hub      *Hub
	profiles profileToucher
	upgrader *websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(verifier tokenVerifier, hub *Hub, profiles profileToucher) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		verifier: verifier,
		hub:      hub,
		profiles: profiles,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Bearer tokens, not cookies, authenticate the socket.
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close disconnects every live socket and waits for their cleanup.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifier.Verify(auth.BearerToken(r))
	if err != nil {
		metrics.GatewayRejectedHandshakes.Inc()
		slog.Debug("websocket handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("error upgrading to websocket", "user_id", userID, "error", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	connID := uuid.NewString()
	log := slog.With("conn_id", connID, "user_id", userID)
	log.Info("websocket connected")

	metrics.GatewayConnections.Inc()
	defer metrics.GatewayConnections.Dec()

	s.touch(userID)
	defer s.touch(userID)

	sock := newSocket(conn)
	done := make(chan struct{})
	defer close(done)
	go sock.keepalive(done)

	err = NewConnection(s.hub, sock, connID, userID).Handle(s.ctx)
	if err != nil && !isNormalClose(err) {
		log.Warn("websocket connection ended", "error", err)
		return
	}
	log.Info("websocket disconnected")
}

func (s *Server) touch(userID string) {
	if s.profiles == nil {
		return
	}
	if err := s.profiles.TouchProfile(s.ctx, userID, time.Now()); err != nil {
		slog.Warn("failed to update last seen", "user_id", userID, "error", err)
	}
}

func isNormalClose(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}

// socket adapts a gorilla connection: deadlines on every write and a
// ping loop that keeps the read deadline moving.
type socket struct {
	conn *websocket.Conn
}

func newSocket(conn *websocket.Conn) *socket {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &socket{conn: conn}
}

func (s *socket) ReadJSON(v any) error {
	return s.conn.ReadJSON(v)
}

func (s *socket) WriteJSON(v any) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *socket) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return s.conn.Close()
}

func (s *socket) keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
