package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"duet/internal/api"
	"duet/internal/auth"
	"duet/internal/pipeline"
	"duet/internal/storage"
	"duet/internal/ws"
)

type APIServer struct {
	server *http.Server
	ws     *ws.Server
	wg     sync.WaitGroup
}

func NewAPIServer(authService *auth.AuthService, hub *ws.Hub, store storage.Store, pipe *pipeline.Pipeline, addr string) *APIServer {
	wsServer := ws.NewServer(authService, hub, store)
	apiHandlers := api.New(authService, store, pipe, hub)

	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("GET /api/chats", apiHandlers.RequireAuth(apiHandlers.ChatsHandler))
	mux.HandleFunc("GET /api/chats/{chatId}/messages", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))
	mux.HandleFunc("POST /api/chats/{chatId}/messages", apiHandlers.RequireAuth(apiHandlers.SendMessageHandler))
	mux.HandleFunc("GET /api/friends", apiHandlers.RequireAuth(apiHandlers.FriendsHandler))
	mux.HandleFunc("GET /api/presence", apiHandlers.RequireAuth(apiHandlers.PresenceHandler))

	// WebSocket endpoint
	mux.HandleFunc("GET /api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: withMetrics(mux),
		},
		ws: wsServer,
	}
}

func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	slog.Info("API server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then disconnects live sockets.
func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	err := s.server.Shutdown(ctx)
	s.ws.Close()
	return err
}
