// Package gateway exposes the agent runtime over a WebSocket RPC protocol:
// request/response frames for method calls, event frames for streamed chat
// output, tool activity, and approval notifications.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/majordomo-ai/majordomo/internal/bus"
	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// Server accepts WebSocket connections and routes frames.
type Server struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	router   *MethodRouter
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	http     *http.Server

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewServer(cfg *config.Config, mb *bus.MessageBus) *Server {
	s := &Server{
		cfg:     cfg,
		bus:     mb,
		limiter: NewRateLimiter(cfg.Gateway.RatePerSec, cfg.Gateway.RateBurst),
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway binds to loopback by default; token auth covers
			// the rest.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.router = NewMethodRouter(s)
	return s
}

// Router exposes the method router for registering method sets.
func (s *Server) Router() *MethodRouter { return s.router }

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.bus != nil {
		s.bus.Subscribe("gateway", s.onBusEvent)
		defer s.bus.Unsubscribe("gateway")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(ctx, w, r)
	})

	addr := net.JoinHostPort(s.cfg.Gateway.Host, fmt.Sprintf("%d", s.cfg.Gateway.Port))
	s.http = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.shutdown()
		return nil
	}
}

func (s *Server) shutdown() {
	s.mu.RLock()
	for _, c := range s.clients {
		c.SendEvent(protocol.EventFrame{Type: protocol.FrameTypeEvent, Event: protocol.EventShutdown})
	}
	s.mu.RUnlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		send:   make(chan []byte, 256),
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	slog.Info("client connected", "client", client.id, "remote", r.RemoteAddr)
	client.Run(ctx)

	s.mu.Lock()
	delete(s.clients, client.id)
	s.mu.Unlock()
	slog.Info("client disconnected", "client", client.id)
}

// onBusEvent forwards runtime events to every authenticated client.
func (s *Server) onBusEvent(ev bus.Event) {
	frame := protocol.EventFrame{
		Type:    protocol.FrameTypeEvent,
		Event:   ev.Type,
		Session: ev.Session,
		Payload: ev.Payload,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.Authenticated() {
			c.SendEvent(frame)
		}
	}
}

// ClientCount reports connected clients, for the status method.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
