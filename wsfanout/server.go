//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package wsfanout implements an authenticated WebSocket server that
// broadcasts events to connected dashboards without ever back-pressuring
// the data path.
package wsfanout

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/mcpsentinel/sentinel/event"
	"github.com/mcpsentinel/sentinel/internal/logx"
)

// DefaultPeerQueueSize is the default bound on a peer's send queue.
const DefaultPeerQueueSize = 1024

// DefaultWriteDeadline is the default per-frame write deadline.
const DefaultWriteDeadline = 5 * time.Second

// Config configures a [*Server].
type Config struct {
	// Bind is the HTTP listen address (e.g. "127.0.0.1:3000").
	Bind string

	// Token authenticates `GET /ws?token=...`. Empty disables
	// authentication and logs a startup warning.
	Token string

	// PeerQueueSize bounds each peer's outbound queue. Zero means
	// [DefaultPeerQueueSize].
	PeerQueueSize int

	// WriteDeadline bounds each WebSocket frame write. Zero means
	// [DefaultWriteDeadline].
	WriteDeadline time.Duration

	// Dashboard, if non-nil, is served at GET /. The dashboard bundle
	// itself ships separately; this stays nil unless an embedder
	// supplies one.
	Dashboard http.Handler

	// Logger receives connection/auth lifecycle logs.
	Logger logx.SLogger
}

// Server is the WebSocket fan-out. Deliver is safe to call from the
// single sequencer-driven goroutine the rest of the pipeline uses; it
// never blocks on a slow or dead peer.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	upgrade websocket.Upgrader

	mu              sync.Mutex
	peers           map[*peer]struct{}
	eventsForwarded uint64

	authDisabled bool
}

var _ event.Sink = (*Server)(nil)

// New constructs a [*Server] but does not start listening; call
// [*Server.Serve] to do that.
func New(cfg Config) *Server {
	if cfg.PeerQueueSize <= 0 {
		cfg.PeerQueueSize = DefaultPeerQueueSize
	}
	if cfg.WriteDeadline <= 0 {
		cfg.WriteDeadline = DefaultWriteDeadline
	}
	if cfg.Logger == nil {
		cfg.Logger = logx.Default()
	}

	s := &Server{
		cfg:          cfg,
		peers:        make(map[*peer]struct{}),
		authDisabled: cfg.Token == "",
		upgrade:      websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}

	if s.authDisabled {
		cfg.Logger.Info("wsAuthDisabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/ws", s.handleWS)
	e.GET("/healthz", s.handleHealthz)
	if cfg.Dashboard != nil {
		e.GET("/", echo.WrapHandler(cfg.Dashboard))
	}
	s.echo = e

	return s
}

// Serve blocks, accepting connections until ctx is cancelled, at which
// point it shuts down the HTTP server and closes all connected peers.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.cfg.Bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.shutdown()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.echo.Shutdown(shutdownCtx)

	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = make(map[*peer]struct{})
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
}

func (s *Server) handleHealthz(c echo.Context) error {
	s.mu.Lock()
	peerCount := len(s.peers)
	forwarded := s.eventsForwarded
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{
		"peers":            peerCount,
		"events_forwarded": forwarded,
	})
}

func (s *Server) handleWS(c echo.Context) error {
	if !s.authDisabled {
		supplied := c.QueryParam("token")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.cfg.Token)) != 1 {
			s.cfg.Logger.Info("wsAuthFailed", slog.String("remote", c.RealIP()))
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
		}
	}

	conn, err := s.upgrade.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	p := newPeer(conn, s.cfg.PeerQueueSize, s.cfg.WriteDeadline, s.cfg.Logger)
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	s.cfg.Logger.Info("wsPeerConnected", slog.String("remote", c.RealIP()))

	go func() {
		p.writePump()
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		s.cfg.Logger.Info("wsPeerDisconnected")
	}()
	go p.readPump()

	return nil
}

// Deliver implements [event.Sink]: it pushes evt's JSON serialization to
// every connected peer's queue without blocking.
func (s *Server) Deliver(evt event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.eventsForwarded++
	s.mu.Unlock()

	for _, p := range peers {
		p.offer(data)
	}
	return nil
}

// Flush implements [event.Sink]. The fan-out has no buffered durable
// state to flush; it is a no-op satisfying the interface.
func (s *Server) Flush() error { return nil }

// PeerCount returns the number of currently connected peers.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
