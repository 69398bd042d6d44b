// Package wsbridge carries a control.Channel between processes over a
// websocket. Status updates are written as JSON text frames
// ({"awaitingConnection":true}) and commands are read back
// ({"abort":true}).
package wsbridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/germanamz/ledgerd/pkg/control"
)

// DefaultBufferSize is the per-connection status buffer.
const DefaultBufferSize = 16

// ServerOptions configures a Server.
type ServerOptions struct {
	Logger *slog.Logger
	// OriginPatterns are passed to websocket.Accept. Empty allows only
	// same-host origins.
	OriginPatterns []string
	BufferSize     int
}

// Server is an http.Handler bridging websocket clients to a control.Channel.
type Server struct {
	ch      *control.Channel
	log     *slog.Logger
	origins []string
	bufSize int
	clients atomic.Int64
}

var _ http.Handler = (*Server)(nil)

// NewServer creates a Server for ch.
func NewServer(ch *control.Channel, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	return &Server{
		ch:      ch,
		log:     opts.Logger,
		origins: opts.OriginPatterns,
		bufSize: opts.BufferSize,
	}
}

// Clients returns the number of connected clients receiving statuses.
func (s *Server) Clients() int { return int(s.clients.Load()) }

// ServeHTTP upgrades the request and forwards statuses until the client
// disconnects or the channel is closed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.log.Warn("wsbridge: accept", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck // best-effort after a normal close

	sub := s.ch.SubscribeStatus(s.bufSize)
	defer s.ch.UnsubscribeStatus(sub)

	s.clients.Add(1)
	defer s.clients.Add(-1)

	s.log.Debug("wsbridge: client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readCommands(ctx, cancel, conn)

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "control channel closed")
				return
			}
			if err := wsjson.Write(ctx, conn, st); err != nil {
				s.log.Debug("wsbridge: write status", "error", err)
				return
			}
		}
	}
}

func (s *Server) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()

	for {
		var cmd control.Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			if !isNormalClose(err) && ctx.Err() == nil {
				s.log.Debug("wsbridge: read command", "error", err)
			}
			return
		}
		s.ch.Send(cmd)
	}
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}
