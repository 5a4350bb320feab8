// Package server implements the downstream half of the proxy: it accepts
// client connections, drives the SOCKS5 handshake, and hands the resulting
// pair of Transports to a Forwarder, grounded on the teacher's
// proxy/server.Server accept-loop shape (pkg/proxy/server/server.go) and
// generalized from the teacher's blob-polling session model to a direct
// Transport accept loop.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"socks5d/pkg/forward"
	"socks5d/pkg/transport"
	"socks5d/pkg/upstream"
)

// Server owns a downstream transport.Factory and an upstream.Upstream, and
// relays every accepted connection's CONNECT target through it.
type Server struct {
	factory transport.Factory
	up      upstream.Upstream
	log     zerolog.Logger

	// HandshakeTimeout bounds S0->S5; zero means no deadline.
	HandshakeTimeout time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

type session struct {
	id       uuid.UUID
	client   transport.Transport
	upstream transport.Transport
	started  time.Time
}

// New returns a Server accepting on factory and resolving CONNECT targets
// through up.
func New(factory transport.Factory, up upstream.Upstream, log zerolog.Logger) *Server {
	return &Server{
		factory:  factory,
		up:       up,
		log:      log,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Serve accepts connections on addr until ctx is cancelled or a terminal
// listener error occurs, per spec §8 property 9 ("one hard Accept error ends
// the loop; a per-connection handshake error does not").
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.log.Info().Str("addr", addr).Msg("downstream listening")
	return s.factory.Accept(ctx, addr, func(err error, t transport.Transport) bool {
		if err != nil {
			s.log.Error().Err(err).Msg("accept failed")
			return false
		}
		go s.handleConnection(ctx, t)
		return true
	})
}

func (s *Server) handleConnection(ctx context.Context, client transport.Transport) {
	id := uuid.New()
	log := s.log.With().Str("session", id.String()).Uint64("transport_id", client.ID()).Logger()

	hctx := ctx
	var cancel context.CancelFunc
	if s.HandshakeTimeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, s.HandshakeTimeout)
		defer cancel()
	}

	upstreamTransport, err := handshake(hctx, client, s.up)
	if err != nil {
		log.Warn().Err(err).Msg("handshake failed")
		_ = client.Close()
		return
	}

	log.Info().
		Uint64("upstream_transport_id", upstreamTransport.ID()).
		Msg("session established")

	sess := &session{id: id, client: client, upstream: upstreamTransport, started: time.Now()}
	s.addSession(sess)
	defer s.removeSession(id)

	f := forward.New(client, upstreamTransport, log)
	if err := f.Run(ctx); err != nil {
		log.Debug().Err(err).Msg("forwarding ended")
	}
	log.Info().Msg("session closed")
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
}

func (s *Server) removeSession(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// SessionInfo is a snapshot of one active session, used by admin tooling
// (e.g. the CLI's session table) without exposing the live Transport.
type SessionInfo struct {
	ID           string
	ClientID     uint64
	UpstreamID   uint64
	ClientAddr   string
	UpstreamAddr string
	Started      time.Time
}

// Sessions returns a snapshot of every currently active session.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, SessionInfo{
			ID:           sess.id.String(),
			ClientID:     sess.client.ID(),
			UpstreamID:   sess.upstream.ID(),
			ClientAddr:   sess.client.LocalAddr().String(),
			UpstreamAddr: sess.upstream.LocalAddr().String(),
			Started:      sess.started,
		})
	}
	return out
}
