package epp

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/qenex/regd/internal/epp/frame"
	"github.com/qenex/regd/internal/epp/handlers"
	"github.com/qenex/regd/internal/epp/session"
	"github.com/qenex/regd/internal/epp/wire"
	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/metrics"
)

const writeTimeout = 30 * time.Second

// handleConn runs the command loop of one connection: greeting, then
// read frame, parse, dispatch, respond, until the peer disconnects, the
// idle timeout fires, or a session-ending response is sent.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)
	defer conn.Close()

	sess := session.New(conn.RemoteAddr().String())
	s.registry.Add(sess)
	defer s.registry.Remove(sess.ID)
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	log := logger.With("session", sess.ID, "peer", sess.RemoteAddr)
	log.Info("EPP connection accepted")
	defer log.Info("EPP connection closed")

	if tlsConn, ok := conn.(*tls.Conn); ok {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
		if err := tlsConn.Handshake(); err != nil {
			log.Warn("TLS handshake failed", "error", err)
			return
		}
		_ = conn.SetDeadline(time.Time{})
	}

	if !s.writeGreeting(conn, log) {
		return
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		payload, err := frame.Read(conn)
		if errors.Is(err, frame.ErrFrameTooLarge) {
			// The oversize payload was drained, so the stream is still on a
			// frame boundary. Reject the command and keep the session.
			log.Warn("Oversize EPP frame rejected", "error", err)
			resp := &wire.Response{
				Code:   wire.CodeSyntaxError,
				SvTRID: wire.NewSvTRID(s.cfg.ServerID),
			}
			if !s.writeResponse(conn, log, resp) {
				return
			}
			continue
		}
		if err != nil {
			s.logReadError(log, err)
			return
		}

		cmd, perr := wire.Parse(payload)
		if perr != nil {
			// Not an EPP document. Answer 2001 and keep the session: the
			// frame boundary is intact, so the stream is still in sync.
			resp := &wire.Response{
				Code:   wire.CodeSyntaxError,
				SvTRID: wire.NewSvTRID(s.cfg.ServerID),
			}
			if !s.writeResponse(conn, log, resp) {
				return
			}
			continue
		}

		if cmd.Kind == wire.KindHello {
			if !s.writeGreeting(conn, log) {
				return
			}
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		resp := handlers.Dispatch(ctx, s.env, sess, cmd)
		cancel()

		if !s.writeResponse(conn, log, resp) {
			return
		}
		if wire.ClosesSession(resp.Code) {
			sess.Close()
			return
		}
	}
}

func (s *Server) logReadError(log *slog.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF):
		// Clean disconnect.
	case errors.Is(err, frame.ErrFrameHeader):
		log.Warn("Invalid EPP frame header, closing connection", "error", err)
	default:
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			log.Warn("EPP session idle timeout")
			return
		}
		log.Warn("EPP frame read failed", "error", err)
	}
}

func (s *Server) writeGreeting(conn net.Conn, log *slog.Logger) bool {
	greeting, err := wire.MarshalGreeting(s.cfg.ServerID, time.Now())
	if err != nil {
		log.Warn("Greeting marshal failed", "error", err)
		return false
	}
	return s.writeFrame(conn, log, greeting)
}

func (s *Server) writeResponse(conn net.Conn, log *slog.Logger, resp *wire.Response) bool {
	body, err := wire.MarshalResponse(resp)
	if err != nil {
		log.Warn("Response marshal failed", "error", err)
		return false
	}
	return s.writeFrame(conn, log, body)
}

func (s *Server) writeFrame(conn net.Conn, log *slog.Logger, payload []byte) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := frame.Write(conn, payload); err != nil {
		log.Warn("EPP frame write failed", "error", err)
		return false
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return true
}
