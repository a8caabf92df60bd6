// Package epp implements the EPP server: the TLS listener, the
// per-connection command loop, and the pending-transfer sweeper. The wire
// format lives in the frame and wire subpackages, command semantics in
// handlers.
package epp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/qenex/regd/internal/epp/handlers"
	"github.com/qenex/regd/internal/epp/session"
	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/config"
	"github.com/qenex/regd/pkg/registry/store"
)

// Server is the EPP front end.
type Server struct {
	cfg      config.EPPConfig
	transfer config.TransferConfig
	env      *handlers.Env
	registry *session.Registry

	listener net.Listener
	conns    sync.Map // net.Conn -> struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopping chan struct{}
}

// NewServer builds the EPP server from configuration.
func NewServer(cfg *config.Config, st *store.Store) *Server {
	return &Server{
		cfg:      cfg.EPP,
		transfer: cfg.Transfer,
		env: &handlers.Env{
			Store:          st,
			ServerID:       cfg.EPP.ServerID,
			InsecureAuth:   cfg.EPP.InsecureAuth,
			TransferWindow: cfg.Transfer.AutoApproveAfter,
		},
		registry: session.NewRegistry(),
		stopping: make(chan struct{}),
	}
}

// Start listens and serves until Stop is called. It blocks.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds the configured address without serving yet.
func (s *Server) Listen() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound listen address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Stop is called. It blocks.
func (s *Server) Serve() error {
	ln := s.listener
	logger.Info("EPP server listening",
		"addr", ln.Addr().String(),
		"tls", !s.cfg.InsecureNoTLS,
		"serverID", s.cfg.ServerID)

	s.wg.Add(1)
	go s.sweepTransfers()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopping:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("EPP accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) listen() (net.Listener, error) {
	if s.cfg.InsecureNoTLS {
		return net.Listen("tcp", s.cfg.Addr())
	}

	cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if s.cfg.TLSClientCA != "" {
		pem, err := os.ReadFile(s.cfg.TLSClientCA)
		if err != nil {
			return nil, fmt.Errorf("load client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("client CA file %s contains no certificates", s.cfg.TLSClientCA)
		}
		tlsCfg.ClientCAs = pool
		if s.cfg.RequireClientCert {
			tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
		}
	}
	return tls.Listen("tcp", s.cfg.Addr(), tlsCfg)
}

// Stop shuts the server down: stop accepting, interrupt blocking reads so
// connection goroutines drain, and force-close whatever is left when the
// context expires.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopping)
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.interruptBlockingReads()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			logger.Warn("EPP shutdown timed out, force-closing connections",
				"open", s.registry.Count())
			s.forceCloseConns()
			<-done
		}
		logger.Info("EPP server stopped")
	})
	return err
}

// interruptBlockingReads wakes connection goroutines parked in a frame
// read by expiring their deadlines.
func (s *Server) interruptBlockingReads() {
	s.conns.Range(func(key, _ any) bool {
		if conn, ok := key.(net.Conn); ok {
			_ = conn.SetDeadline(time.Now())
		}
		return true
	})
}

func (s *Server) forceCloseConns() {
	s.conns.Range(func(key, _ any) bool {
		if conn, ok := key.(net.Conn); ok {
			_ = conn.Close()
		}
		return true
	})
}

// Sessions returns the live session registry.
func (s *Server) Sessions() *session.Registry {
	return s.registry
}

// sweepTransfers periodically server-approves transfers pending longer
// than the transfer window.
func (s *Server) sweepTransfers() {
	defer s.wg.Done()

	interval := s.transfer.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopping:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n, err := handlers.AutoApproveTransfers(ctx, s.env)
			cancel()
			if err != nil {
				logger.Error("Transfer sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("Transfer sweep approved pending transfers", "count", n)
			}
		}
	}
}
