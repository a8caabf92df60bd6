// Package whois implements the port-43 WHOIS front end (RFC 3912): one
// query line per connection, a text record in reply, then close.
package whois

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/config"
	"github.com/qenex/regd/pkg/metrics"
	"github.com/qenex/regd/pkg/registry/models"
	"github.com/qenex/regd/pkg/registry/store"
)

const (
	queryTimeout = 10 * time.Second
	maxQueryLen  = 512
)

// Server is the WHOIS front end.
type Server struct {
	cfg      config.WHOISConfig
	serverID string
	store    *store.Store

	listener net.Listener
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopping chan struct{}
}

// NewServer builds the WHOIS server.
func NewServer(cfg *config.Config, st *store.Store) *Server {
	return &Server{
		cfg:      cfg.WHOIS,
		serverID: cfg.EPP.ServerID,
		store:    st,
		stopping: make(chan struct{}),
	}
}

// Listen binds the configured address without serving yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("whois listen: %w", err)
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
	logger.Info("WHOIS server listening", "addr", s.listener.Addr().String())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopping:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("WHOIS accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Start listens and serves until Stop is called. It blocks.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop shuts the server down and waits for in-flight queries.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopping)
		if s.listener != nil {
			err = s.listener.Close()
		}
		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
		logger.Info("WHOIS server stopped")
	})
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(queryTimeout))

	r := bufio.NewReaderSize(conn, maxQueryLen)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return
	}
	query := strings.TrimSpace(line)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	record, found := s.answer(ctx, query)

	outcome := "hit"
	if !found {
		outcome = "miss"
	}
	metrics.ObserveFrontend("whois", outcome)
	logger.Debug("WHOIS query", "query", query, "found", found, "peer", conn.RemoteAddr())

	_, _ = conn.Write([]byte(record))
}

// answer renders the WHOIS record for a query. Queries are domain names;
// anything else gets the no-match answer.
func (s *Server) answer(ctx context.Context, query string) (string, bool) {
	if query == "" {
		return "% Query must be a domain name\r\n", false
	}

	d, err := s.store.LookupDomain(ctx, query)
	if errors.Is(err, models.ErrDomainNotFound) {
		return fmt.Sprintf("No match for %q\r\n", strings.ToLower(query)), false
	}
	if err != nil {
		return "% Query failed, try again later\r\n", false
	}

	var b strings.Builder
	roid := strings.ToUpper(strings.ReplaceAll(d.Name, ".", "-")) + "-" + s.serverID
	fmt.Fprintf(&b, "Domain Name: %s\r\n", strings.ToUpper(d.Name))
	fmt.Fprintf(&b, "Registry Domain ID: %s\r\n", roid)
	fmt.Fprintf(&b, "Creation Date: %s\r\n", d.CrDate.UTC().Format(time.RFC3339))
	if !d.UpDate.IsZero() {
		fmt.Fprintf(&b, "Updated Date: %s\r\n", d.UpDate.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Registry Expiry Date: %s\r\n", d.ExDate.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Sponsoring Registrar: %s\r\n", d.ClID)
	for _, status := range d.Statuses {
		fmt.Fprintf(&b, "Domain Status: %s\r\n", status)
	}
	fmt.Fprintf(&b, "Registrant ID: %s\r\n", d.Registrant)
	for _, c := range d.Contacts {
		fmt.Fprintf(&b, "%s ID: %s\r\n", capitalize(c.Role), c.Handle)
	}
	for _, h := range d.Hosts {
		fmt.Fprintf(&b, "Name Server: %s\r\n", strings.ToUpper(h.Name))
	}
	fmt.Fprintf(&b, "\r\n>>> Last update of WHOIS database: %s <<<\r\n",
		time.Now().UTC().Format(time.RFC3339))
	return b.String(), true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
