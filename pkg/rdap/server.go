package rdap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/config"
	"github.com/qenex/regd/pkg/metrics"
	"github.com/qenex/regd/pkg/registry/models"
	"github.com/qenex/regd/pkg/registry/store"
)

const contentType = "application/rdap+json"

// Server is the RDAP HTTP front end.
type Server struct {
	cfg      config.RDAPConfig
	serverID string
	store    *store.Store

	listener net.Listener
	http     *http.Server
}

// NewServer builds the RDAP server.
func NewServer(cfg *config.Config, st *store.Store) *Server {
	s := &Server{
		cfg:      cfg.RDAP,
		serverID: cfg.EPP.ServerID,
		store:    st,
	}
	s.http = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/domain/{name}", s.handleDomain)
	r.Get("/nameserver/{name}", s.handleNameserver)
	r.Get("/entity/{handle}", s.handleEntity)
	r.Get("/help", s.handleHelp)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found", "no such RDAP path")
	})

	return r
}

// Listen binds the configured address without serving yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("rdap listen: %w", err)
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

// Serve answers requests until Stop is called. It blocks.
func (s *Server) Serve() error {
	logger.Info("RDAP server listening", "addr", s.listener.Addr().String())
	if err := s.http.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens and serves until Stop is called. It blocks.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop shuts the server down, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	logger.Info("RDAP server stopped")
	return err
}

func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, err := s.store.LookupDomain(r.Context(), name)
	if errors.Is(err, models.ErrDomainNotFound) {
		metrics.ObserveFrontend("rdap", "miss")
		writeError(w, http.StatusNotFound, "Not Found",
			fmt.Sprintf("domain %s is not registered", name))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	metrics.ObserveFrontend("rdap", "hit")
	writeJSON(w, http.StatusOK, domainObject(d, s.serverID, s.cfg.BaseURL))
}

func (s *Server) handleNameserver(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h, err := s.store.LookupHost(r.Context(), name)
	if errors.Is(err, models.ErrHostNotFound) {
		metrics.ObserveFrontend("rdap", "miss")
		writeError(w, http.StatusNotFound, "Not Found",
			fmt.Sprintf("nameserver %s is not known", name))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	metrics.ObserveFrontend("rdap", "hit")
	writeJSON(w, http.StatusOK, nameserverObject(h, s.serverID))
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	c, err := s.store.LookupContact(r.Context(), handle)
	if errors.Is(err, models.ErrContactNotFound) {
		metrics.ObserveFrontend("rdap", "miss")
		writeError(w, http.StatusNotFound, "Not Found",
			fmt.Sprintf("entity %s is not known", handle))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	metrics.ObserveFrontend("rdap", "hit")
	writeJSON(w, http.StatusOK, entityObject(c))
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	metrics.ObserveFrontend("rdap", "hit")
	writeJSON(w, http.StatusOK, &Help{
		RDAPConformance: []string{conformanceLevel},
		Notices: []Notice{{
			Title: "RDAP Service",
			Description: []string{
				"Registration data for domains, nameservers, and entities.",
				"Paths: /domain/{name}, /nameserver/{name}, /entity/{handle}.",
			},
		}},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("RDAP response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, title, description string) {
	body := &ErrorResponse{
		RDAPConformance: []string{conformanceLevel},
		ErrorCode:       status,
		Title:           title,
	}
	if description != "" {
		body.Description = []string{description}
	}
	writeJSON(w, status, body)
}

// requestLogger logs each request with its status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("RDAP request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
