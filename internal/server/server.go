package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peerbeam/beacon/internal/config"
	"github.com/peerbeam/beacon/internal/journal"
	"github.com/peerbeam/beacon/internal/registry"
	"github.com/peerbeam/beacon/internal/signal"
)

// Server is the HTTP front end: REST endpoints over the peer registry
// plus the websocket signaling entry point. The registry, directory and
// relay carry the interesting behavior; the server only shapes requests
// and responses.
type Server struct {
	cfg   config.Config
	log   *logrus.Logger
	reg   *registry.Registry
	dir   *signal.Directory
	relay *signal.Relay
	jour  *journal.Journal

	limiter   *ipRateLimiter
	startedAt time.Time

	chMu     sync.Mutex
	channels map[string]*wsChannel

	httpSrv *http.Server
}

func New(cfg config.Config, log *logrus.Logger, reg *registry.Registry, dir *signal.Directory, relay *signal.Relay, jour *journal.Journal) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		reg:       reg,
		dir:       dir,
		relay:     relay,
		jour:      jour,
		startedAt: time.Now(),
		channels:  make(map[string]*wsChannel),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newIPRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return s
}

// Handler builds the full route table with middleware applied. Exposed
// separately so tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/peers/register", s.handleRegister)
	mux.HandleFunc("GET /api/peers", s.handleList)
	mux.HandleFunc("GET /api/peers/{id}", s.handleGet)
	mux.HandleFunc("POST /api/peers/{id}/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("DELETE /api/peers/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /", s.handleIndex)

	var h http.Handler = mux
	h = s.rateLimitMiddleware(h)
	h = corsMiddleware(h)
	h = s.logMiddleware(h)
	return h
}

// Start serves until ctx is cancelled, then shuts down gracefully: stop
// accepting, give in-flight requests the configured grace period, close
// open signaling channels.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Beacon server listening on %s", s.cfg.ListenAddr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		// Listener died before shutdown was requested.
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := s.httpSrv.Shutdown(sctx); err != nil {
		s.log.Warnf("Forced shutdown: %v", err)
	}
	s.closeChannels()

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
