package rpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tolelom/gamescrow/logging"
)

// maxBodyBytes limits a request body to 1 MB.
const maxBodyBytes = 1 << 20

// Observer receives one callback per dispatched call.
type Observer interface {
	ObserveRPC(method string, failed bool, elapsed time.Duration)
}

// Server is a JSON-RPC 2.0 HTTP server.
type Server struct {
	handler   *Handler
	addr      string
	authToken string // empty → no auth required
	tls       *tls.Config
	metrics   http.Handler
	observer  Observer
	srv       *http.Server
	log       zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAuthToken requires "Authorization: Bearer <token>" on every call.
func WithAuthToken(token string) Option { return func(s *Server) { s.authToken = token } }

// WithTLS serves HTTPS using cfg.
func WithTLS(cfg *tls.Config) Option { return func(s *Server) { s.tls = cfg } }

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithObserver records per-method outcomes and latency.
func WithObserver(o Observer) Option { return func(s *Server) { s.observer = o } }

// NewServer creates a Server on addr.
func NewServer(addr string, handler *Handler, opts ...Option) *Server {
	s := &Server{handler: handler, addr: addr, log: logging.Component("rpc")}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		TLSConfig:         s.tls,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Group(func(rpc chi.Router) {
		if s.authToken != "" {
			rpc.Use(s.requireToken)
		}
		rpc.Post("/", s.serveRPC)
	})
	return r
}

// ListenAndServe binds addr and serves until ctx is cancelled, then shuts
// down gracefully, waiting up to 5 seconds for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	if s.tls != nil {
		ln = tls.NewListener(ln, s.tls)
	}
	s.log.Info().Str("addr", ln.Addr().String()).Bool("tls", s.tls != nil).
		Bool("auth", s.authToken != "").Msg("rpc listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.authToken {
			writeJSON(w, http.StatusUnauthorized, errResponse(nil, CodeUnauthorized, "unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, http.StatusOK, errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'"))
		return
	}

	resp := s.handler.Dispatch(req)
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveRPC(req.Method, resp.Error != nil, elapsed)
	}
	ev := s.log.Debug().Str("method", req.Method).Dur("elapsed", elapsed).
		Str("request_id", chimw.GetReqID(r.Context()))
	if resp.Error != nil {
		ev = ev.Int("code", resp.Error.Code).Str("error", resp.Error.Message)
	}
	ev.Msg("rpc call")
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
