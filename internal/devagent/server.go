// Package devagent implements a local stand-in for the deployment agent.
// It serves the same HTTP surface the Agent Link talks to, reports real host
// stats and tracks one simulated tunnel, so the controller and TUI can be
// exercised without a full agent install.
package devagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/agentlink"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/pkg/netutil"
)

// StatsSource produces a host snapshot for GET /stats.
type StatsSource func(ctx context.Context) (v1.SystemStats, error)

// Options holds configuration for the Server.
type Options struct {
	// Managed, when set, is reported under "managed" as a cloud agent would.
	Managed *v1.ManagedCounts
	// MeshPort is the default local_port when a start request omits it.
	MeshPort int
	// TunnelRate and TunnelBurst throttle tunnel commands; excess requests get 429.
	TunnelRate  rate.Limit
	TunnelBurst int
	// Stats overrides host collection, mainly for tests.
	Stats StatsSource

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MeshPort:     v1.DefaultMeshPort,
		TunnelRate:   rate.Every(time.Second),
		TunnelBurst:  3,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

type activeTunnel struct {
	Provider  string    `json:"provider"`
	LocalPort int       `json:"local_port"`
	StartedAt time.Time `json:"started_at"`
}

// Server is the development agent HTTP server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	opts       Options
	limiter    *rate.Limiter
	log        *logger.Logger

	mu     sync.Mutex
	tunnel *activeTunnel
}

// NewServer creates a Server with its routes registered.
func NewServer(opts Options, log *logger.Logger) *Server {
	if opts.Stats == nil {
		opts.Stats = HostStats
	}
	if opts.MeshPort == 0 {
		opts.MeshPort = v1.DefaultMeshPort
	}
	if opts.TunnelRate == 0 {
		opts.TunnelRate = rate.Inf
	}
	if opts.TunnelBurst <= 0 {
		opts.TunnelBurst = 1
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		mux:     http.NewServeMux(),
		opts:    opts,
		limiter: rate.NewLimiter(opts.TunnelRate, opts.TunnelBurst),
		log:     log.With("component", "devagent"),
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the root http.Handler (useful for testing with httptest).
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on rawURL (http://host:port or unix:///path.sock) until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, rawURL string) error {
	ep, err := netutil.ParseAgentURL(rawURL)
	if err != nil {
		return err
	}
	if ep.Proto == "unix" {
		_ = os.Remove(ep.Addr)
	}
	ln, err := net.Listen(ep.Proto, ep.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", rawURL, err)
	}
	s.log.Info("dev agent listening", "url", rawURL)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("dev agent shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("POST /tunnel/start", s.throttled(s.handleTunnelStart))
	s.mux.HandleFunc("POST /tunnel/stop", s.throttled(s.handleTunnelStop))
	s.mux.HandleFunc("GET /tunnel", s.handleTunnelStatus)
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.opts.Stats(r.Context())
	if err != nil {
		s.log.Warn("collect host stats", "err", err)
		http.Error(w, "stats collection failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if s.opts.Managed != nil {
		m := *s.opts.Managed
		stats.Managed = &m
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTunnelStart(w http.ResponseWriter, r *http.Request) {
	var req agentlink.TunnelStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Provider == "" {
		req.Provider = v1.ProviderCloudflare
	}
	if req.Provider != v1.ProviderCloudflare && req.Provider != v1.ProviderPangolin {
		http.Error(w, "Unsupported provider", http.StatusBadRequest)
		return
	}
	if req.LocalPort == 0 {
		req.LocalPort = s.opts.MeshPort
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tunnel != nil {
		http.Error(w, "Tunnel already running with provider: "+s.tunnel.Provider, http.StatusConflict)
		return
	}
	s.tunnel = &activeTunnel{Provider: req.Provider, LocalPort: req.LocalPort, StartedAt: time.Now().UTC()}

	s.log.Info("tunnel started",
		"provider", req.Provider,
		"local_port", req.LocalPort,
		"credential", logger.Fingerprint(req.Token),
	)
	writeJSON(w, http.StatusOK, tunnelResponse{
		Status:  "success",
		Message: fmt.Sprintf("Started %s tunnel forwarding to port %d", req.Provider, req.LocalPort),
	})
}

func (s *Server) handleTunnelStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tunnel == nil {
		http.Error(w, "No active tunnel found", http.StatusNotFound)
		return
	}
	provider := s.tunnel.Provider
	s.tunnel = nil

	s.log.Info("tunnel stopped", "provider", provider)
	writeJSON(w, http.StatusOK, tunnelResponse{
		Status:  "success",
		Message: fmt.Sprintf("Stopped %s tunnel", provider),
	})
}

func (s *Server) handleTunnelStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"active": s.tunnel != nil,
		"tunnel": s.tunnel,
	})
}

// throttled rejects tunnel commands beyond the configured rate with 429.
func (s *Server) throttled(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.log.Debug("tunnel command throttled", "path", r.URL.Path)
			http.Error(w, "too many tunnel commands, slow down", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

type tunnelResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
