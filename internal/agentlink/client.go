// Package agentlink is the typed client for the local agent's HTTP API.
//
// # Operations
//
// - CheckHealth: GET /health, any 2xx means online
// - GetSystemStats: GET /stats, decoded and normalised
// - StartTunnel: POST /tunnel/start
// - StopTunnel: POST /tunnel/stop
//
// Every call is bounded by the configured timeout and is never retried here;
// the poller's next tick is the retry.
package agentlink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docker/go-connections/sockets"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/pkg/errs"
	"github.com/f9-o/agentdeck/pkg/netutil"
)

// DefaultTimeout bounds each agent call when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of a failed response body is kept as error detail.
const maxErrorBody = 4096

// Link is the set of agent operations the session controller and poller depend on.
type Link interface {
	CheckHealth(ctx context.Context) error
	GetSystemStats(ctx context.Context) (v1.SystemStats, error)
	StartTunnel(ctx context.Context, req TunnelStartRequest) error
	StopTunnel(ctx context.Context) error
}

// TunnelStartRequest is the body of POST /tunnel/start.
type TunnelStartRequest struct {
	Provider  string `json:"provider"`
	Token     string `json:"token"`
	LocalPort int    `json:"local_port,omitempty"`
}

// Config for the client.
type Config struct {
	URL        string // http://host:port or unix:///path.sock
	Timeout    time.Duration
	HTTPClient *http.Client // overrides transport construction, mainly for tests
	Log        *logger.Logger
}

// Client talks to the agent over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        *logger.Logger
}

// New creates an agent client. Unix socket URLs get a transport that dials the socket.
func New(cfg Config) (*Client, error) {
	ep, err := netutil.ParseAgentURL(cfg.URL)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrConfig, "agentlink.new").
			WithAdvice("set agent.url to http://host:port or unix:///path/to/agent.sock")
	}

	if cfg.HTTPClient == nil {
		tr := &http.Transport{}
		if ep.Proto == "unix" {
			if err := sockets.ConfigureTransport(tr, ep.Proto, ep.Addr); err != nil {
				return nil, errs.Wrap(err, errs.ErrConfig, "agentlink.new")
			}
		}
		cfg.HTTPClient = &http.Client{Transport: tr}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}

	return &Client{
		baseURL:    ep.BaseURL,
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		log:        cfg.Log.With("component", "agentlink"),
	}, nil
}

// BaseURL returns the normalised URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckHealth reports nil when the agent answers /health with a 2xx status.
func (c *Client) CheckHealth(ctx context.Context) error {
	const op = "agentlink.health"

	resp, cancel, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return unreachable(op, err)
	}
	defer cancel()
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return errs.Newf(errs.ErrAgentUnreachable, op, "status %d", resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// GetSystemStats fetches and normalises the agent's resource snapshot.
func (c *Client) GetSystemStats(ctx context.Context) (v1.SystemStats, error) {
	const op = "agentlink.stats"

	resp, cancel, err := c.doRequest(ctx, http.MethodGet, "/stats", nil)
	if err != nil {
		return v1.SystemStats{}, unreachable(op, err)
	}
	defer cancel()
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return v1.SystemStats{}, errs.New(errs.ErrStatsUnavailable, op, readError(resp))
	}

	var stats v1.SystemStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		if isTimeout(err) {
			return v1.SystemStats{}, unreachable(op, err)
		}
		return v1.SystemStats{}, errs.Newf(errs.ErrStatsUnavailable, op, "decoding response: %w", err)
	}
	return stats.Normalize(), nil
}

// StartTunnel asks the agent to open a tunnel with the given provider and credential.
func (c *Client) StartTunnel(ctx context.Context, req TunnelStartRequest) error {
	const op = "agentlink.tunnel_start"

	resp, cancel, err := c.doRequest(ctx, http.MethodPost, "/tunnel/start", req)
	if err != nil {
		return unreachable(op, err)
	}
	defer cancel()
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return errs.New(errs.ErrTunnelStart, op, readError(resp))
	}
	c.log.Info("tunnel started",
		"provider", req.Provider,
		"local_port", req.LocalPort,
		"credential", logger.Fingerprint(req.Token),
	)
	return nil
}

// StopTunnel asks the agent to close the active tunnel.
func (c *Client) StopTunnel(ctx context.Context) error {
	const op = "agentlink.tunnel_stop"

	resp, cancel, err := c.doRequest(ctx, http.MethodPost, "/tunnel/stop", nil)
	if err != nil {
		return unreachable(op, err)
	}
	defer cancel()
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return errs.New(errs.ErrTunnelStop, op, readError(resp))
	}
	c.log.Info("tunnel stopped")
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// doRequest sends one bounded request. The returned cancel func must be called
// after the body has been consumed.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			cancel()
			return nil, nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "agentdeck/1.0")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("agent request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}

// readError turns a non-2xx response into an error carrying the body text.
func readError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(data))

	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &apiErr) == nil {
		if apiErr.Error != "" {
			msg = apiErr.Error
		} else if apiErr.Message != "" {
			msg = apiErr.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("%s (status %d)", msg, resp.StatusCode)
}

// unreachable maps a transport failure to AgentUnreachable. Deadline expiry
// carries the detail "timeout" so the dashboard shows "AgentUnreachable: timeout".
func unreachable(op string, err error) *errs.Error {
	if isTimeout(err) {
		return errs.New(errs.ErrAgentUnreachable, op, errors.New("timeout")).
			WithAdvice("the agent did not answer in time; check that it is running")
	}
	return errs.New(errs.ErrAgentUnreachable, op, err).
		WithAdvice("start the agent or point agent.url at it")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
