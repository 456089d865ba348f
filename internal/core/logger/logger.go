// Package logger provides the structured logging engine for agentdeck.
// Uses log/slog with support for multiple sinks: stderr, file, TUI.
package logger

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ─────────────────────────────────────────────────────────────────────────────
// Logger
// ─────────────────────────────────────────────────────────────────────────────

// Logger wraps slog.Logger with agentdeck-specific utilities.
type Logger struct {
	*slog.Logger
	audit   *auditSink  // append-only audit log (nil = disabled)
	closers []io.Closer // files opened by Init
}

type auditSink struct {
	mu sync.Mutex
	w  io.Writer
}

// tuiSinkCh receives formatted log lines for TUI display.
var tuiSinkCh chan string

// SetTUISink registers a channel that receives log lines destined for the TUI.
// Call before Init to enable TUI log forwarding.
func SetTUISink(ch chan string) {
	tuiSinkCh = ch
}

// Options controls where Init sends log output.
type Options struct {
	Level   string // debug | info | warn | error
	Format  string // json | text
	File    string // optional log file path
	HomeDir string // audit.log is written here when set
	Debug   bool   // forces debug level and source locations
	Quiet   bool   // suppress stderr, e.g. while the TUI owns the terminal
}

// Init builds the logger and installs it as the slog default.
func Init(opts Options) (*Logger, error) {
	var lvl slog.Level
	switch opts.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if opts.Debug {
		lvl = slog.LevelDebug
	}

	l := &Logger{}

	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0750); err == nil {
			f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
			if err == nil {
				writers = append(writers, f)
				l.closers = append(l.closers, f)
			}
		}
	}

	// TUI sink: forward log lines to channel
	if tuiSinkCh != nil {
		writers = append(writers, &tuiWriter{ch: tuiSinkCh})
	}

	out := io.MultiWriter(writers...)

	var handler slog.Handler
	hopts := &slog.HandlerOptions{Level: lvl, AddSource: opts.Debug}
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}

	l.Logger = slog.New(handler)
	slog.SetDefault(l.Logger)

	if opts.HomeDir != "" {
		auditPath := filepath.Join(opts.HomeDir, "audit.log")
		if af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640); err == nil {
			l.audit = &auditSink{w: af}
			l.closers = append(l.closers, af)
		}
	}

	return l, nil
}

// New wraps an existing slog.Logger, with an optional audit writer.
func New(base *slog.Logger, audit io.Writer) *Logger {
	l := &Logger{Logger: base}
	if audit != nil {
		l.audit = &auditSink{w: audit}
	}
	return l
}

// Discard returns a Logger that drops everything. Intended for tests.
func Discard() *Logger {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

// With returns a Logger carrying the given attributes, sharing the audit sink.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), audit: l.audit}
}

// Close releases files opened by Init.
func (l *Logger) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}

// Fingerprint returns a short, non-reversible tag for a secret so it can be
// correlated in logs without being written out.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:4])
}

// ─────────────────────────────────────────────────────────────────────────────
// Audit logging
// ─────────────────────────────────────────────────────────────────────────────

// AuditEntry represents a single audit log event.
type AuditEntry struct {
	Timestamp time.Time         `json:"ts"`
	Op        string            `json:"op"` // tunnel.start | tunnel.stop | config.save | onboarding.complete | config.reset
	Session   string            `json:"session"`
	Mode      string            `json:"mode,omitempty"`
	Result    string            `json:"result"` // success | failure
	Meta      map[string]string `json:"meta,omitempty"`
}

// Audit writes an append-only audit log entry.
func (l *Logger) Audit(entry AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	l.Info("audit",
		"op", entry.Op,
		"session", entry.Session,
		"mode", entry.Mode,
		"result", entry.Result,
	)
	if l.audit == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.audit.mu.Lock()
	defer l.audit.mu.Unlock()
	_, _ = l.audit.w.Write(append(line, '\n'))
}

// ─────────────────────────────────────────────────────────────────────────────
// TUI writer
// ─────────────────────────────────────────────────────────────────────────────

// tuiWriter implements io.Writer by forwarding lines to the TUI sink channel.
type tuiWriter struct {
	mu sync.Mutex
	ch chan<- string
}

func (w *tuiWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case w.ch <- string(p):
	default: // drop if channel full, never block the logger
	}
	return len(p), nil
}
