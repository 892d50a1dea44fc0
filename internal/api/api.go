// Package api exposes the ringbuf inspection API over Unix socket and
// optional TCP.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kahiteam/ringbuf"
	"github.com/kahiteam/ringbuf/internal/events"
	"github.com/kahiteam/ringbuf/internal/pipeline"
	"github.com/kahiteam/ringbuf/internal/version"
)

// Request limits.
const (
	DefaultPeekLength = 16
	MaxPeekLength     = 64 * 1024
	DefaultTailBytes  = 1600
)

// Pipeline is the view of the run loop the handlers need.
type Pipeline interface {
	Inspect(fn func(b *ringbuf.Buffer))
	Status() pipeline.Status
	IsReady() bool
	Reopen() error
	ReadTail(n int) []byte
}

// PeekResult is the response body of the peek endpoint.
type PeekResult struct {
	Index  int    `json:"index"`
	Length int    `json:"length"`
	Hex    string `json:"hex"`
	Text   string `json:"text"`
}

// FindResult is the response body of the find endpoint. Match is -1 when
// nothing matched.
type FindResult struct {
	Index int  `json:"index"`
	Match int  `json:"match"`
	Found bool `json:"found"`
}

// RunLengthResult is the response body of the runlength endpoint.
type RunLengthResult struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// Server is the HTTP API server for ringbuf.
type Server struct {
	pipeline   Pipeline
	bus        *events.Bus
	metrics    http.Handler
	dashboard  http.Handler
	shutdown   func()
	logger     *slog.Logger
	mux        *http.ServeMux
	unixLn     net.Listener
	tcpLn      net.Listener
	unixServer *http.Server
	tcpServer  *http.Server
	stopping   atomic.Bool
	baseCtx    context.Context
	cancelBase context.CancelFunc

	creds     credentials
	keepalive time.Duration
}

// Config holds API server configuration.
type Config struct {
	Username string
	Password string // bcrypt hash

	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	// Shutdown is called by POST /api/v1/shutdown.
	Shutdown func()

	// Dashboard serves every GET path not claimed above when set.
	Dashboard http.Handler
}

// NewServer creates an API server with the given dependencies.
func NewServer(cfg Config, p Pipeline, bus *events.Bus, logger *slog.Logger) *Server {
	s := &Server{
		pipeline:  p,
		bus:       bus,
		metrics:   cfg.Metrics,
		dashboard: cfg.Dashboard,
		shutdown:  cfg.Shutdown,
		logger:    logger,
		creds:     credentials{user: cfg.Username, hash: cfg.Password},
		keepalive: 15 * time.Second,
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.mux = s.buildMux()
	return s
}

// newHTTPServer builds a server for one listener. Requests arriving over the
// Unix socket carry a context mark that lets them bypass basic auth.
func (s *Server) newHTTPServer(local bool) *http.Server {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	if local {
		srv.ConnContext = func(ctx context.Context, _ net.Conn) context.Context {
			return withLocalConn(ctx)
		}
	}
	return srv
}

func (s *Server) serve(name string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api listener failed", "listener", name, "error", err)
		}
	}()
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Probe endpoints -- no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	// API v1 endpoints -- auth required on TCP.
	mux.HandleFunc("GET /api/v1/buffer", s.requireAuth(s.handleBuffer))
	mux.HandleFunc("GET /api/v1/buffer/peek", s.requireAuth(s.handlePeek))
	mux.HandleFunc("GET /api/v1/buffer/find", s.requireAuth(s.handleFind))
	mux.HandleFunc("GET /api/v1/buffer/runlength", s.requireAuth(s.handleRunLength))
	mux.HandleFunc("GET /api/v1/tail", s.requireAuth(s.handleTail))
	mux.HandleFunc("POST /api/v1/reopen", s.requireAuth(s.handleReopen))
	mux.HandleFunc("POST /api/v1/shutdown", s.requireAuth(s.handleShutdown))
	mux.HandleFunc("GET /api/v1/version", s.requireAuth(s.handleVersion))
	mux.HandleFunc("GET /api/v1/events/stream", s.requireAuth(s.handleEventStream))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.requireAuth(s.metrics.ServeHTTP))
	}
	if s.dashboard != nil {
		mux.Handle("GET /", s.requireAuth(s.dashboard.ServeHTTP))
	}

	return mux
}

// StartUnix creates and begins serving on a Unix domain socket.
func (s *Server) StartUnix(path string, mode os.FileMode) error {
	// Remove stale socket from previous run.
	if err := removeStaleSocket(path); err != nil {
		return fmt.Errorf("cannot create socket: %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("cannot create socket: %s: %w", path, err)
	}

	if err := os.Chmod(path, mode); err != nil {
		ln.Close()
		return fmt.Errorf("cannot set socket permissions: %s: %w", path, err)
	}

	s.unixLn = ln
	s.unixServer = s.newHTTPServer(true)
	s.serve("unix", s.unixServer, ln)

	s.logger.Info("unix socket server started", "path", path)
	return nil
}

// StartTCP begins serving on a TCP address.
func (s *Server) StartTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cannot bind %s: %w", addr, err)
	}

	s.tcpLn = ln
	s.tcpServer = s.newHTTPServer(false)

	// Warn about binding to all interfaces.
	host, _, _ := net.SplitHostPort(addr)
	if host == "0.0.0.0" || host == "" || host == "::" {
		s.logger.Warn("HTTP server bound to all interfaces", "addr", addr)
	}
	if !s.creds.enabled() {
		s.logger.Warn("HTTP server has no credentials configured", "addr", addr)
	}
	s.serve("tcp", s.tcpServer, ln)

	s.logger.Info("tcp http server started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down all listeners. Open event streams are ended
// first so they do not hold the shutdown open.
func (s *Server) Stop(ctx context.Context) error {
	s.stopping.Store(true)
	s.cancelBase()

	var result *multierror.Error
	if s.unixServer != nil {
		if err := s.unixServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("unix server: %w", err))
		}
	}
	if s.tcpServer != nil {
		if err := s.tcpServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("tcp server: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// UnixAddr returns the address of the Unix listener, or empty if not started.
func (s *Server) UnixAddr() string {
	if s.unixLn != nil {
		return s.unixLn.Addr().String()
	}
	return ""
}

// TCPAddr returns the address of the TCP listener, or empty if not started.
func (s *Server) TCPAddr() string {
	if s.tcpLn != nil {
		return s.tcpLn.Addr().String()
	}
	return ""
}

func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// --- HTTP Handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.stopping.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "shutting_down",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.pipeline != nil && s.pipeline.IsReady() && !s.stopping.Load() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status": "not_ready",
	})
}

func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Status())
}

func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	index, err := intParam(q.Get("index"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "index: "+err.Error(), "BAD_REQUEST")
		return
	}
	length, err := intParam(q.Get("length"), DefaultPeekLength)
	if err != nil || length <= 0 || length > MaxPeekLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("length must be between 1 and %d", MaxPeekLength), "BAD_REQUEST")
		return
	}

	out := make([]byte, length)
	var ok bool
	var used int
	s.pipeline.Inspect(func(b *ringbuf.Buffer) {
		used = b.Len()
		ok = b.Peek(index, out)
	})
	if !ok {
		writeError(w, http.StatusRequestedRangeNotSatisfiable,
			fmt.Sprintf("range %d+%d is outside the %d valid bytes", index, length, used), "OUT_OF_RANGE")
		return
	}

	writeJSON(w, http.StatusOK, PeekResult{
		Index:  index,
		Length: length,
		Hex:    hex.EncodeToString(out),
		Text:   string(out),
	})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	index, err := intParam(q.Get("index"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "index: "+err.Error(), "BAD_REQUEST")
		return
	}

	byteParam, pattern, hexParam := q.Get("byte"), q.Get("pattern"), q.Get("hex")
	given := 0
	for _, v := range []string{byteParam, pattern, hexParam} {
		if v != "" {
			given++
		}
	}
	if given != 1 {
		writeError(w, http.StatusBadRequest, "exactly one of byte, pattern or hex is required", "BAD_REQUEST")
		return
	}

	var find func(b *ringbuf.Buffer) int
	switch {
	case byteParam != "":
		c, err := strconv.ParseUint(byteParam, 0, 8)
		if err != nil {
			writeError(w, http.StatusBadRequest, "byte must be a number between 0 and 255", "BAD_REQUEST")
			return
		}
		find = func(b *ringbuf.Buffer) int { return b.IndexByte(index, byte(c)) }
	case hexParam != "":
		seq, err := hex.DecodeString(hexParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "hex: "+err.Error(), "BAD_REQUEST")
			return
		}
		find = func(b *ringbuf.Buffer) int { return b.Index(index, seq) }
	default:
		seq := []byte(pattern)
		find = func(b *ringbuf.Buffer) int { return b.Index(index, seq) }
	}

	var match int
	s.pipeline.Inspect(func(b *ringbuf.Buffer) { match = find(b) })
	writeJSON(w, http.StatusOK, FindResult{
		Index: index,
		Match: match,
		Found: match != ringbuf.NotFound,
	})
}

func (s *Server) handleRunLength(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r.URL.Query().Get("index"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "index: "+err.Error(), "BAD_REQUEST")
		return
	}
	var n int
	s.pipeline.Inspect(func(b *ringbuf.Buffer) { n = b.RunLength(index) })
	writeJSON(w, http.StatusOK, RunLengthResult{Index: index, Length: n})
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	n := DefaultTailBytes
	if v := r.URL.Query().Get("bytes"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "bytes must be a positive integer", "BAD_REQUEST")
			return
		}
		n = parsed
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(s.pipeline.ReadTail(n))
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Reopen(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "SERVER_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reopened"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.shutdown == nil {
		writeError(w, http.StatusNotImplemented, "shutdown is not available", "NOT_IMPLEMENTED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting_down"})
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.shutdown()
	}()
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Info())
}

// --- Helpers ---

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
