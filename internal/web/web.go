// Package web serves the ringbuf dashboard with embedded static assets.
package web

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kahiteam/ringbuf"
	"github.com/kahiteam/ringbuf/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// DefaultDumpLimit caps the held bytes rendered on the status page.
const DefaultDumpLimit = 512

// Source provides pipeline data for the dashboard.
type Source interface {
	Status() pipeline.Status
	Inspect(fn func(b *ringbuf.Buffer))
}

// StatusPageData is the template data for the status page.
type StatusPageData struct {
	Status     pipeline.Status
	State      string
	StateLower string
	Uptime     string
	Capacity   string
	Used       string
	Free       string
	UsedPct    string
	Dump       string
	Shown      int
	Truncated  bool
}

// TailPageData is the template data for the output viewer page.
type TailPageData struct {
	Name  string
	Bytes int
}

// Handler serves the ringbuf web UI.
type Handler struct {
	source    Source
	templates *template.Template
	staticFS  http.FileSystem
	dumpLimit int
	mux       *http.ServeMux
	logger    *slog.Logger
}

// Config configures the web handler.
type Config struct {
	StaticDir string // override embedded assets with files from this directory
	DumpLimit int    // held bytes shown on the status page, DefaultDumpLimit if zero
}

// NewHandler creates a web UI handler.
func NewHandler(source Source, cfg Config, logger *slog.Logger) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("cannot parse templates: %w", err)
	}

	var sfs http.FileSystem
	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err != nil || !info.IsDir() {
			logger.Warn("static_dir not found, using embedded assets", "path", cfg.StaticDir)
			sub, _ := fs.Sub(staticFS, "static")
			sfs = http.FS(sub)
		} else {
			sfs = http.Dir(cfg.StaticDir)
		}
	} else {
		sub, _ := fs.Sub(staticFS, "static")
		sfs = http.FS(sub)
	}

	limit := cfg.DumpLimit
	if limit <= 0 {
		limit = DefaultDumpLimit
	}

	h := &Handler{
		source:    source,
		templates: tmpl,
		staticFS:  sfs,
		dumpLimit: limit,
		logger:    logger,
	}
	h.mux = http.NewServeMux()
	h.RegisterRoutes(h.mux)
	return h, nil
}

// RegisterRoutes adds web UI routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /tail", h.handleTail)
	mux.Handle("GET /static/", http.StripPrefix("/static/", h.staticHandler()))
}

// ServeHTTP serves the UI routes and 404 for anything else.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := h.source.Status()

	var held []byte
	var total int
	h.source.Inspect(func(b *ringbuf.Buffer) {
		total = b.Len()
		held = make([]byte, min(total, h.dumpLimit))
		b.Peek(0, held)
	})

	state := "STOPPED"
	if st.Running {
		state = "RUNNING"
	}
	uptime := "-"
	if st.UptimeSeconds > 0 {
		uptime = FormatUptime(int64(st.UptimeSeconds))
	}
	pct := 0.0
	if st.Buffer.Capacity > 0 {
		pct = 100 * float64(st.Buffer.Used) / float64(st.Buffer.Capacity)
	}

	data := StatusPageData{
		Status:     st,
		State:      state,
		StateLower: strings.ToLower(state),
		Uptime:     uptime,
		Capacity:   humanize.IBytes(uint64(st.Buffer.Capacity)),
		Used:       humanize.IBytes(uint64(st.Buffer.Used)),
		Free:       humanize.IBytes(uint64(st.Buffer.Capacity - st.Buffer.Used)),
		UsedPct:    fmt.Sprintf("%.1f", pct),
		Dump:       hex.Dump(held),
		Shown:      len(held),
		Truncated:  total > len(held),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		h.logger.Error("template render error", "error", err)
	}
}

func (h *Handler) handleTail(w http.ResponseWriter, r *http.Request) {
	data := TailPageData{
		Name:  h.source.Status().Name,
		Bytes: 4096,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "tail.html", data); err != nil {
		h.logger.Error("template render error", "error", err)
	}
}

func (h *Handler) staticHandler() http.Handler {
	fileServer := http.FileServer(h.staticFS)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ext := filepath.Ext(r.URL.Path)
		switch ext {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		case ".svg":
			w.Header().Set("Content-Type", "image/svg+xml")
		}

		// ETag based on file name and modification time.
		f, err := h.staticFS.Open(r.URL.Path)
		if err == nil {
			defer f.Close()
			if info, err := f.Stat(); err == nil && !info.IsDir() {
				etag := fmt.Sprintf(`"%x"`, sha256.Sum256([]byte(info.Name()+info.ModTime().String())))
				w.Header().Set("ETag", etag)
				w.Header().Set("Cache-Control", "public, max-age=3600")
				if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
		}

		fileServer.ServeHTTP(w, r)
	})
}

// FormatUptime formats seconds into a human-readable duration.
func FormatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
