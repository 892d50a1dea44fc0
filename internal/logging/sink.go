package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kahiteam/ringbuf"
	"github.com/kahiteam/ringbuf/internal/config"
)

// DefaultTailSize is the tail ring capacity used when SinkConfig.TailSize is
// not set.
const DefaultTailSize = 64 * 1024

// SinkConfig configures frame output.
type SinkConfig struct {
	Name      string    // source label in json lines
	File      string    // path, empty writes to Output
	Output    io.Writer // used when File is empty, defaults to os.Stdout
	Format    string    // "raw" (default) or "json"
	StripAnsi bool
	MaxBytes  string // max file size before rotation (e.g. "10KB")
	Backups   int    // number of rotated backup files to keep
	TailSize  int
	Logger    *slog.Logger
}

// Sink writes frames to a file or stream and keeps the most recent output in
// an overwriting ring for tail requests.
type Sink struct {
	mu       sync.Mutex
	config   SinkConfig
	file     *rotatingFile
	out      io.Writer
	handlers []func(name string, data []byte)
	tail     *ringbuf.Buffer
}

// NewSink creates a frame sink. An existing file at or over MaxBytes is
// rotated before it is opened.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if cfg.TailSize <= 0 {
		cfg.TailSize = DefaultTailSize
	}
	tail, err := ringbuf.New(cfg.TailSize)
	if err != nil {
		return nil, fmt.Errorf("cannot allocate tail buffer: %w", err)
	}

	s := &Sink{config: cfg, tail: tail, out: cfg.Output}
	if s.out == nil {
		s.out = os.Stdout
	}

	if cfg.File != "" {
		maxBytes, err := config.ParseSize(cfg.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("invalid maxbytes: %w", err)
		}
		f, err := openRotating(cfg.File, maxBytes, cfg.Backups)
		if err != nil {
			return nil, err
		}
		s.file = f
		s.out = f
	}

	return s, nil
}

// Write implements io.Writer. Data goes to the tail ring, the destination
// and every handler.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := p
	if s.config.StripAnsi {
		data = StripANSI(data)
	}

	s.tail.Put(data, true)

	if s.out != nil {
		if _, err := s.out.Write(data); err != nil && s.config.Logger != nil {
			s.config.Logger.Error("frame write failed", "file", s.config.File, "error", err)
		}
	}

	for _, h := range s.handlers {
		h(s.config.Name, data)
	}

	return len(p), nil
}

// WriteFrame formats one frame as a line and writes it.
func (s *Sink) WriteFrame(frame []byte, oversize bool) error {
	var line []byte
	if s.config.Format == "json" {
		if s.config.StripAnsi {
			frame = StripANSI(frame)
		}
		line = FormatJSONLine(s.config.Name, frame, oversize)
	} else {
		line = make([]byte, 0, len(frame)+1)
		line = append(line, frame...)
		line = append(line, '\n')
	}
	_, err := s.Write(line)
	return err
}

// AddHandler adds a callback for written data.
func (s *Sink) AddHandler(h func(name string, data []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// ReadTail returns the last n bytes written. If n exceeds what the tail ring
// holds, everything it holds is returned.
func (s *Sink) ReadTail(n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	n = min(n, s.tail.Len())
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	s.tail.Peek(s.tail.Len()-n, out)
	return out
}

// TailLen returns the number of bytes held for tail requests.
func (s *Sink) TailLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tail.Len()
}

// Close closes the log file if open and releases the tail ring.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tail.Close()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.out = nil
	return err
}

// Reopen closes and reopens the log file (for log rotation tools).
func (s *Sink) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if err := s.file.Reopen(); err != nil {
		return fmt.Errorf("cannot reopen: %w", err)
	}
	return nil
}

// FormatJSONLine formats a frame as a JSON log entry.
func FormatJSONLine(source string, frame []byte, oversize bool) []byte {
	entry := struct {
		Time     string `json:"time"`
		Source   string `json:"source,omitempty"`
		Len      int    `json:"len"`
		Frame    string `json:"frame"`
		Oversize bool   `json:"oversize,omitempty"`
	}{
		Time:     time.Now().Format(time.RFC3339),
		Source:   source,
		Len:      len(frame),
		Frame:    string(frame),
		Oversize: oversize,
	}
	data, _ := json.Marshal(entry)
	return append(data, '\n')
}
