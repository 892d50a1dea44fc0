// Package pipeline runs the ingest loop: bytes from a source are staged in a
// ring buffer with the configured write mode, cut into frames and written to
// the frame sink, with events and metrics published along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kahiteam/ringbuf"
	"github.com/kahiteam/ringbuf/internal/config"
	"github.com/kahiteam/ringbuf/internal/dma"
	"github.com/kahiteam/ringbuf/internal/events"
	"github.com/kahiteam/ringbuf/internal/framer"
	"github.com/kahiteam/ringbuf/internal/logging"
	"github.com/kahiteam/ringbuf/internal/metrics"
)

// ErrRunning is returned by Run when the pipeline is already running.
var ErrRunning = errors.New("pipeline already running")

// Stop reasons carried by PIPELINE_STOPPED.
const (
	StopEOF      = "eof"
	StopCanceled = "canceled"
	StopError    = "error"
)

// Options configures a pipeline.
type Options struct {
	Config *config.Config
	Name   string // source label used in events and json output

	// Output receives frames when the config names no output file.
	Output io.Writer

	// Storage backs the buffer when the config asks for borrowed storage.
	// A slab of the configured capacity is allocated when nil.
	Storage []byte

	// Allocator supplies owned storage. Defaults to the heap.
	Allocator ringbuf.Allocator

	Bus     *events.Bus
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Stats counts what the pipeline has done since it was created.
type Stats struct {
	BytesIn        int64 `json:"bytes_in"`
	Dropped        int64 `json:"dropped"`
	Overwritten    int64 `json:"overwritten"`
	Frames         int64 `json:"frames"`
	Oversize       int64 `json:"oversize"`
	Partial        int64 `json:"partial"`
	ResyncRejected int64 `json:"resync_rejected"`
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Name          string        `json:"name"`
	Mode          string        `json:"mode"`
	Storage       string        `json:"storage"`
	Framer        string        `json:"framer"`
	Running       bool          `json:"running"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	Buffer        ringbuf.State `json:"buffer"`
	Stats         Stats         `json:"stats"`
}

// Pipeline owns one staging buffer and everything that feeds and drains it.
type Pipeline struct {
	mu      sync.Mutex
	name    string
	mode    string
	storage string
	frameBy string
	chunk   int
	flush   bool

	buf    *ringbuf.Buffer
	framer *framer.Framer
	engine dma.Engine
	sink   *logging.Sink

	bus     *events.Bus
	metrics *metrics.Collector
	logger  *slog.Logger

	stats   Stats
	running bool
	started time.Time
	closed  bool
}

// New builds a pipeline from a validated config.
func New(opts Options) (*Pipeline, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	coll := opts.Metrics
	if coll == nil {
		coll = metrics.New()
	}

	buf, err := newBuffer(cfg.Buffer, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot create buffer: %w", err)
	}

	fr, err := framer.New(buf, framer.Config{
		Mode:          cfg.Framer.Mode,
		Delimiter:     []byte(cfg.Framer.Delimiter),
		KeepDelimiter: cfg.Framer.KeepDelimiter,
		Size:          config.SizeBytes(cfg.Framer.Size),
		MaxFrame:      config.SizeBytes(cfg.Framer.MaxFrame),
	})
	if err != nil {
		buf.Close()
		return nil, fmt.Errorf("cannot create framer: %w", err)
	}

	sink, err := logging.NewSink(logging.SinkConfig{
		Name:      opts.Name,
		File:      cfg.Output.File,
		Output:    opts.Output,
		Format:    cfg.Output.Format,
		StripAnsi: cfg.Output.StripAnsi,
		MaxBytes:  cfg.Output.Maxbytes,
		Backups:   cfg.Output.Backups,
		TailSize:  config.SizeBytes(cfg.Output.TailSize),
		Logger:    logger,
	})
	if err != nil {
		buf.Close()
		return nil, err
	}

	chunk := config.SizeBytes(cfg.Source.ChunkSize)
	if chunk <= 0 {
		chunk = 256
	}
	flush := true
	if cfg.Framer.FlushPartial != nil {
		flush = *cfg.Framer.FlushPartial
	}

	p := &Pipeline{
		name:    opts.Name,
		mode:    cfg.Buffer.Mode,
		storage: cfg.Buffer.Storage,
		frameBy: cfg.Framer.Mode,
		chunk:   chunk,
		flush:   flush,
		buf:     buf,
		framer:  fr,
		engine: dma.Engine{
			Circular: cfg.Buffer.Mode == config.ModeDMACircular,
			Prestage: cfg.Buffer.Prestage,
			Fill:     byte(cfg.Buffer.PrestageByte),
		},
		sink:    sink,
		bus:     bus,
		metrics: coll,
		logger:  logging.WithFields(logger, "pipeline", opts.Name),
	}
	coll.SetBuffer(0, buf.Cap())
	return p, nil
}

func newBuffer(cfg config.BufferConfig, opts Options) (*ringbuf.Buffer, error) {
	capacity := config.SizeBytes(cfg.Capacity)
	if cfg.Storage == config.StorageBorrowed {
		storage := opts.Storage
		if storage == nil {
			storage = make([]byte, capacity)
		}
		return ringbuf.NewBorrowed(storage)
	}
	return ringbuf.New(capacity, ringbuf.WithAllocator(opts.Allocator))
}

// Bus returns the event bus.
func (p *Pipeline) Bus() *events.Bus { return p.bus }

// Metrics returns the metrics collector.
func (p *Pipeline) Metrics() *metrics.Collector { return p.metrics }

// ReadTail returns up to n of the most recently written output bytes.
func (p *Pipeline) ReadTail(n int) []byte { return p.sink.ReadTail(n) }

// Run reads r until EOF, a read error or ctx cancellation. A clean EOF and a
// cancellation both return nil. Whatever is left in the buffer is flushed as
// a partial frame when flushing is enabled.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrRunning
	}
	p.running = true
	p.started = time.Now()
	capacity := p.buf.Cap()
	p.mu.Unlock()

	tickID := p.bus.Subscribe(events.Tick5, func(events.Event) {
		p.metrics.SetPipelineUptime(p.uptime().Seconds())
	})
	defer p.bus.Unsubscribe(tickID)

	p.bus.Publish(events.Event{
		Type: events.PipelineStarted,
		Data: map[string]string{
			"name":     p.name,
			"mode":     p.mode,
			"capacity": strconv.Itoa(capacity),
		},
	})
	p.logger.Info("pipeline running", "mode", p.mode, "capacity", capacity, "framer", p.frameBy)

	chunks := make(chan []byte)
	errc := make(chan error, 1)
	go p.read(ctx, r, chunks, errc)

	reason := StopEOF
	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			reason = StopCanceled
			break loop
		case chunk, ok := <-chunks:
			if !ok {
				if err := <-errc; err != nil {
					reason = StopError
					runErr = fmt.Errorf("read source: %w", err)
				}
				break loop
			}
			p.ingest(chunk)
		}
	}

	p.finish(reason)
	return runErr
}

// read feeds chunks to the run loop. It sends exactly one value on errc.
// A reader blocked in Read outlives cancellation until Read returns.
func (p *Pipeline) read(ctx context.Context, r io.Reader, out chan<- []byte, errc chan<- error) {
	defer close(out)
	for {
		chunk := make([]byte, p.chunk)
		n, err := r.Read(chunk)
		if n > 0 {
			select {
			case out <- chunk[:n]:
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				err = nil
			}
			errc <- err
			return
		}
	}
}

// Ingest stages one chunk and drains the frames it completes. Run calls it
// for every chunk read; it is exported for callers that push bytes
// themselves.
func (p *Pipeline) Ingest(chunk []byte) {
	if len(chunk) > 0 {
		p.ingest(chunk)
	}
}

// ingest holds the lock while touching the buffer and publishes afterwards,
// so bus handlers may call back into the pipeline.
func (p *Pipeline) ingest(chunk []byte) {
	p.mu.Lock()
	pending := p.stage(chunk)
	pending = append(pending, p.drain()...)
	st := p.buf.State()
	p.mu.Unlock()

	p.metrics.SetBuffer(st.Used, st.Capacity)
	p.publish(pending)
}

// stage feeds chunk to the buffer in pieces no larger than the free space,
// draining complete frames whenever the buffer fills. The bytes left over
// once no complete frame is buffered go through the mode's overflow policy:
// dropped, overwritten or handed to the transfer engine whole. Caller holds
// p.mu.
func (p *Pipeline) stage(chunk []byte) []events.Event {
	p.stats.BytesIn += int64(len(chunk))
	p.metrics.AddBytesIn(len(chunk))

	var pending []events.Event
	for len(chunk) > 0 {
		free := p.buf.Free()
		if free == 0 {
			pending = append(pending, p.drainComplete()...)
			if free = p.buf.Free(); free == 0 {
				break
			}
		}
		n := min(len(chunk), free)
		pending = append(pending, p.store(chunk[:n])...)
		chunk = chunk[n:]
	}
	if len(chunk) > 0 {
		pending = append(pending, p.store(chunk)...)
	}
	return pending
}

// store writes chunk into the buffer with the configured mode. Caller holds
// p.mu.
func (p *Pipeline) store(chunk []byte) []events.Event {
	var pending []events.Event
	n := len(chunk)

	var dropped, evicted int
	switch p.mode {
	case config.ModeOverwrite:
		used, free := p.buf.Len(), p.buf.Free()
		kept := p.buf.Put(chunk, true)
		evicted = min(used, max(0, n-free))
		dropped = n - kept
	case config.ModeDMA, config.ModeDMACircular:
		res, err := p.engine.Transfer(p.buf, chunk)
		if err != nil {
			p.stats.ResyncRejected++
			p.metrics.IncResync(false)
			p.logger.Error("transfer rejected", "error", err, "bytes", n)
			pending = append(pending, events.Event{
				Type: events.ResyncRejected,
				Data: map[string]string{"name": p.name, "bytes": strconv.Itoa(n), "error": err.Error()},
			})
			dropped = n
			break
		}
		p.metrics.IncResync(true)
		evicted, dropped = res.Evicted, res.Dropped
	default:
		dropped = n - p.buf.Put(chunk, false)
	}

	if dropped > 0 {
		p.stats.Dropped += int64(dropped)
		p.metrics.AddDropped(dropped)
		p.logger.Debug("bytes dropped", "bytes", dropped)
		pending = append(pending, events.Event{
			Type: events.BufferDropped,
			Data: map[string]string{"name": p.name, "bytes": strconv.Itoa(dropped)},
		})
	}
	if evicted > 0 {
		p.stats.Overwritten += int64(evicted)
		p.metrics.AddOverwritten(evicted)
		pending = append(pending, events.Event{
			Type: events.BufferOverrun,
			Data: map[string]string{"name": p.name, "bytes": strconv.Itoa(evicted)},
		})
	}
	return pending
}

// drain emits every frame the framer will give, including a full buffer
// forced out as oversize. Caller holds p.mu.
func (p *Pipeline) drain() []events.Event {
	return p.drainWith(p.framer.Next)
}

// drainComplete emits only terminated frames. Caller holds p.mu.
func (p *Pipeline) drainComplete() []events.Event {
	return p.drainWith(p.framer.NextComplete)
}

func (p *Pipeline) drainWith(next func() (framer.Frame, bool)) []events.Event {
	var pending []events.Event
	for {
		fr, ok := next()
		if !ok {
			return pending
		}
		pending = append(pending, p.emit(fr))
	}
}

// emit writes one frame to the sink. Caller holds p.mu.
func (p *Pipeline) emit(fr framer.Frame) events.Event {
	kind, typ := metrics.FrameComplete, events.FrameReceived
	switch {
	case fr.Oversize:
		kind, typ = metrics.FrameOversize, events.FrameOversize
		p.stats.Oversize++
	case fr.Partial:
		kind = metrics.FramePartial
		p.stats.Partial++
	}
	p.stats.Frames++

	p.logger.Debug("frame", "length", len(fr.Data), "oversize", fr.Oversize, "partial", fr.Partial, "data", logging.Preview(fr.Data))
	if err := p.sink.WriteFrame(fr.Data, fr.Oversize); err != nil {
		p.logger.Error("frame write failed", "error", err)
	}
	p.metrics.IncFrame(kind)

	return events.Event{
		Type: typ,
		Data: map[string]string{
			"name":   p.name,
			"kind":   kind,
			"length": strconv.Itoa(len(fr.Data)),
		},
	}
}

func (p *Pipeline) finish(reason string) {
	p.mu.Lock()
	pending := p.drain()
	if p.flush {
		if fr, ok := p.framer.Flush(); ok {
			pending = append(pending, p.emit(fr))
		}
	}
	p.running = false
	stats := p.stats
	st := p.buf.State()
	p.mu.Unlock()

	p.metrics.SetBuffer(st.Used, st.Capacity)
	p.publish(pending)
	p.bus.Publish(events.Event{
		Type: events.PipelineStopped,
		Data: map[string]string{
			"name":     p.name,
			"reason":   reason,
			"bytes_in": strconv.FormatInt(stats.BytesIn, 10),
			"frames":   strconv.FormatInt(stats.Frames, 10),
		},
	})
	p.logger.Info("pipeline stopped", "reason", reason, "bytes_in", stats.BytesIn, "frames", stats.Frames)
}

func (p *Pipeline) publish(pending []events.Event) {
	for _, e := range pending {
		p.bus.Publish(e)
	}
}

// Inspect runs fn against the buffer with the pipeline paused. fn must not
// retain the buffer.
func (p *Pipeline) Inspect(fn func(b *ringbuf.Buffer)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.buf)
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Status{
		Name:    p.name,
		Mode:    p.mode,
		Storage: p.storage,
		Framer:  p.frameBy,
		Running: p.running,
		Buffer:  p.buf.State(),
		Stats:   p.stats,
	}
	if p.running {
		s.UptimeSeconds = time.Since(p.started).Seconds()
	}
	return s
}

// IsReady reports whether the run loop is consuming the source.
func (p *Pipeline) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) uptime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return 0
	}
	return time.Since(p.started)
}

// Reopen reopens the output file, for use after external log rotation.
func (p *Pipeline) Reopen() error {
	p.logger.Info("reopening output file")
	return p.sink.Reopen()
}

// Close releases the sink and the buffer. It is idempotent.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var result *multierror.Error
	if err := p.sink.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close sink: %w", err))
	}
	if err := p.buf.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close buffer: %w", err))
	}
	return result.ErrorOrNil()
}
