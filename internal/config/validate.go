package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kahiteam/ringbuf/internal/events"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"json": true, "text": true, "auto": true,
}

var validBufferModes = map[string]bool{
	ModeWrite: true, ModeOverwrite: true, ModeDMA: true, ModeDMACircular: true,
}

var validFramerModes = map[string]bool{
	FrameDelimiter: true, FrameNUL: true, FrameFixed: true,
}

// MaxCapacity bounds buffer.capacity.
const MaxCapacity = 64 << 20

// Validate checks the config for semantic errors and returns all of them.
func Validate(cfg *Config) []error {
	var errs []error

	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", cfg.Log.Level))
	}
	if !validLogFormats[strings.ToLower(cfg.Log.Format)] {
		errs = append(errs, fmt.Errorf("log.format must be json, text, or auto, got %q", cfg.Log.Format))
	}

	capacity, err := ParseSize(cfg.Buffer.Capacity)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("buffer.capacity: %w", err))
	case capacity <= 0 || capacity > MaxCapacity:
		errs = append(errs, fmt.Errorf("buffer.capacity must be between 1 and %d bytes, got %d", MaxCapacity, capacity))
	}
	if cfg.Buffer.Storage != StorageOwned && cfg.Buffer.Storage != StorageBorrowed {
		errs = append(errs, fmt.Errorf("buffer.storage must be owned or borrowed, got %q", cfg.Buffer.Storage))
	}
	if !validBufferModes[cfg.Buffer.Mode] {
		errs = append(errs, fmt.Errorf("buffer.mode must be write, overwrite, dma, or dma-circular, got %q", cfg.Buffer.Mode))
	}
	if cfg.Buffer.PrestageByte < 0 || cfg.Buffer.PrestageByte > 255 {
		errs = append(errs, fmt.Errorf("buffer.prestage_byte must be between 0 and 255, got %d", cfg.Buffer.PrestageByte))
	}

	if n, err := ParseSize(cfg.Source.ChunkSize); err != nil {
		errs = append(errs, fmt.Errorf("source.chunk_size: %w", err))
	} else if n <= 0 {
		errs = append(errs, fmt.Errorf("source.chunk_size must be positive"))
	}
	if cfg.Source.Baud < 0 {
		errs = append(errs, fmt.Errorf("source.baud must be >= 0, got %d", cfg.Source.Baud))
	}

	errs = append(errs, validateFramer(cfg.Framer, capacity)...)

	if cfg.Output.Format != "raw" && cfg.Output.Format != "json" {
		errs = append(errs, fmt.Errorf("output.format must be raw or json, got %q", cfg.Output.Format))
	}
	if _, err := ParseSize(cfg.Output.Maxbytes); err != nil {
		errs = append(errs, fmt.Errorf("output.maxbytes: %w", err))
	}
	if cfg.Output.Backups < 0 {
		errs = append(errs, fmt.Errorf("output.backups must be >= 0, got %d", cfg.Output.Backups))
	}
	if n, err := ParseSize(cfg.Output.TailSize); err != nil {
		errs = append(errs, fmt.Errorf("output.tail_size: %w", err))
	} else if n <= 0 {
		errs = append(errs, fmt.Errorf("output.tail_size must be positive"))
	}

	if _, err := strconv.ParseUint(cfg.Server.Unix.Chmod, 8, 32); err != nil {
		errs = append(errs, fmt.Errorf("server.unix.chmod must be an octal mode, got %q", cfg.Server.Unix.Chmod))
	}
	if cfg.Server.HTTP.Username != "" && cfg.Server.HTTP.Password == "" {
		errs = append(errs, fmt.Errorf("server.http.password is required when username is set"))
	}

	for _, name := range sortedKeys(cfg.Webhooks) {
		errs = append(errs, validateWebhook(name, cfg.Webhooks[name])...)
	}

	return errs
}

func validateWebhook(name string, wh WebhookConfig) []error {
	var errs []error
	prefix := "webhooks." + name

	if wh.URL == "" {
		errs = append(errs, fmt.Errorf("%s.url is required", prefix))
	} else if !strings.Contains(wh.URL, "${") {
		if err := events.ValidateWebhookURL(wh.URL, wh.AllowInsecure); err != nil {
			errs = append(errs, fmt.Errorf("%s.url: %w", prefix, err))
		}
	}
	if len(wh.Events) == 0 {
		errs = append(errs, fmt.Errorf("%s.events must name at least one event", prefix))
	}
	for _, e := range wh.Events {
		if _, err := events.ParseEventType(e); err != nil {
			errs = append(errs, fmt.Errorf("%s.events: %w", prefix, err))
		}
	}
	if wh.Timeout < 0 || wh.Retries < 0 || wh.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("%s: timeout, retries and min_interval must be >= 0", prefix))
	}
	switch wh.Template {
	case "", "generic", "slack", "pagerduty":
	default:
		errs = append(errs, fmt.Errorf("%s.template must be generic, slack, or pagerduty, got %q", prefix, wh.Template))
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateFramer(f FramerConfig, capacity int64) []error {
	var errs []error

	if !validFramerModes[f.Mode] {
		errs = append(errs, fmt.Errorf("framer.mode must be delimiter, nul, or fixed, got %q", f.Mode))
	}

	if f.Mode == FrameDelimiter {
		if f.Delimiter == "" {
			errs = append(errs, fmt.Errorf("framer.delimiter is required in delimiter mode"))
		} else if capacity > 0 && int64(len(f.Delimiter)) >= capacity {
			errs = append(errs, fmt.Errorf("framer.delimiter must be shorter than buffer.capacity"))
		}
	}

	if f.Mode == FrameFixed {
		n, err := ParseSize(f.Size)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("framer.size: %w", err))
		case n <= 0:
			errs = append(errs, fmt.Errorf("framer.size is required in fixed mode"))
		case capacity > 0 && n > capacity:
			errs = append(errs, fmt.Errorf("framer.size %d exceeds buffer.capacity %d", n, capacity))
		}
	}

	if n, err := ParseSize(f.MaxFrame); err != nil {
		errs = append(errs, fmt.Errorf("framer.max_frame: %w", err))
	} else if n <= 0 {
		errs = append(errs, fmt.Errorf("framer.max_frame must be positive"))
	}

	return errs
}
