// Package config handles loading and validating ringbuf configuration.
package config

// Config is the top-level ringbuf configuration.
type Config struct {
	Log    LogConfig    `toml:"log"`
	Buffer BufferConfig `toml:"buffer"`
	Source SourceConfig `toml:"source"`
	Framer FramerConfig `toml:"framer"`
	Output OutputConfig `toml:"output"`
	Server ServerConfig `toml:"server"`

	Webhooks map[string]WebhookConfig `toml:"webhooks"`
}

// LogConfig holds diagnostic logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// BufferConfig describes the staging ring.
type BufferConfig struct {
	Capacity     string `toml:"capacity"`
	Storage      string `toml:"storage"`
	Mode         string `toml:"mode"`
	Prestage     bool   `toml:"prestage"`
	PrestageByte int    `toml:"prestage_byte"`
}

// SourceConfig describes where bytes come from.
type SourceConfig struct {
	Path      string `toml:"path"`
	ChunkSize string `toml:"chunk_size"`
	Baud      int    `toml:"baud"`
}

// FramerConfig describes how staged bytes are cut into frames.
type FramerConfig struct {
	Mode          string `toml:"mode"`
	Delimiter     string `toml:"delimiter"`
	KeepDelimiter bool   `toml:"keep_delimiter"`
	Size          string `toml:"size"`
	MaxFrame      string `toml:"max_frame"`
	FlushPartial  *bool  `toml:"flush_partial"`
}

// OutputConfig describes where frames are written.
type OutputConfig struct {
	File      string `toml:"file"`
	Format    string `toml:"format"`
	Maxbytes  string `toml:"maxbytes"`
	Backups   int    `toml:"backups"`
	StripAnsi bool   `toml:"strip_ansi"`
	TailSize  string `toml:"tail_size"`
}

// ServerConfig holds inspection API listener settings.
type ServerConfig struct {
	Unix      UnixServerConfig `toml:"unix"`
	HTTP      HTTPServerConfig `toml:"http"`
	Dashboard DashboardConfig  `toml:"dashboard"`
}

// UnixServerConfig holds Unix domain socket settings.
type UnixServerConfig struct {
	File  string `toml:"file"`
	Chmod string `toml:"chmod"`
}

// HTTPServerConfig holds TCP listener settings.
type HTTPServerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Listen   string `toml:"listen"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// DashboardConfig controls the web dashboard served on the API listeners.
type DashboardConfig struct {
	Enabled   bool   `toml:"enabled"`
	StaticDir string `toml:"static_dir"`
}

// WebhookConfig holds per-webhook settings.
type WebhookConfig struct {
	URL           string            `toml:"url"`
	Events        []string          `toml:"events"`
	Headers       map[string]string `toml:"headers"`
	Timeout       int               `toml:"timeout"` // seconds
	Retries       int               `toml:"retries"`
	MinInterval   int               `toml:"min_interval"` // seconds
	Template      string            `toml:"template"`
	AllowInsecure bool              `toml:"allow_insecure"`
}

// Buffer modes.
const (
	ModeWrite       = "write"
	ModeOverwrite   = "overwrite"
	ModeDMA         = "dma"
	ModeDMACircular = "dma-circular"
)

// Storage strategies.
const (
	StorageOwned    = "owned"
	StorageBorrowed = "borrowed"
)

// Framer modes.
const (
	FrameDelimiter = "delimiter"
	FrameNUL       = "nul"
	FrameFixed     = "fixed"
)
