package config

// ApplyDefaults fills in zero-value fields with their default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Buffer.Capacity == "" {
		cfg.Buffer.Capacity = "4KiB"
	}
	if cfg.Buffer.Storage == "" {
		cfg.Buffer.Storage = StorageOwned
	}
	if cfg.Buffer.Mode == "" {
		cfg.Buffer.Mode = ModeWrite
	}

	if cfg.Source.Path == "" {
		cfg.Source.Path = "-"
	}
	if cfg.Source.ChunkSize == "" {
		cfg.Source.ChunkSize = "256B"
	}

	if cfg.Framer.Mode == "" {
		cfg.Framer.Mode = FrameDelimiter
	}
	if cfg.Framer.Mode == FrameDelimiter && cfg.Framer.Delimiter == "" {
		cfg.Framer.Delimiter = "\n"
	}
	if cfg.Framer.MaxFrame == "" {
		cfg.Framer.MaxFrame = "1KiB"
	}
	if cfg.Framer.FlushPartial == nil {
		t := true
		cfg.Framer.FlushPartial = &t
	}

	if cfg.Output.Format == "" {
		cfg.Output.Format = "raw"
	}
	if cfg.Output.Maxbytes == "" {
		cfg.Output.Maxbytes = "50MB"
	}
	if cfg.Output.Backups == 0 {
		cfg.Output.Backups = 10
	}
	if cfg.Output.TailSize == "" {
		cfg.Output.TailSize = "64KiB"
	}

	if cfg.Server.Unix.Chmod == "" {
		cfg.Server.Unix.Chmod = "0700"
	}
	if cfg.Server.HTTP.Listen == "" {
		cfg.Server.HTTP.Listen = "127.0.0.1:9877"
	}
}
