package config

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultConfigTOML is a complete, commented sample ringbuf.toml.
const DefaultConfigTOML = `# ringbuf configuration file

[log]
# level = "info"                # debug, info, warn, error
# format = "json"               # json, text, auto (text on a terminal)
# file = ""                     # diagnostic log file (default: stderr)

[buffer]
# capacity = "4KiB"             # ring capacity (SI or IEC suffixes)
# storage = "owned"             # owned: allocated by the buffer; borrowed: caller slab
# mode = "write"                # write, overwrite, dma, dma-circular
# prestage = false              # fill target slots before each dma transfer
# prestage_byte = 0             # fill value used by prestage

[source]
# path = "-"                    # "-" for stdin, a file, or a character device
# chunk_size = "256B"           # bytes moved per ingest step
# baud = 0                      # pace reads like a serial line (0 = unpaced)

[framer]
# mode = "delimiter"            # delimiter, nul, fixed
# delimiter = "\n"              # frame terminator in delimiter mode
# keep_delimiter = false        # keep the terminator in emitted frames
# size = ""                     # record size in fixed mode
# max_frame = "1KiB"            # longer frames are truncated and flagged
# flush_partial = true          # emit an unterminated tail at end of input

[output]
# file = ""                     # frame log file (default: stdout)
# format = "raw"                # raw, json
# maxbytes = "50MB"             # rotate when the file reaches this size
# backups = 10                  # rotated files to keep
# strip_ansi = false            # remove ANSI escape sequences from frames
# tail_size = "64KiB"           # bytes of recent output kept for the tail API

[server.unix]
# file = ""                     # inspection API socket (empty = disabled)
# chmod = "0700"                # socket file permissions

[server.http]
# enabled = false               # enable the TCP listener
# listen = "127.0.0.1:9877"     # TCP listen address
# username = ""                 # HTTP Basic Auth username
# password = ""                 # bcrypt hash from 'ringbuf hash-password'

[server.dashboard]
# enabled = false               # serve the web dashboard at / on the API listeners
# static_dir = ""               # serve CSS and JS from this directory instead of the built-in copies

# Webhook definitions
# [webhooks.alerts]
# url = "https://hooks.example.com/ringbuf"
# events = ["BUFFER_OVERRUN", "RESYNC_REJECTED"]
# template = "generic"          # generic, slack, pagerduty
# timeout = 5                   # seconds
# retries = 3
# min_interval = 30             # seconds between deliveries; events in between are counted
# allow_insecure = false        # permit plain http to non-local hosts
# [webhooks.alerts.headers]
# Authorization = "Bearer ${ALERT_TOKEN}"
`

// Sample returns DefaultConfigTOML with the keys in set filled in. Keys are
// dotted "table.key" paths of settings documented in the sample, such as
// "source.path" or "server.unix.file"; each commented line is replaced by
// an assignment of the TOML encoding of the value. The result must load.
func Sample(set map[string]any) (string, error) {
	lines := strings.Split(DefaultConfigTOML, "\n")
	for _, path := range slices.Sorted(maps.Keys(set)) {
		dot := strings.LastIndexByte(path, '.')
		if dot < 0 {
			return "", fmt.Errorf("unknown config key %q", path)
		}
		table, key := path[:dot], path[dot+1:]
		i := sampleLine(lines, table, key)
		if i < 0 {
			return "", fmt.Errorf("unknown config key %q", path)
		}
		assign, err := encodeAssignment(key, set[path])
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		lines[i] = withComment(assign, lines[i])
	}

	out := strings.Join(lines, "\n")
	if _, _, err := LoadBytes([]byte(out), "sample"); err != nil {
		return "", err
	}
	return out, nil
}

// sampleLine finds the commented "# key = ..." line inside [table].
func sampleLine(lines []string, table, key string) int {
	var current string
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "["):
			current = strings.Trim(line, "[]")
		case strings.HasPrefix(line, "# ["):
			current = "" // commented-out tables are examples, not settings
		case current == table && strings.HasPrefix(line, "# "+key+" = "):
			return i
		}
	}
	return -1
}

func encodeAssignment(key string, v any) (string, error) {
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(map[string]any{key: v}); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// withComment keeps the trailing comment of the sample line in its column.
func withComment(assign, sample string) string {
	col := strings.Index(sample, "  # ")
	if col < 0 {
		return assign
	}
	comment := strings.TrimLeft(sample[col:], " ")
	col += 2
	if len(assign) >= col {
		return assign + " " + comment
	}
	return assign + strings.Repeat(" ", col-len(assign)) + comment
}
