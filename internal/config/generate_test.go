package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigIsValidTOML(t *testing.T) {
	cfg, warnings, err := LoadBytes([]byte(DefaultConfigTOML), "generated")
	if err != nil {
		t.Fatalf("generated config is invalid TOML: %v", err)
	}
	if len(warnings) > 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if cfg.Buffer.Mode != ModeWrite {
		t.Errorf("mode = %q, want defaults", cfg.Buffer.Mode)
	}
}

func TestDefaultConfigContainsAllSections(t *testing.T) {
	for _, section := range []string{
		"[log]",
		"[buffer]",
		"[source]",
		"[framer]",
		"[output]",
		"[server.unix]",
		"[server.http]",
		"[server.dashboard]",
	} {
		if !strings.Contains(DefaultConfigTOML, section) {
			t.Errorf("missing section %q in generated config", section)
		}
	}
}

func TestDefaultConfigUncommentedIsValid(t *testing.T) {
	var lines []string
	for _, line := range strings.Split(DefaultConfigTOML, "\n") {
		if strings.HasPrefix(line, "# [") || (strings.HasPrefix(line, "# ") && strings.Contains(line, " = ")) {
			line = strings.TrimPrefix(line, "# ")
		}
		lines = append(lines, line)
	}

	cfg, warnings, err := LoadBytes([]byte(strings.Join(lines, "\n")), "uncommented")
	if err != nil {
		t.Fatalf("uncommented sample is invalid: %v", err)
	}
	if len(warnings) > 0 {
		t.Errorf("sample documents unknown keys: %v", warnings)
	}
	if cfg.Framer.Delimiter != "\n" {
		t.Errorf("delimiter = %q", cfg.Framer.Delimiter)
	}
	wh, ok := cfg.Webhooks["alerts"]
	if !ok {
		t.Fatal("sample webhook not parsed")
	}
	if len(wh.Events) != 2 || wh.Headers["Authorization"] == "" {
		t.Errorf("webhook = %+v", wh)
	}
}

func TestSampleFillsSettings(t *testing.T) {
	out, err := Sample(map[string]any{
		"source.path":      "/dev/ttyUSB0",
		"buffer.capacity":  "16KiB",
		"source.baud":      115200,
		"server.unix.file": "/run/ringbuf.sock",
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		`path = "/dev/ttyUSB0"           # "-" for stdin`,
		`capacity = "16KiB"              # ring capacity`,
		`baud = 115200                   # pace reads`,
		`file = "/run/ringbuf.sock"      # inspection API socket`,
	} {
		if !strings.Contains(out, "\n"+want) {
			t.Errorf("sample missing %q", want)
		}
	}

	cfg, _, err := LoadBytes([]byte(out), "sample")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Baud != 115200 || cfg.Server.Unix.File != "/run/ringbuf.sock" {
		t.Errorf("source = %+v, unix = %+v", cfg.Source, cfg.Server.Unix)
	}
	// [output] has its own commented file key; it must stay untouched.
	if cfg.Output.File != "" {
		t.Errorf("output.file = %q", cfg.Output.File)
	}
}

func TestSampleEmptyIsDefault(t *testing.T) {
	out, err := Sample(nil)
	if err != nil || out != DefaultConfigTOML {
		t.Fatalf("Sample(nil) differs from the default sample: %v", err)
	}
}

func TestSampleErrors(t *testing.T) {
	for name, set := range map[string]map[string]any{
		"unknown key":       {"buffer.colour": "red"},
		"no table":          {"capacity": "4KiB"},
		"example table":     {"webhooks.alerts.url": "https://x"},
		"invalid value":     {"buffer.mode": "ringy"},
		"unencodable value": {"buffer.capacity": func() {}},
	} {
		if _, err := Sample(set); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestWithComment(t *testing.T) {
	sample := `# mode = "write"                # write, overwrite`
	if got := withComment(`mode = "dma"`, sample); got != `mode = "dma"                    # write, overwrite` {
		t.Errorf("got %q", got)
	}
	long := `mode = "` + strings.Repeat("x", 40) + `"`
	if got := withComment(long, sample); got != long+" # write, overwrite" {
		t.Errorf("got %q", got)
	}
	if got := withComment("a = 1", "# a = 0"); got != "a = 1" {
		t.Errorf("got %q", got)
	}
}
