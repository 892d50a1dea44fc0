package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ExpandVariables expands %(here)s, %(host_name)s and ${VAR} references in
// the path and webhook fields of cfg. %(here)s is the directory holding
// configPath.
func ExpandVariables(cfg *Config, configPath string) error {
	x := expander{here: filepath.Dir(configPath), lookupEnv: os.LookupEnv}
	if h, err := os.Hostname(); err == nil {
		x.hostName = h
	}

	fields := []struct {
		name string
		ptr  *string
	}{
		{"log.file", &cfg.Log.File},
		{"source.path", &cfg.Source.Path},
		{"output.file", &cfg.Output.File},
		{"server.unix.file", &cfg.Server.Unix.File},
		{"server.dashboard.static_dir", &cfg.Server.Dashboard.StaticDir},
	}
	for _, f := range fields {
		if err := x.expandInto(f.name, f.ptr); err != nil {
			return err
		}
	}

	// Webhook URLs and headers usually carry secrets from the environment.
	for _, name := range slices.Sorted(maps.Keys(cfg.Webhooks)) {
		wh := cfg.Webhooks[name]
		if err := x.expandInto("webhooks."+name+".url", &wh.URL); err != nil {
			return err
		}
		headers := make(map[string]string, len(wh.Headers))
		for k, v := range wh.Headers {
			if err := x.expandInto("webhooks."+name+".headers."+k, &v); err != nil {
				return err
			}
			headers[k] = v
		}
		if wh.Headers != nil {
			wh.Headers = headers
		}
		cfg.Webhooks[name] = wh
	}
	return nil
}

type expander struct {
	here      string
	hostName  string
	lookupEnv func(string) (string, bool)
}

func (x expander) expandInto(field string, s *string) error {
	v, err := x.expand(*s)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*s = v
	return nil
}

// expand rewrites s in a single pass, so substituted values are never
// expanded again. %% and $$ produce a literal % and $.
func (x expander) expand(s string) (string, error) {
	if !strings.ContainsAny(s, "%$") {
		return s, nil
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, "%%"), strings.HasPrefix(rest, "$$"):
			b.WriteByte(s[i])
			i += 2

		case strings.HasPrefix(rest, "%("):
			end := strings.IndexByte(rest, ')')
			if end < 0 || end+1 == len(rest) || (rest[end+1] != 's' && rest[end+1] != 'd') {
				return "", fmt.Errorf("unclosed template variable at position %d in %q", i, s)
			}
			v, err := x.templateVar(rest[2:end])
			if err != nil {
				return "", err
			}
			b.WriteString(v)
			i += end + 2

		case strings.HasPrefix(rest, "${"):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed environment variable reference at position %d in %q", i, s)
			}
			v, err := x.envVar(rest[2:end])
			if err != nil {
				return "", err
			}
			b.WriteString(v)
			i += end + 1

		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), nil
}

func (x expander) templateVar(name string) (string, error) {
	switch name {
	case "here":
		return x.here, nil
	case "host_name":
		return x.hostName, nil
	default:
		return "", fmt.Errorf("unknown template variable: %%(%s)s", name)
	}
}

// envVar resolves NAME or NAME:-default. As in the shell, the default also
// replaces a variable that is set but empty.
func (x expander) envVar(ref string) (string, error) {
	name, def, hasDefault := strings.Cut(ref, ":-")
	if name == "" {
		return "", fmt.Errorf("empty environment variable reference: ${%s}", ref)
	}
	v, ok := x.lookupEnv(name)
	switch {
	case ok && (v != "" || !hasDefault):
		return v, nil
	case hasDefault:
		return def, nil
	default:
		return "", fmt.Errorf("undefined environment variable: ${%s}", name)
	}
}
