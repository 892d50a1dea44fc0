package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the config file name looked up in directories.
const FileName = "ringbuf.toml"

// DefaultSearchPaths is the ordered list of system-wide config paths, tried
// after the working directory and the user config directory.
var DefaultSearchPaths = []string{
	"/etc/ringbuf/" + FileName,
	"/etc/" + FileName,
}

// SearchPaths returns every candidate Resolve tries when neither a flag nor
// RINGBUF_CONFIG names a file.
func SearchPaths() []string {
	paths := []string{"./" + FileName}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "ringbuf", FileName))
	}
	return append(paths, DefaultSearchPaths...)
}

// Resolve finds the config file path by checking, in order:
//  1. Explicit path from the --config flag (if non-empty)
//  2. RINGBUF_CONFIG environment variable
//  3. SearchPaths
//
// An explicit or environment path naming a directory resolves to the
// ringbuf.toml inside it.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		return statConfig(explicit)
	}
	if env := os.Getenv("RINGBUF_CONFIG"); env != "" {
		return statConfig(env)
	}

	paths := SearchPaths()
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found; searched %v (run 'ringbuf init' to create one)", paths)
}

func statConfig(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot read config: %s: %w", path, err)
	}
	if !fi.IsDir() {
		return path, nil
	}
	inner := filepath.Join(path, FileName)
	if fi, err = os.Stat(inner); err != nil {
		return "", fmt.Errorf("cannot read config: %s: %w", inner, err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("cannot read config: %s: %w", inner, errors.New("is a directory"))
	}
	return inner, nil
}
