// Package version holds build-time version metadata.
package version

import "runtime"

// Set with -ldflags "-X github.com/kahiteam/ringbuf/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	Date      = "unknown"
	GoVersion = ""
)

// Go returns the toolchain version the binary was built with.
func Go() string {
	if GoVersion != "" {
		return GoVersion
	}
	return runtime.Version()
}

// Info returns the version metadata as served by the API.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     Commit,
		"date":       Date,
		"go_version": Go(),
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
	}
}
