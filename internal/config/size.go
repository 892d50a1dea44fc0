package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize parses a human-readable byte size such as "512", "4KiB" or
// "10MB". SI suffixes are powers of 1000, IEC suffixes powers of 1024. An
// empty string or "0" yields 0.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(n), nil
}

// SizeBytes is ParseSize for values already checked by Validate. Invalid
// input yields 0.
func SizeBytes(s string) int {
	n, err := ParseSize(s)
	if err != nil {
		return 0
	}
	return int(n)
}
