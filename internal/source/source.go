// Package source opens the byte stream that feeds the pipeline and can pace
// it like a serial line.
package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// Open opens path for reading. Stdin selects standard input, whose Close
// does nothing.
func Open(path string) (io.ReadCloser, error) {
	if path == Stdin || path == "" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open source: %s: %w", path, err)
	}
	return f, nil
}

// BytesPerSecond converts a baud rate to bytes per second assuming 8N1
// framing, ten bits on the wire per byte.
func BytesPerSecond(baud int) int {
	return baud / 10
}

type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// Throttle paces reads from r to the byte rate of a serial line at baud.
// baud <= 0 returns r unchanged. Each Read returns at most a tenth of a
// second worth of data and blocks until the line could have carried it.
func Throttle(ctx context.Context, r io.Reader, baud int) io.Reader {
	bps := BytesPerSecond(baud)
	if bps <= 0 {
		return r
	}
	burst := max(1, bps/10)
	return &throttledReader{
		ctx:     ctx,
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bps), burst),
	}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if len(p) > t.limiter.Burst() {
		p = p[:t.limiter.Burst()]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
