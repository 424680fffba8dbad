package archive

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"io"
	"time"
)

// DefaultInflateTimeout bounds a single entry's decompression.
const DefaultInflateTimeout = 5 * time.Second

// MaxInflatedSize caps the output of a single entry. Anything larger is
// treated as a decompression bomb and dropped.
const MaxInflatedSize = 64 << 20

var errTooLarge = errors.New("inflated entry exceeds size limit")

// Inflate decompresses a raw DEFLATE stream, falling back to zlib framing when
// the raw stream is rejected. It returns nil on timeout, cancellation, stream
// error or oversized output; it never blocks longer than timeout.
func Inflate(ctx context.Context, compressed []byte, timeout time.Duration) []byte {
	if len(compressed) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultInflateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		out, err := decompress(ctx, flate.NewReader(bytes.NewReader(compressed)))
		if err != nil && ctx.Err() == nil {
			zr, zerr := zlib.NewReader(bytes.NewReader(compressed))
			if zerr == nil {
				out, err = decompress(ctx, zr)
			}
		}
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil
		}
		return r.data
	case <-ctx.Done():
		return nil
	}
}

func decompress(ctx context.Context, rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	var buf bytes.Buffer
	lr := &io.LimitedReader{R: &ctxReader{ctx: ctx, r: rc}, N: MaxInflatedSize + 1}
	if _, err := buf.ReadFrom(lr); err != nil {
		return nil, err
	}
	if buf.Len() > MaxInflatedSize {
		return nil, errTooLarge
	}
	return buf.Bytes(), nil
}

// ctxReader stops a read loop once its context is done, so an abandoned
// decompression goroutine does not keep running after Inflate returns.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
