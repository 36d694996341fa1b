// Package compress drives the DEFLATE primitive for the two wire shapes the
// server speaks: one-shot gzip/raw-deflate bodies (Codec) and WebSocket
// per-message-deflate frames with optional context takeover (MessageCodec).
// The entropy coding itself is klauspost/compress; this package owns the
// chunking, buffer growth, trailer handling, and dictionary continuity.
package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Mode selects the wire envelope of the batch codec.
type Mode int

const (
	// ModeGzip wraps the deflate stream in a gzip envelope.
	ModeGzip Mode = iota

	// ModeRaw emits a bare deflate stream with no envelope.
	ModeRaw
)

// settings are shared by both codecs.
type settings struct {
	level     int
	maxOutput int
}

// Option configures a codec.
type Option func(*settings)

// WithLevel sets the compression level (flate.BestSpeed by default, matching
// the server's latency-over-ratio preference).
func WithLevel(level int) Option {
	return func(s *settings) { s.level = level }
}

// WithMaxOutput caps the bytes a single operation may produce. Exceeding the
// cap fails with ErrOutputLimit; decompression bombs are the practical
// allocation failure in a server.
func WithMaxOutput(n int) Option {
	return func(s *settings) { s.maxOutput = n }
}

func newSettings(opts []Option) settings {
	s := settings{level: flate.BestSpeed}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Codec performs one-shot compression and decompression of complete buffers.
// It is stateless across calls and owned by a single connection worker.
type Codec struct {
	mode Mode
	settings
}

// New creates a batch codec for the given envelope mode.
func New(mode Mode, opts ...Option) *Codec {
	return &Codec{mode: mode, settings: newSettings(opts)}
}

// Deflate compresses src in ChunkSize steps and returns the complete wire
// bytes. On any primitive failure the output is discarded and a typed error
// returned; partial output never escapes.
func (c *Codec) Deflate(src []byte) ([]byte, error) {
	out := &chunkedBuffer{limit: c.maxOutput}

	var (
		w   io.WriteCloser
		err error
	)
	switch c.mode {
	case ModeGzip:
		w, err = gzip.NewWriterLevel(out, c.level)
	default:
		w, err = flate.NewWriter(out, c.level)
	}
	if err != nil {
		return nil, codecErr(err)
	}

	for _, part := range chunks(src) {
		if _, err := w.Write(part); err != nil {
			return nil, codecErr(err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, codecErr(err)
	}
	return append([]byte(nil), out.Bytes()...), nil
}

// Inflate decompresses a complete wire buffer produced by the matching mode.
func (c *Codec) Inflate(src []byte) ([]byte, error) {
	var r io.ReadCloser
	switch c.mode {
	case ModeGzip:
		zr, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, codecErr(err)
		}
		r = zr
	default:
		r = flate.NewReader(bytes.NewReader(src))
	}
	defer r.Close()

	out := &chunkedBuffer{limit: c.maxOutput}
	if err := drain(out, r); err != nil {
		return nil, err
	}
	return append([]byte(nil), out.Bytes()...), nil
}

// drain copies the primitive's output into out in ChunkSize windows.
func drain(out *chunkedBuffer, r io.Reader) error {
	window := make([]byte, ChunkSize)
	for {
		n, err := r.Read(window)
		if n > 0 {
			if _, werr := out.Write(window[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return codecErr(err)
		}
	}
}
