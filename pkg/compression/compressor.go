// Package compression wraps output and input streams in a compression codec.
//
// The tap writes its Singer message stream through NewWriter so a run can be
// captured straight to a compressed file, and reads state or catalog files
// back through NewReader. The codec is chosen from the file suffix:
//
//	alg := compression.FromPath("out.jsonl.zst") // compression.Zstd
//	w, err := compression.NewWriter(file, alg, compression.Default)
//	defer w.Close()
package compression

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"github.com/ajitpratap0/simpro-tap/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None passes bytes through unchanged
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

// FromPath picks the algorithm for a file name by its suffix
func FromPath(path string) Algorithm {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".s2", ".sz":
		return S2
	default:
		return None
	}
}

// NewWriter returns a writer compressing into dst. Close flushes the codec
// but does not close dst.
func NewWriter(dst io.Writer, alg Algorithm, level Level) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		w, err := gzip.NewWriterLevel(dst, mapGzipLevel(level))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create gzip writer")
		}
		return w, nil
	case Zstd:
		w, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(level)))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create zstd writer")
		}
		return w, nil
	case S2:
		opts := []s2.WriterOption{}
		if level >= Better {
			opts = append(opts, s2.WriterBetterCompression())
		}
		return s2.NewWriter(dst, opts...), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", alg)
	}
}

// NewReader returns a reader decompressing src. Close releases codec
// resources but does not close src.
func NewReader(src io.Reader, alg Algorithm) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read gzip header")
		}
		return r, nil
	case Zstd:
		d, err := zstd.NewReader(src)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create zstd reader")
		}
		return zstdReadCloser{d}, nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", alg)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Better:
		return 7
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
