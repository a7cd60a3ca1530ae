package singer

import (
	"io"
	"os"

	"github.com/ajitpratap0/simpro-tap/pkg/compression"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
)

// OpenOutput returns the destination for the message stream: stdout for ""
// or "-", otherwise a file compressed according to its suffix. Closing the
// result flushes the codec and closes the file, never stdout.
func OpenOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}

	f, err := os.Create(path) //nolint:gosec // G304: path comes from the CLI
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").WithDetail("path", path)
	}
	w, err := compression.NewWriter(f, compression.FromPath(path), compression.Default)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileOutput{codec: w, file: f}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type fileOutput struct {
	codec io.WriteCloser
	file  *os.File
}

func (o *fileOutput) Write(p []byte) (int, error) { return o.codec.Write(p) }

func (o *fileOutput) Close() error {
	cerr := o.codec.Close()
	ferr := o.file.Close()
	if cerr != nil {
		return errors.Wrap(cerr, errors.ErrorTypeFile, "failed to flush output")
	}
	if ferr != nil {
		return errors.Wrap(ferr, errors.ErrorTypeFile, "failed to close output")
	}
	return nil
}
