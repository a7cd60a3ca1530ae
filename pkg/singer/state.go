package singer

import (
	"bytes"
	"io"
	"os"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/simpro-tap/pkg/compression"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
)

// ParseState reads tap state. Both {"bookmarks": {stream: {"since": ...}}}
// and the bare {stream: {"since": ...}} mapping are accepted; empty input
// yields no bookmarks.
func ParseState(data []byte) (core.Bookmarks, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return core.Bookmarks{}, nil
	}

	var top map[string]gojson.RawMessage
	if err := gojson.Unmarshal(data, &top); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "state is not a JSON object")
	}

	if raw, ok := top["bookmarks"]; ok {
		var s State
		if err := gojson.Unmarshal(raw, &s.Bookmarks); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid bookmarks in state")
		}
		return s.ToBookmarks(), nil
	}

	s := State{Bookmarks: make(map[string]Bookmark, len(top))}
	for stream, raw := range top {
		var bm Bookmark
		if err := gojson.Unmarshal(raw, &bm); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid bookmark in state").
				WithDetail("stream", stream)
		}
		s.Bookmarks[stream] = bm
	}
	return s.ToBookmarks(), nil
}

// ReadStateFile reads state from path, decompressing by file suffix. An
// empty path yields no bookmarks.
func ReadStateFile(path string) (core.Bookmarks, error) {
	if path == "" {
		return core.Bookmarks{}, nil
	}
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the CLI
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open state file").WithDetail("path", path)
	}
	defer f.Close()

	r, err := compression.NewReader(f, compression.FromPath(path))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read state file").WithDetail("path", path)
	}
	return ParseState(data)
}
