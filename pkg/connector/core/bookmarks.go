package core

import (
	"sort"
	"time"
)

// WatermarkLayout is the bookmark format. Values in this layout sort
// lexicographically in time order.
const WatermarkLayout = "2006-01-02 15:04:05"

// FormatWatermark renders t in WatermarkLayout
func FormatWatermark(t time.Time) string {
	return t.Format(WatermarkLayout)
}

// Bookmarks maps each stream to its last watermark.
type Bookmarks map[StreamID]string

// Get returns the stream's watermark, or "" when none is stored
func (b Bookmarks) Get(id StreamID) string {
	return b[id]
}

// Set records a watermark unless it would move the stream backwards.
// It reports whether the value was stored.
func (b Bookmarks) Set(id StreamID, watermark string) bool {
	if watermark == "" {
		return false
	}
	if cur, ok := b[id]; ok && watermark < cur {
		return false
	}
	b[id] = watermark
	return true
}

// Merge folds other into b and returns b. Watermarks only move forward.
func (b Bookmarks) Merge(other Bookmarks) Bookmarks {
	for id, wm := range other {
		b.Set(id, wm)
	}
	return b
}

// Copy returns an independent copy
func (b Bookmarks) Copy() Bookmarks {
	out := make(Bookmarks, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Streams returns the stream IDs in sorted order
func (b Bookmarks) Streams() []StreamID {
	ids := make([]StreamID, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
