// Package singer writes the Singer message stream and reads tap state.
//
// Messages are JSON objects, one per line:
//
//	{"type":"SCHEMA","stream":"jobs","schema":{...},"key_properties":["ID"]}
//	{"type":"RECORD","stream":"jobs","record":{...},"time_extracted":"2024-01-05T10:00:00+10:00"}
//	{"type":"STATE","value":{"bookmarks":{"jobs":{"since":"2024-01-05 10:00:00"}}}}
package singer

import (
	"time"

	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
)

// MessageType is the "type" of a Singer message
type MessageType string

// Message types
const (
	MessageTypeSchema MessageType = "SCHEMA"
	MessageTypeRecord MessageType = "RECORD"
	MessageTypeState  MessageType = "STATE"
)

// Message is one line of the output stream
type Message struct {
	Type          MessageType  `json:"type"`
	Stream        string       `json:"stream,omitempty"`
	Record        core.Row     `json:"record,omitempty"`
	TimeExtracted *time.Time   `json:"time_extracted,omitempty"`
	Schema        *core.Schema `json:"schema,omitempty"`
	KeyProperties []string     `json:"key_properties,omitempty"`
	Value         *State       `json:"value,omitempty"`
}

// State is the persisted tap state
type State struct {
	Bookmarks map[string]Bookmark `json:"bookmarks"`
}

// Bookmark is one stream's entry in State
type Bookmark struct {
	Since string `json:"since"`
}

// NewState converts bookmarks into their persisted form
func NewState(b core.Bookmarks) *State {
	s := &State{Bookmarks: make(map[string]Bookmark, len(b))}
	for id, wm := range b {
		s.Bookmarks[string(id)] = Bookmark{Since: wm}
	}
	return s
}

// ToBookmarks converts the persisted form back. Entries without a since
// value are dropped.
func (s *State) ToBookmarks() core.Bookmarks {
	b := make(core.Bookmarks, len(s.Bookmarks))
	for id, bm := range s.Bookmarks {
		if bm.Since != "" {
			b[core.StreamID(id)] = bm.Since
		}
	}
	return b
}
