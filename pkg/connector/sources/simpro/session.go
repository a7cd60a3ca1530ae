package simpro

import (
	"sort"
	"sync"

	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
)

// Session holds the state of one sync run: which records were already
// emitted per stream and how many. It is created by the driver and passed
// down explicitly; nothing about a run lives in package variables.
type Session struct {
	runID   string
	mu      sync.Mutex
	emitted map[core.StreamID]map[string]struct{}
	counts  map[core.StreamID]int
}

// NewSession starts a run
func NewSession(runID string) *Session {
	return &Session{
		runID:   runID,
		emitted: make(map[core.StreamID]map[string]struct{}),
		counts:  make(map[core.StreamID]int),
	}
}

// RunID identifies the run in logs
func (s *Session) RunID() string { return s.runID }

// MarkEmitted records that the row with id was emitted for stream and
// reports false if it already had been in this run. Rows without an ID are
// always emitted.
func (s *Session) MarkEmitted(stream core.StreamID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		ids, ok := s.emitted[stream]
		if !ok {
			ids = make(map[string]struct{})
			s.emitted[stream] = ids
		}
		if _, dup := ids[id]; dup {
			return false
		}
		ids[id] = struct{}{}
	}
	s.counts[stream]++
	return true
}

// Count returns the records emitted for stream
func (s *Session) Count(stream core.StreamID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[stream]
}

// Counts returns a snapshot of emitted counts, sorted by stream
func (s *Session) Counts() []StreamCount {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StreamCount, 0, len(s.counts))
	for id, n := range s.counts {
		out = append(out, StreamCount{Stream: id, Records: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })
	return out
}

// StreamCount is one entry of Session.Counts
type StreamCount struct {
	Stream  core.StreamID
	Records int
}
