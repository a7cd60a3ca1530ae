package simpro

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/simpro-tap/pkg/catalog"
	"github.com/ajitpratap0/simpro-tap/pkg/clients"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
)

const companyPrefix = "/api/v1.0/companies/0/"

type route func(q url.Values) (int, interface{})

// fakeAPI serves canned responses keyed by company-relative path and records
// every request it receives.
type fakeAPI struct {
	mu       sync.Mutex
	routes   map[string]route
	requests []string
	server   *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	api := &fakeAPI{routes: make(map[string]route)}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) handle(path string, r route) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[path] = r
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, companyPrefix)

	a.mu.Lock()
	a.requests = append(a.requests, path+"?"+r.URL.Query().Encode())
	h, ok := a.routes[path]
	a.mu.Unlock()

	if !ok {
		http.Error(w, "no such resource", http.StatusNotFound)
		return
	}
	status, body := h(r.URL.Query())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(body)
}

// Requests returns the recorded requests as "path?query", sorted so that
// concurrent fan-out is deterministic
func (a *fakeAPI) Requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := append([]string(nil), a.requests...)
	sort.Strings(out)
	return out
}

// Paths returns the distinct request paths without queries
func (a *fakeAPI) Paths() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range a.Requests() {
		p := r[:strings.IndexByte(r, '?')]
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func (a *fakeAPI) count(prefix string) int {
	n := 0
	for _, r := range a.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// paged serves rows in pages honoring the page and pageSize parameters
func paged(rows ...map[string]interface{}) route {
	return func(q url.Values) (int, interface{}) {
		page, _ := strconv.Atoi(q.Get("page"))
		size, _ := strconv.Atoi(q.Get("pageSize"))
		if page < 1 || size < 1 {
			return http.StatusBadRequest, map[string]string{"error": "bad paging"}
		}
		start := (page - 1) * size
		if start >= len(rows) {
			return http.StatusOK, []interface{}{}
		}
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		return http.StatusOK, rows[start:end]
	}
}

// archivable serves active rows on the Archived=false pass and archived rows
// on the Archived=true pass
func archivable(active, archived route) route {
	return func(q url.Values) (int, interface{}) {
		if q.Get("Archived") == "true" {
			return archived(q)
		}
		return active(q)
	}
}

func fixed(body interface{}) route {
	return func(url.Values) (int, interface{}) { return http.StatusOK, body }
}

// delayed holds the response back for d
func delayed(d time.Duration, r route) route {
	return func(q url.Values) (int, interface{}) {
		time.Sleep(d)
		return r(q)
	}
}

func status(code int) route {
	return func(url.Values) (int, interface{}) { return code, map[string]string{"error": "nope"} }
}

func newTestClient(t *testing.T, api *fakeAPI) *clients.HTTPClient {
	gate := clients.NewRequestGate(clients.GateConfig{MaxConcurrency: 4, RatePerSec: 10000, Burst: 10000})
	client, err := clients.NewHTTPClient(&clients.HTTPConfig{
		CompanyURL:     api.server.URL + "/api/v1.0/companies/0",
		AccessToken:    "token",
		RequestTimeout: 5 * time.Second,
	}, gate, nil)
	require.NoError(t, err)
	return client
}

func newTestFetcher(t *testing.T, api *fakeAPI, pageSize int) *Fetcher {
	return NewFetcher(newTestClient(t, api), FetcherConfig{PageSize: pageSize, Concurrency: 4}, nil)
}

// fixedClock always returns the same instant
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time                         { return c.now }
func (c fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

var syncTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type emitted struct {
	kind      string
	stream    core.StreamID
	record    core.Row
	extracted time.Time
	state     core.Bookmarks
}

// memEmitter keeps every message in order
type memEmitter struct {
	mu       sync.Mutex
	messages []emitted
}

func (e *memEmitter) WriteSchema(stream core.StreamID, _ *core.Schema, _ []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, emitted{kind: "SCHEMA", stream: stream})
	return nil
}

func (e *memEmitter) WriteRecord(stream core.StreamID, record core.Row, extracted time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, emitted{kind: "RECORD", stream: stream, record: record, extracted: extracted})
	return nil
}

func (e *memEmitter) WriteState(b core.Bookmarks) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, emitted{kind: "STATE", state: b.Copy()})
	return nil
}

func (e *memEmitter) records(stream core.StreamID) []core.Row {
	var out []core.Row
	for _, m := range e.messages {
		if m.kind == "RECORD" && m.stream == stream {
			out = append(out, m.record)
		}
	}
	return out
}

func (e *memEmitter) ids(stream core.StreamID) []string {
	var out []string
	for _, r := range e.records(stream) {
		out = append(out, r.ID())
	}
	return out
}

// sequence renders messages as "KIND stream" lines
func (e *memEmitter) sequence() []string {
	var out []string
	for _, m := range e.messages {
		out = append(out, m.kind+" "+string(m.stream))
	}
	return out
}

func (e *memEmitter) states() []core.Bookmarks {
	var out []core.Bookmarks
	for _, m := range e.messages {
		if m.kind == "STATE" {
			out = append(out, m.state)
		}
	}
	return out
}

func selectedCatalog(t *testing.T, ids ...core.StreamID) *catalog.Catalog {
	cat, err := catalog.Discover()
	require.NoError(t, err)
	require.NoError(t, cat.Select(ids...))
	return cat
}

func obj(kv ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}
