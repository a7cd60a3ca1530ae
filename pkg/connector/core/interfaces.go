package core

import (
	"context"
	"time"
)

// StreamID identifies one synchronized resource type, e.g. "jobs".
type StreamID string

// Descriptor declares everything the engine needs to know about a stream.
// Descriptors are built once at registration time and never mutated.
type Descriptor struct {
	ID StreamID

	// Endpoint is the company-relative path. For linked children it is a
	// path template whose variables are filled from the parent row.
	Endpoint string

	// Children are synced from this stream's rows after its own records
	Children []StreamID

	// HasDetails requests every listed row again on its own URL
	HasDetails bool
	// DetailPath builds the detail URL for a row; nil falls back to the
	// row's self link, then to {Endpoint}/{ID}
	DetailPath func(Row) string

	// ColumnMode restricts the listing to the schema's properties and uses
	// the list rows directly
	ColumnMode      bool
	ExcludedColumns []string
	AddedColumns    []string

	// JSONColumns are emitted as JSON-encoded strings
	JSONColumns []string

	// ModifiedField is compared against the bookmark; empty disables the cutoff
	ModifiedField string

	// NotFoundIsEmpty treats a 404 as an empty result
	NotFoundIsEmpty bool
	// DisplayAll adds display=all to detail requests
	DisplayAll bool
	// Archivable runs the active and archived/removed listing passes
	Archivable bool
}

// FetchRequest carries the inputs of one stream invocation
type FetchRequest struct {
	// Parents are the raw rows of the parent invocation; nil for top-level streams
	Parents []Row
	// Bookmark is the stream's stored watermark, empty on a first run
	Bookmark string
	// Schema is the stream's catalog schema
	Schema *Schema
}

// StreamKind is implemented once per concrete stream.
type StreamKind interface {
	// Descriptor returns the stream's static declaration
	Descriptor() *Descriptor
	// Fetch produces the stream's raw rows, either from the API or from
	// the parent rows in req
	Fetch(ctx context.Context, req FetchRequest) ([]Row, error)
	// Transform normalizes one raw row; the input is not modified
	Transform(row Row, schema *Schema) (Row, error)
	// Children returns the declared child streams in sync order
	Children() []StreamID
}

// Emitter is the sink records, schemas and state are written to.
type Emitter interface {
	WriteSchema(stream StreamID, schema *Schema, keyProperties []string) error
	WriteRecord(stream StreamID, record Row, extracted time.Time) error
	WriteState(bookmarks Bookmarks) error
}
