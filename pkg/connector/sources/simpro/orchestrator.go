package simpro

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ajitpratap0/simpro-tap/pkg/clients"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/registry"
	"github.com/ajitpratap0/simpro-tap/pkg/logger"
	"github.com/ajitpratap0/simpro-tap/pkg/metrics"
)

// Catalog tells the engine which streams to emit and how they look.
// *catalog.Catalog implements it.
type Catalog interface {
	Selected(id core.StreamID) bool
	Schema(id core.StreamID) *core.Schema
	KeyProperties(id core.StreamID) []string
}

// phase is the lifecycle position of one stream invocation, logged when the
// invocation aborts.
type phase string

const (
	phasePending    phase = "pending"
	phaseListing    phase = "listing"
	phaseEmitting   phase = "emitting"
	phaseFanningOut phase = "fanning_out"
	phaseBookmarked phase = "bookmarked"
)

// Orchestrator syncs one stream and, recursively, its selected children.
// Records, the session and bookmarks are only touched from the calling
// goroutine; concurrency lives inside the stream kinds' Fetch.
type Orchestrator struct {
	registry *registry.Registry
	catalog  Catalog
	emitter  core.Emitter
	session  *Session
	clock    clients.Clock
	location *time.Location
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator for one run
func NewOrchestrator(reg *registry.Registry, catalog Catalog, emitter core.Emitter, session *Session,
	clock clients.Clock, location *time.Location, logger *zap.Logger) *Orchestrator {
	if clock == nil {
		clock = clients.SystemClock
	}
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry: reg,
		catalog:  catalog,
		emitter:  emitter,
		session:  session,
		clock:    clock,
		location: location,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// SubtreeSelected reports whether id or any of its descendants is selected.
// Streams with no selected stream below them are never fetched.
func (o *Orchestrator) SubtreeSelected(id core.StreamID) bool {
	for _, s := range o.registry.Subtree(id) {
		if o.catalog.Selected(s) {
			return true
		}
	}
	return false
}

// Sync runs one invocation of kind. parents are the raw rows of the parent
// invocation (nil for top-level streams). It returns the watermarks of kind
// and every child it synced; a stream only gets a watermark when selected.
// An unselected stream with selected descendants is fetched but not emitted.
func (o *Orchestrator) Sync(ctx context.Context, kind core.StreamKind, parents []core.Row, bookmarks core.Bookmarks) (core.Bookmarks, error) {
	desc := kind.Descriptor()
	id := desc.ID
	selected := o.catalog.Selected(id)
	schema := o.catalog.Schema(id)

	ctx = context.WithValue(ctx, logger.StreamKey, string(id))
	ctx, span := otel.Tracer("simpro-tap/orchestrator").Start(ctx, "sync "+string(id))
	defer span.End()
	span.SetAttributes(attribute.String("simpro.stream", string(id)), attribute.Bool("simpro.selected", selected))

	log := logger.WithContext(ctx, o.logger)
	state := phasePending
	abort := func(err error) (core.Bookmarks, error) {
		log.Error("stream aborted", zap.String("state", string(state)), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "aborted")
		return nil, err
	}

	extracted := o.clock.Now().In(o.location)

	state = phaseListing
	rows, err := kind.Fetch(ctx, core.FetchRequest{
		Parents:  parents,
		Bookmark: bookmarks.Get(id),
		Schema:   schema,
	})
	if err != nil {
		return abort(err)
	}

	state = phaseEmitting
	emitted := 0
	if selected {
		for _, row := range rows {
			record, err := kind.Transform(row, schema)
			if err != nil {
				return abort(err)
			}
			if !o.session.MarkEmitted(id, record.ID()) {
				continue
			}
			if err := o.emitter.WriteRecord(id, record, extracted); err != nil {
				return abort(err)
			}
			emitted++
		}
		metrics.RecordsEmitted.WithLabelValues(string(id)).Add(float64(emitted))
	}

	state = phaseFanningOut
	out := core.Bookmarks{}
	for _, childID := range kind.Children() {
		if !o.SubtreeSelected(childID) {
			log.Debug("child not selected, skipping", zap.String("child", string(childID)))
			continue
		}
		child, err := o.registry.Get(childID)
		if err != nil {
			return abort(err)
		}
		marks, err := o.Sync(ctx, child, rows, bookmarks)
		if err != nil {
			// already logged where it failed
			span.SetStatus(codes.Error, "child aborted")
			return nil, err
		}
		out.Merge(marks)
	}

	if selected {
		out.Set(id, core.FormatWatermark(extracted))
	}
	state = phaseBookmarked

	span.SetAttributes(attribute.Int("simpro.rows", len(rows)), attribute.Int("simpro.emitted", emitted))
	log.Info("stream synced",
		zap.String("state", string(state)),
		zap.Int("rows", len(rows)),
		zap.Int("emitted", emitted),
		zap.Int("parents", len(parents)))
	return out, nil
}
