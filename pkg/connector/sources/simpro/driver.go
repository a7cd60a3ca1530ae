package simpro

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/simpro-tap/pkg/clients"
	"github.com/ajitpratap0/simpro-tap/pkg/config"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/registry"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
	"github.com/ajitpratap0/simpro-tap/pkg/logger"
	"github.com/ajitpratap0/simpro-tap/pkg/metrics"
)

// SyncDriver runs the selected streams of a catalog one top-level stream at
// a time and writes state after each one completes.
type SyncDriver struct {
	registry *registry.Registry
	catalog  Catalog
	emitter  core.Emitter
	clock    clients.Clock
	location *time.Location
	logger   *zap.Logger
}

// DriverConfig configures a SyncDriver
type DriverConfig struct {
	Clock    clients.Clock
	Location *time.Location
}

// NewSyncDriver creates a driver
func NewSyncDriver(reg *registry.Registry, catalog Catalog, emitter core.Emitter, cfg DriverConfig, logger *zap.Logger) *SyncDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncDriver{
		registry: reg,
		catalog:  catalog,
		emitter:  emitter,
		clock:    cfg.Clock,
		location: cfg.Location,
		logger:   logger,
	}
}

// Run syncs every top-level stream whose subtree has a selected stream.
// state is not modified; the returned bookmarks include every stream that
// completed, also when an error is returned. A failing stream stops the run
// and keeps its previous watermark.
func (d *SyncDriver) Run(ctx context.Context, state core.Bookmarks) (core.Bookmarks, error) {
	session := NewSession(uuid.NewString())
	orch := NewOrchestrator(d.registry, d.catalog, d.emitter, session, d.clock, d.location, d.logger)
	ctx = context.WithValue(ctx, logger.RunIDKey, session.RunID())
	log := logger.WithContext(ctx, d.logger.With(zap.String("component", "sync_driver")))

	bookmarks := core.Bookmarks{}
	if state != nil {
		bookmarks = state.Copy()
	}
	if err := d.emitter.WriteState(bookmarks); err != nil {
		return bookmarks, err
	}

	start := time.Now()
	for _, root := range d.registry.Roots() {
		id := root.Descriptor().ID
		if !orch.SubtreeSelected(id) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return bookmarks, err
		}

		for _, s := range d.registry.Subtree(id) {
			if !d.catalog.Selected(s) {
				continue
			}
			if err := d.emitter.WriteSchema(s, d.catalog.Schema(s), d.catalog.KeyProperties(s)); err != nil {
				return bookmarks, err
			}
		}

		log.Info("syncing stream", zap.String("stream", string(id)), zap.String("bookmark", bookmarks.Get(id)))
		marks, err := orch.Sync(ctx, root, nil, bookmarks)
		if err != nil {
			return bookmarks, errors.Wrap(err, errorType(err), "sync aborted").
				WithDetail("stream", string(id))
		}

		bookmarks.Merge(marks)
		if err := d.emitter.WriteState(bookmarks); err != nil {
			return bookmarks, err
		}
		for _, s := range marks.Streams() {
			if t, err := time.ParseInLocation(core.WatermarkLayout, bookmarks.Get(s), d.locationOrLocal()); err == nil {
				metrics.BookmarkTimestamp.WithLabelValues(string(s)).Set(float64(t.Unix()))
			}
		}
	}

	for _, c := range session.Counts() {
		log.Info("records emitted", zap.String("stream", string(c.Stream)), zap.Int("records", c.Records))
	}
	log.Info("sync completed", zap.Duration("duration", time.Since(start)))
	return bookmarks, nil
}

func (d *SyncDriver) locationOrLocal() *time.Location {
	if d.location == nil {
		return time.Local
	}
	return d.location
}

// errorType keeps the classification of err when wrapping it
func errorType(err error) errors.ErrorType {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Type
	}
	return errors.ErrorTypeInternal
}

// Source wires the HTTP client, request gate, fetcher and stream registry
// from a tap configuration.
type Source struct {
	Config   *config.TapConfig
	Gate     *clients.RequestGate
	Client   *clients.HTTPClient
	Fetcher  *Fetcher
	Registry *registry.Registry
	Location *time.Location
	logger   *zap.Logger
}

// NewSource validates cfg and builds the source
func NewSource(cfg *config.TapConfig, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid timezone")
	}

	gate := clients.NewRequestGate(clients.GateConfig{
		MaxConcurrency: cfg.Performance.MaxConcurrency,
		RatePerSec:     cfg.Reliability.RateLimitPerSec,
		Burst:          cfg.Reliability.RateBurst,
		ObserveWait:    metrics.ObserveGateWait,
	})
	client, err := clients.NewHTTPClient(&clients.HTTPConfig{
		CompanyURL:          cfg.CompanyURL(),
		AccessToken:         cfg.AccessToken,
		UserAgent:           cfg.UserAgent,
		RequestTimeout:      cfg.Reliability.RequestTimeout,
		MaxIdleConnsPerHost: cfg.Performance.MaxConcurrency,
		EnableHTTP2:         true,
	}, gate, logger)
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(client, FetcherConfig{
		PageSize:    cfg.Performance.PageSize,
		Concurrency: cfg.Performance.MaxConcurrency,
	}, logger)
	reg, err := NewStreamRegistry(fetcher)
	if err != nil {
		return nil, err
	}

	return &Source{
		Config:   cfg,
		Gate:     gate,
		Client:   client,
		Fetcher:  fetcher,
		Registry: reg,
		Location: loc,
		logger:   logger,
	}, nil
}

// Driver returns a SyncDriver emitting the catalog's selected streams
func (s *Source) Driver(catalog Catalog, emitter core.Emitter, clock clients.Clock) *SyncDriver {
	return NewSyncDriver(s.Registry, catalog, emitter, DriverConfig{Clock: clock, Location: s.Location}, s.logger)
}

// Close releases idle connections
func (s *Source) Close() error {
	return s.Client.Close()
}
