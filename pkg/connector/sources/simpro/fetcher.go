package simpro

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/simpro-tap/internal/pipeline"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
	"github.com/ajitpratap0/simpro-tap/pkg/pathtemplate"
)

// APIClient is the HTTP surface the fetcher needs. *clients.HTTPClient
// implements it.
type APIClient interface {
	GetJSON(ctx context.Context, stream, path string, query url.Values, out interface{}) error
}

// selfLink is the API's absolute self reference on list rows
var selfLink = pathtemplate.MustParse("/api/v1.0/companies/{companyID}/{path...}")

// pass is one listing pass over a stream
type pass struct {
	name     string
	archived bool
}

var (
	activePass   = pass{name: "active", archived: false}
	archivedPass = pass{name: "archived", archived: true}
)

// Fetcher lists resources page by page, fetches row details concurrently and
// applies the bookmark cutoff.
type Fetcher struct {
	client      APIClient
	pageSize    int
	concurrency int
	logger      *zap.Logger
}

// FetcherConfig configures a Fetcher
type FetcherConfig struct {
	PageSize int
	// Concurrency bounds detail requests issued at once per page; the request
	// gate still applies to each of them
	Concurrency int
}

// NewFetcher creates a fetcher
func NewFetcher(client APIClient, cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 250
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:      client,
		pageSize:    cfg.PageSize,
		concurrency: cfg.Concurrency,
		logger:      logger.With(zap.String("component", "fetcher")),
	}
}

// Fetch returns the rows of a top-level stream changed since bookmark.
// Archivable streams are listed twice, once for active and once for
// archived/removed rows, and the results concatenated.
func (f *Fetcher) Fetch(ctx context.Context, desc *core.Descriptor, schema *core.Schema, bookmark string) ([]core.Row, error) {
	passes := []pass{activePass}
	if desc.Archivable {
		passes = append(passes, archivedPass)
	}

	var rows []core.Row
	for _, p := range passes {
		got, err := f.fetchPass(ctx, desc, schema, bookmark, p)
		if err != nil {
			if desc.NotFoundIsEmpty && errors.IsNotFound(err) {
				f.logger.Debug("endpoint not found, treating as empty",
					zap.String("stream", string(desc.ID)), zap.String("pass", p.name))
				continue
			}
			return nil, err
		}
		rows = append(rows, got...)
	}
	return rows, nil
}

func (f *Fetcher) fetchPass(ctx context.Context, desc *core.Descriptor, schema *core.Schema, bookmark string, p pass) ([]core.Row, error) {
	query := url.Values{}
	query.Set("orderby", "-"+orderField(desc))
	if desc.Archivable {
		flag := strconv.FormatBool(p.archived)
		query.Set("Archived", flag)
		query.Set("Removed", flag)
	}
	if desc.ColumnMode {
		query.Set("columns", strings.Join(Columns(desc, schema), ","))
	}

	log := f.logger.With(zap.String("stream", string(desc.ID)), zap.String("pass", p.name))
	missingWarned := false

	listPath := strings.TrimRight(desc.Endpoint, "/") + "/"

	var kept []core.Row
	for page := 1; ; page++ {
		list, err := f.page(ctx, desc.ID, listPath, query, page)
		if err != nil {
			return nil, err
		}

		rows := list
		if desc.HasDetails && !desc.ColumnMode {
			rows, err = f.details(ctx, desc, list)
			if err != nil {
				return nil, err
			}
		}

		for _, row := range rows {
			if desc.ModifiedField == "" || bookmark == "" {
				kept = append(kept, row)
				continue
			}
			modified, ok := row.String(desc.ModifiedField)
			if !ok {
				if !missingWarned {
					log.Debug("rows lack the modified field, no cutoff applied",
						zap.String("field", desc.ModifiedField))
					missingWarned = true
				}
				kept = append(kept, row)
				continue
			}
			if modified < bookmark {
				log.Debug("bookmark reached",
					zap.String("bookmark", bookmark),
					zap.String("modified", modified),
					zap.Int("page", page),
					zap.Int("rows", len(kept)))
				return kept, nil
			}
			kept = append(kept, row)
		}

		if len(list) < f.pageSize {
			log.Debug("listing exhausted", zap.Int("pages", page), zap.Int("rows", len(kept)))
			return kept, nil
		}
	}
}

// List pages through a nested endpoint and returns every row. A 404 yields
// no rows when the descriptor allows it.
func (f *Fetcher) List(ctx context.Context, desc *core.Descriptor, path string) ([]core.Row, error) {
	var rows []core.Row
	for page := 1; ; page++ {
		list, err := f.page(ctx, desc.ID, path, nil, page)
		if err != nil {
			if desc.NotFoundIsEmpty && errors.IsNotFound(err) {
				f.logger.Debug("endpoint not found, treating as empty",
					zap.String("stream", string(desc.ID)), zap.String("path", path))
				return rows, nil
			}
			return nil, err
		}
		rows = append(rows, list...)
		if len(list) < f.pageSize {
			return rows, nil
		}
	}
}

func (f *Fetcher) page(ctx context.Context, stream core.StreamID, path string, base url.Values, page int) ([]core.Row, error) {
	query := url.Values{}
	for k, v := range base {
		query[k] = v
	}
	query.Set("pageSize", strconv.Itoa(f.pageSize))
	query.Set("page", strconv.Itoa(page))

	var rows []core.Row
	if err := f.client.GetJSON(ctx, string(stream), path, query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// details fetches every row of a page concurrently; results come back in
// list order.
func (f *Fetcher) details(ctx context.Context, desc *core.Descriptor, list []core.Row) ([]core.Row, error) {
	return pipeline.OrderedMap(ctx, f.concurrency, list, func(ctx context.Context, _ int, row core.Row) (core.Row, error) {
		path, err := DetailPath(desc, row)
		if err != nil {
			return nil, err
		}
		var query url.Values
		if desc.DisplayAll {
			query = url.Values{"display": {"all"}}
		}
		var detail core.Row
		if err := f.client.GetJSON(ctx, string(desc.ID), path, query, &detail); err != nil {
			return nil, err
		}
		return detail, nil
	})
}

// DetailPath picks the detail URL for a row: the descriptor's function, the
// row's self link, then {endpoint}/{ID}.
func DetailPath(desc *core.Descriptor, row core.Row) (string, error) {
	if desc.DetailPath != nil {
		return desc.DetailPath(row), nil
	}
	if href, ok := row.String("_href"); ok && href != "" {
		vars, err := selfLink.Match(href)
		if err != nil {
			return "", err
		}
		path := vars["path"]
		if i := strings.IndexByte(href, '?'); i >= 0 {
			path += href[i:]
		}
		return path, nil
	}
	id := row.ID()
	if id == "" {
		return "", errors.Newf(errors.ErrorTypeData, "%s row has no ID", desc.ID)
	}
	return strings.TrimRight(desc.Endpoint, "/") + "/" + url.PathEscape(id), nil
}

// Columns lists the fields requested in column mode: the schema's properties
// minus the excluded ones, plus the added ones and the modified field.
func Columns(desc *core.Descriptor, schema *core.Schema) []string {
	excluded := make(map[string]bool, len(desc.ExcludedColumns))
	for _, c := range desc.ExcludedColumns {
		excluded[c] = true
	}

	seen := make(map[string]bool)
	var cols []string
	add := func(c string) {
		if c == "" || seen[c] || excluded[c] {
			return
		}
		seen[c] = true
		cols = append(cols, c)
	}

	for _, name := range schema.PropertyNames() {
		add(name)
	}
	for _, c := range desc.AddedColumns {
		add(c)
	}
	add(desc.ModifiedField)
	return cols
}

func orderField(desc *core.Descriptor) string {
	if desc.ModifiedField != "" {
		return desc.ModifiedField
	}
	return "DateModified"
}
