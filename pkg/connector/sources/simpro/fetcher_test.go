package simpro

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
	"github.com/ajitpratap0/simpro-tap/pkg/pathtemplate"
)

func widgets() *core.Descriptor {
	return &core.Descriptor{ID: "widgets", Endpoint: "widgets", ModifiedField: "DateModified"}
}

func TestFetchStopsAtBookmark(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("widgets/", paged(
		obj("ID", 1, "DateModified", "2024-03-05 10:00:00"),
		obj("ID", 2, "DateModified", "2024-03-04 09:00:00"),
		obj("ID", 3, "DateModified", "2024-03-01 00:00:00"),
		obj("ID", 4, "DateModified", "2024-02-27 08:00:00"),
		obj("ID", 5, "DateModified", "2024-02-20 08:00:00"),
		obj("ID", 6, "DateModified", "2024-02-10 08:00:00"),
	))
	f := newTestFetcher(t, api, 2)

	rows, err := f.Fetch(context.Background(), widgets(), nil, "2024-03-01 00:00:00")
	require.NoError(t, err)

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID()
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids, "rows equal to the bookmark are kept")
	assert.Equal(t, []string{
		"widgets/?orderby=-DateModified&page=1&pageSize=2",
		"widgets/?orderby=-DateModified&page=2&pageSize=2",
	}, api.Requests(), "later pages are never requested")
}

func TestFetchPagination(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		pageSize int
		requests int
	}{
		{"empty", 0, 3, 1},
		{"short last page", 5, 2, 3},
		{"exact multiple", 4, 2, 3},
		{"single page", 2, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t)
			var rows []map[string]interface{}
			for i := 0; i < tt.rows; i++ {
				rows = append(rows, obj("ID", i+1))
			}
			api.handle("widgets/", paged(rows...))

			got, err := newTestFetcher(t, api, tt.pageSize).Fetch(context.Background(), widgets(), nil, "")
			require.NoError(t, err)
			assert.Len(t, got, tt.rows)
			assert.Equal(t, tt.requests, api.count("widgets/"))
		})
	}
}

func TestFetchArchivablePasses(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("widgets/", archivable(
		paged(obj("ID", 1), obj("ID", 2)),
		paged(obj("ID", 9)),
	))
	desc := widgets()
	desc.Archivable = true

	rows, err := newTestFetcher(t, api, 10).Fetch(context.Background(), desc, nil, "")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "9", rows[2].ID(), "archived rows follow active rows")

	assert.Equal(t, []string{
		"widgets/?Archived=false&Removed=false&orderby=-DateModified&page=1&pageSize=10",
		"widgets/?Archived=true&Removed=true&orderby=-DateModified&page=1&pageSize=10",
	}, api.Requests())
}

func TestFetchMissingModifiedFieldKeepsRows(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("widgets/", paged(obj("ID", 1), obj("ID", 2, "DateModified", "2020-01-01 00:00:00")))

	rows, err := newTestFetcher(t, api, 10).Fetch(context.Background(), widgets(), nil, "2024-01-01 00:00:00")
	require.NoError(t, err)
	require.Len(t, rows, 1, "first row has no modified field, second is older than the bookmark")
	assert.Equal(t, "1", rows[0].ID())
}

func TestFetchDetails(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("widgets/", paged(
		obj("ID", 1),
		obj("ID", 2, "_href", "/api/v1.0/companies/0/special/2"),
	))
	api.handle("widgets/1", fixed(obj("ID", 1, "Name", "one")))
	api.handle("special/2", fixed(obj("ID", 2, "Name", "two")))

	desc := widgets()
	desc.HasDetails = true
	desc.DisplayAll = true

	rows, err := newTestFetcher(t, api, 10).Fetch(context.Background(), desc, nil, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "one", rows[0]["Name"])
	assert.Equal(t, "two", rows[1]["Name"])

	reqs := api.Requests()
	assert.Contains(t, reqs, "widgets/1?display=all")
	assert.Contains(t, reqs, "special/2?display=all")
}

func TestFetchDetailError(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("widgets/", paged(obj("ID", 1), obj("ID", 2)))
	api.handle("widgets/1", fixed(obj("ID", 1)))
	api.handle("widgets/2", status(http.StatusInternalServerError))

	desc := widgets()
	desc.HasDetails = true

	_, err := newTestFetcher(t, api, 10).Fetch(context.Background(), desc, nil, "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeHTTP))
}

func TestFetchDetailsKeepListOrderAndStopAtBookmark(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("widgets/", paged(obj("ID", 1), obj("ID", 2), obj("ID", 3)))
	api.handle("widgets/1", delayed(50*time.Millisecond,
		fixed(obj("ID", 1, "DateModified", "2024-03-05 10:00:00"))))
	api.handle("widgets/2", fixed(obj("ID", 2, "DateModified", "2024-03-04 10:00:00")))
	api.handle("widgets/3", fixed(obj("ID", 3, "DateModified", "2024-02-01 10:00:00")))

	desc := widgets()
	desc.HasDetails = true

	rows, err := newTestFetcher(t, api, 3).Fetch(context.Background(), desc, nil, "2024-03-01 00:00:00")
	require.NoError(t, err)

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID()
	}
	assert.Equal(t, []string{"1", "2"}, ids, "slow details do not reorder rows")
	assert.Equal(t, 1, api.count("widgets/?"), "a full page ending before the bookmark ends the listing")
	assert.NotContains(t, api.Requests(), "widgets/?orderby=-DateModified&page=2&pageSize=3")
}

func TestFetchColumnMode(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("widgets/", paged(obj("ID", 1, "Name", "a")))

	desc := widgets()
	desc.ColumnMode = true
	desc.HasDetails = true
	desc.ExcludedColumns = []string{"Supplier"}
	desc.AddedColumns = []string{"Extra"}
	schema := &core.Schema{Properties: map[string]*core.Schema{
		"ID": {}, "Name": {}, "Supplier": {},
	}}

	rows, err := newTestFetcher(t, api, 10).Fetch(context.Background(), desc, schema, "")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	assert.Equal(t, []string{"ID", "Name", "Extra", "DateModified"}, Columns(desc, schema))
	assert.Equal(t, []string{
		"widgets/?columns=" + url.QueryEscape("ID,Name,Extra,DateModified") + "&orderby=-DateModified&page=1&pageSize=10",
	}, api.Requests(), "column mode never requests details")
}

func TestListNotFound(t *testing.T) {
	api := newFakeAPI(t)
	f := newTestFetcher(t, api, 10)

	desc := &core.Descriptor{ID: "things", NotFoundIsEmpty: true}
	rows, err := f.List(context.Background(), desc, "jobs/1/things/")
	require.NoError(t, err)
	assert.Empty(t, rows)

	desc.NotFoundIsEmpty = false
	_, err = f.List(context.Background(), desc, "jobs/1/things/")
	assert.True(t, errors.IsNotFound(err))
}

func TestDetailPath(t *testing.T) {
	desc := &core.Descriptor{ID: "jobs", Endpoint: "jobs"}

	path, err := DetailPath(desc, core.Row{"ID": "7"})
	require.NoError(t, err)
	assert.Equal(t, "jobs/7", path)

	path, err = DetailPath(desc, core.Row{"ID": "7", "_href": "/api/v1.0/companies/3/jobs/7/extra?display=all"})
	require.NoError(t, err)
	assert.Equal(t, "jobs/7/extra?display=all", path)

	_, err = DetailPath(desc, core.Row{"ID": "7", "_href": "/elsewhere/7"})
	require.Error(t, err)
	var perr *pathtemplate.ParseError
	assert.True(t, errors.As(err, &perr))
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))

	_, err = DetailPath(desc, core.Row{"Name": "no id"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	desc.DetailPath = displayAll("jobs")
	path, err = DetailPath(desc, core.Row{"ID": "7", "_href": "/api/v1.0/companies/3/other/7"})
	require.NoError(t, err)
	assert.Equal(t, "jobs/7?display=all", path, "the descriptor function wins over the self link")
}
