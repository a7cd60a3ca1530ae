package simpro

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/simpro-tap/pkg/catalog"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
)

const watermark = "2024-03-10 12:00:00"

func newTestDriver(t *testing.T, api *fakeAPI, pageSize int, cat *catalog.Catalog, emitter core.Emitter) *SyncDriver {
	reg, err := NewStreamRegistry(newTestFetcher(t, api, pageSize))
	require.NoError(t, err)
	return NewSyncDriver(reg, cat, emitter, DriverConfig{Clock: fixedClock{now: syncTime}}, nil)
}

func TestStreamRegistry(t *testing.T) {
	reg, err := NewStreamRegistry(NewFetcher(nil, FetcherConfig{}, nil))
	require.NoError(t, err)

	cat, err := catalog.Discover()
	require.NoError(t, err)

	ids := reg.IDs()
	assert.Len(t, ids, len(cat.Streams))
	for _, id := range ids {
		assert.NotNil(t, cat.Schema(id), "stream %s has a schema", id)
	}
	assert.Len(t, reg.Roots(), 13)
	for _, root := range reg.Roots() {
		assert.True(t, root.Descriptor().Archivable, "top-level stream %s lists archived rows", root.Descriptor().ID)
	}

	parent, ok := reg.Parent(JobLaborItems)
	assert.True(t, ok)
	assert.Equal(t, JobCostCenters, parent)
	assert.Equal(t, []core.StreamID{Quotes, QuoteSections, QuoteCostCenters}, reg.Subtree(Quotes))

	_, err = reg.Get("payable_invoices")
	assert.Error(t, err)
}

func TestSyncEmitsParentsAndEmbeddedChildren(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("customers/companies/", archivable(
		paged(obj("ID", 1), obj("ID", 2)),
		paged(obj("ID", 1)),
	))
	api.handle("customers/companies/1", fixed(obj(
		"ID", 1,
		"CompanyName", "Acme",
		"Sites", []interface{}{obj("ID", 10, "Name", "HQ"), obj("ID", 11, "Name", "Yard")},
		"CustomFields", []interface{}{obj("CustomField", obj("Name", "Tier"), "Value", "Gold")},
	)))
	api.handle("customers/companies/2", fixed(obj("ID", 2, "CompanyName", "Bolt", "Sites", []interface{}{})))

	emitter := &memEmitter{}
	cat := selectedCatalog(t, Customers, CustomerSites)
	bookmarks, err := newTestDriver(t, api, 10, cat, emitter).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"STATE ",
		"SCHEMA customers",
		"SCHEMA customer_sites",
		"RECORD customers",
		"RECORD customers",
		"RECORD customer_sites",
		"RECORD customer_sites",
		"STATE ",
	}, emitter.sequence(), "archived duplicates of customer 1 are emitted once")

	assert.Equal(t, []string{"1", "2"}, emitter.ids(Customers))
	assert.Equal(t, []string{"1_10", "1_11"}, emitter.ids(CustomerSites))

	site := emitter.records(CustomerSites)[0]
	assert.Equal(t, json.Number("1"), site["CustomerID"])
	assert.Equal(t, json.Number("10"), site["SiteID"])
	assert.Equal(t, "HQ", site["Name"])
	assert.Equal(t, map[string]interface{}{"Tier": "Gold"}, emitter.records(Customers)[0]["CustomFields"])

	for _, m := range emitter.messages {
		if m.kind == "RECORD" {
			assert.Equal(t, syncTime, m.extracted)
		}
	}

	want := core.Bookmarks{Customers: watermark, CustomerSites: watermark}
	assert.Equal(t, want, bookmarks)
	states := emitter.states()
	assert.Equal(t, core.Bookmarks{}, states[0])
	assert.Equal(t, want, states[1])

	assert.Contains(t, api.Requests(), "customers/companies/1?display=all")
}

func TestSyncResumesFromBookmark(t *testing.T) {
	api := newFakeAPI(t)
	rows := []map[string]interface{}{
		obj("ID", 1, "DateModified", "2024-03-05 10:00:00", "STC", 12),
		obj("ID", 2, "DateModified", "2024-03-04 10:00:00"),
		obj("ID", 3, "DateModified", "2024-03-02 10:00:00"),
		obj("ID", 4, "DateModified", "2024-02-01 10:00:00"),
		obj("ID", 5, "DateModified", "2024-01-01 10:00:00"),
	}
	api.handle("sites/", archivable(paged(rows...), paged()))
	for _, r := range rows {
		api.handle("sites/"+core.Row(r).ID(), fixed(r))
	}

	emitter := &memEmitter{}
	state := core.Bookmarks{Sites: "2024-03-01 00:00:00", Jobs: "2023-01-01 00:00:00"}
	bookmarks, err := newTestDriver(t, api, 2, selectedCatalog(t, Sites), emitter).Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, emitter.ids(Sites))
	first := emitter.records(Sites)[0]
	assert.Equal(t, "2024-03-05 10:00:00", first["DateModified"])
	assert.NotContains(t, first, "STC", "fields missing from the schema are dropped")
	assert.Equal(t, core.Bookmarks{Sites: watermark, Jobs: "2023-01-01 00:00:00"}, bookmarks)
	assert.Equal(t, "2024-03-01 00:00:00", state.Get(Sites), "input state is not modified")

	assert.Equal(t, 2, api.count("sites/?Archived=false"), "page 3 is never requested")
	assert.Equal(t, 1, api.count("sites/?Archived=true"))
	for _, p := range api.Paths() {
		assert.True(t, strings.HasPrefix(p, "sites/"), "unselected streams are never requested: %s", p)
	}
}

func TestSyncFetchesUnselectedParents(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("vendorOrders/", archivable(paged(obj("ID", 5)), paged()))
	api.handle("vendorOrders/5", fixed(obj("ID", 5, "DateModified", "2024-03-01 00:00:00")))
	api.handle("vendorOrders/5/receipts/", paged(obj("ID", 100), obj("ID", 101)))

	emitter := &memEmitter{}
	bookmarks, err := newTestDriver(t, api, 10, selectedCatalog(t, VendorOrderReceipts), emitter).
		Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, emitter.records(VendorOrders))
	assert.Equal(t, []string{"100", "101"}, emitter.ids(VendorOrderReceipts))
	assert.Equal(t, json.Number("5"), emitter.records(VendorOrderReceipts)[0]["VendorOrderID"])
	assert.Equal(t, core.Bookmarks{VendorOrderReceipts: watermark}, bookmarks)
	assert.NotContains(t, emitter.sequence(), "SCHEMA vendor_orders")
}

func TestSyncTimesheetIDs(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("employees/", archivable(paged(obj("ID", 7)), paged()))
	api.handle("employees/7", fixed(obj("ID", 7, "Name", "Sam")))
	api.handle("employees/7/timesheets/", paged(
		obj("Date", "2024-03-02", "StartTime", "08:00", "FinishTime", "16:00"),
		obj("Date", "2024-03-01", "StartTime", "13:30", "FinishTime", "17:00"),
	))

	cat := selectedCatalog(t, Employees, EmployeeTimesheets)
	first := &memEmitter{}
	_, err := newTestDriver(t, api, 10, cat, first).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"7"}, first.ids(Employees))
	assert.Equal(t, []string{"7_2024-03-02_08:00", "7_2024-03-01_13:30"}, first.ids(EmployeeTimesheets))
	assert.Equal(t, json.Number("7"), first.records(EmployeeTimesheets)[1]["EmployeeID"])

	// a timesheet entered later for an earlier slot shifts list positions
	api.handle("employees/7/timesheets/", paged(
		obj("Date", "2024-03-02", "StartTime", "08:00", "FinishTime", "16:00"),
		obj("Date", "2024-03-01", "StartTime", "07:00", "FinishTime", "12:00"),
		obj("Date", "2024-03-01", "StartTime", "13:30", "FinishTime", "17:00"),
	))
	second := &memEmitter{}
	_, err = newTestDriver(t, api, 10, cat, second).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"7_2024-03-02_08:00", "7_2024-03-01_07:00", "7_2024-03-01_13:30",
	}, second.ids(EmployeeTimesheets))
	afternoon := second.records(EmployeeTimesheets)[2]
	assert.Equal(t, first.records(EmployeeTimesheets)[1]["ID"], afternoon["ID"])
	assert.Equal(t, "17:00", afternoon["FinishTime"])
}

func TestSyncContractorTimesheetIDs(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("contractors/", archivable(paged(obj("ID", 3)), paged()))
	api.handle("contractors/3", fixed(obj("ID", 3, "Name", "Sparky Ltd")))
	api.handle("contractors/3/timesheets/", paged(
		obj("Date", "2024-03-04", "StartTime", "09:15"),
		obj("Date", "2024-03-04"),
	))

	emitter := &memEmitter{}
	_, err := newTestDriver(t, api, 10, selectedCatalog(t, ContractorTimesheets), emitter).
		Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"3_2024-03-04_09:15", "3_2024-03-04_"}, emitter.ids(ContractorTimesheets))
	assert.Equal(t, json.Number("3"), emitter.records(ContractorTimesheets)[0]["ContractorID"])
}

func TestSyncJobTree(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("jobs/", archivable(paged(obj("ID", 1)), paged()))
	api.handle("jobs/1", fixed(obj("ID", 1, "Name", "Fit-out", "IsVariation", "0")))
	api.handle("jobs/1/sections/", paged(obj("ID", 2)))
	api.handle("jobs/1/sections/2/costCenters/", paged(obj("ID", 3), obj("ID", 4)))
	api.handle("jobs/1/sections/2/costCenters/3/labor/", paged(obj("ID", 50, "Total", 12.5)))

	emitter := &memEmitter{}
	bookmarks, err := newTestDriver(t, api, 10, selectedCatalog(t, Jobs, JobLaborItems), emitter).
		Run(context.Background(), nil)
	require.NoError(t, err)

	seq := emitter.sequence()
	assert.Equal(t, []string{
		"STATE ",
		"SCHEMA jobs",
		"SCHEMA job_cost_center_labor_item",
		"RECORD jobs",
		"RECORD job_cost_center_labor_item",
		"STATE ",
	}, seq, "cost center 4 has no labor endpoint and yields nothing")

	job := emitter.records(Jobs)[0]
	assert.Equal(t, `"Fit-out"`, job["Name"])
	assert.Equal(t, false, job["IsVariation"])

	labor := emitter.records(JobLaborItems)[0]
	assert.Equal(t, json.Number("1"), labor["JobID"])
	assert.Equal(t, json.Number("2"), labor["SectionID"])
	assert.Equal(t, json.Number("3"), labor["CostCenterID"])

	assert.Equal(t, core.Bookmarks{Jobs: watermark, JobLaborItems: watermark}, bookmarks)
	assert.Contains(t, api.Requests(), "jobs/1?display=all")
	for _, p := range api.Paths() {
		assert.False(t, strings.HasSuffix(p, "/oneOffs/"), "unselected item streams are never requested: %s", p)
		assert.False(t, strings.HasSuffix(p, "/catalogs/"), "unselected item streams are never requested: %s", p)
	}
}

func TestSyncAbortKeepsEarlierBookmarks(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("customers/companies/", paged())
	api.handle("invoices/", status(http.StatusInternalServerError))

	emitter := &memEmitter{}
	state := core.Bookmarks{Invoices: "2024-01-01 00:00:00"}
	bookmarks, err := newTestDriver(t, api, 10, selectedCatalog(t, Customers, Invoices), emitter).
		Run(context.Background(), state)
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrorTypeHTTP))
	var e *errors.Error
	require.True(t, errors.As(err, &e))
	stream, _ := e.Detail("stream")
	assert.Equal(t, "invoices", stream)

	want := core.Bookmarks{Customers: watermark, Invoices: "2024-01-01 00:00:00"}
	assert.Equal(t, want, bookmarks)
	states := emitter.states()
	require.Len(t, states, 2)
	assert.Equal(t, want, states[1])
	assert.Empty(t, emitter.records(Invoices))
}

func TestSyncAbortLoggedOnceWithRunContext(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("jobs/", archivable(paged(obj("ID", 1)), paged()))
	api.handle("jobs/1", fixed(obj("ID", 1)))
	api.handle("jobs/1/sections/", paged(obj("ID", 2)))
	api.handle("jobs/1/sections/2/costCenters/", paged(obj("ID", 3)))
	api.handle("jobs/1/sections/2/costCenters/3/labor/", status(http.StatusInternalServerError))

	obsCore, logs := observer.New(zap.InfoLevel)
	reg, err := NewStreamRegistry(newTestFetcher(t, api, 10))
	require.NoError(t, err)
	driver := NewSyncDriver(reg, selectedCatalog(t, Jobs, JobLaborItems), &memEmitter{},
		DriverConfig{Clock: fixedClock{now: syncTime}}, zap.New(obsCore))

	_, err = driver.Run(context.Background(), nil)
	require.Error(t, err)

	aborted := logs.FilterMessage("stream aborted").All()
	require.Len(t, aborted, 1, "parents of the failing stream do not log it again")
	fields := aborted[0].ContextMap()
	assert.Equal(t, string(JobLaborItems), fields["stream"])
	assert.Equal(t, string(phaseListing), fields["state"])
	assert.NotEmpty(t, fields["run_id"])
}

func TestSyncNothingSelected(t *testing.T) {
	api := newFakeAPI(t)
	emitter := &memEmitter{}
	cat, err := catalog.Discover()
	require.NoError(t, err)

	bookmarks, err := newTestDriver(t, api, 10, cat, emitter).Run(context.Background(), core.Bookmarks{Jobs: "x"})
	require.NoError(t, err)
	assert.Equal(t, core.Bookmarks{Jobs: "x"}, bookmarks)
	assert.Empty(t, api.Requests())
	assert.Equal(t, []string{"STATE "}, emitter.sequence())
}

func TestSyncCancelled(t *testing.T) {
	api := newFakeAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDriver(t, api, 10, selectedCatalog(t, Sites), &memEmitter{}).Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbeddedBuilders(t *testing.T) {
	schedules := &embeddedKind{desc: &core.Descriptor{ID: ScheduleBlocks}, field: "Blocks", build: scheduleBlock}
	rows, err := schedules.Fetch(context.Background(), core.FetchRequest{Parents: []core.Row{
		{"ID": "4", "Blocks": []interface{}{
			map[string]interface{}{"StartTime": "08:00"},
			map[string]interface{}{"StartTime": "13:00"},
		}},
		{"ID": "5"},
	}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, core.Row{"ID": "4_1", "ScheduleID": "4", "StartTime": "08:00"}, rows[0])
	assert.Equal(t, "4_2", rows[1].ID())

	invoices := &embeddedKind{desc: &core.Descriptor{ID: InvoiceJobs}, field: "Jobs", build: invoiceJob}
	rows, err = invoices.Fetch(context.Background(), core.FetchRequest{Parents: []core.Row{
		{"ID": "9", "Jobs": []interface{}{map[string]interface{}{"ID": "31", "Total": 100}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, core.Row{"ID": "9_31", "JobID": "31", "InvoiceID": "9", "Total": 100}, rows[0])
}
