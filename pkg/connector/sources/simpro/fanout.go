package simpro

import (
	"context"
	"strconv"
	"strings"

	"github.com/ajitpratap0/simpro-tap/internal/pipeline"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
	"github.com/ajitpratap0/simpro-tap/pkg/pathtemplate"
)

// listKind is a top-level stream read from its own listing endpoint.
type listKind struct {
	desc     *core.Descriptor
	fetcher  *Fetcher
	annotate func(core.Row) core.Row
}

func (k *listKind) Descriptor() *core.Descriptor { return k.desc }
func (k *listKind) Children() []core.StreamID    { return k.desc.Children }

func (k *listKind) Fetch(ctx context.Context, req core.FetchRequest) ([]core.Row, error) {
	return k.fetcher.Fetch(ctx, k.desc, req.Schema, req.Bookmark)
}

func (k *listKind) Transform(row core.Row, schema *core.Schema) (core.Row, error) {
	out, err := Transform(row, schema, k.desc.JSONColumns)
	if err != nil || k.annotate == nil {
		return out, err
	}
	return k.annotate(out), nil
}

// embeddedKind derives child rows from an array carried by each parent row.
// It never issues requests.
type embeddedKind struct {
	desc  *core.Descriptor
	field string
	// build shapes one child; index starts at 1
	build func(parent, child core.Row, index int) core.Row
}

func (k *embeddedKind) Descriptor() *core.Descriptor { return k.desc }
func (k *embeddedKind) Children() []core.StreamID    { return k.desc.Children }

func (k *embeddedKind) Fetch(_ context.Context, req core.FetchRequest) ([]core.Row, error) {
	var rows []core.Row
	for _, parent := range req.Parents {
		for i, child := range parent.Array(k.field) {
			rows = append(rows, k.build(parent, child.Clone(), i+1))
		}
	}
	return rows, nil
}

func (k *embeddedKind) Transform(row core.Row, schema *core.Schema) (core.Row, error) {
	return Transform(row, schema, k.desc.JSONColumns)
}

// parentKey copies parent field From into the child as Field; Field is also
// the path template variable it fills.
type parentKey struct {
	Field string
	From  string
}

// linkedKind requests a nested endpoint once per parent row, all parents
// concurrently.
type linkedKind struct {
	desc    *core.Descriptor
	fetcher *Fetcher
	path    *pathtemplate.Template
	keys    []parentKey
	// idFields, when set, replace the child ID with
	// {parentID}_{value}_{value}... built from these child fields
	idFields []string
}

func newLinkedKind(desc *core.Descriptor, fetcher *Fetcher, keys []parentKey, idFields ...string) *linkedKind {
	tmpl := pathtemplate.MustParse(desc.Endpoint)
	have := make(map[string]bool, len(keys))
	for _, k := range keys {
		have[k.Field] = true
	}
	for _, v := range tmpl.Vars() {
		if !have[v] {
			panic("simpro: " + string(desc.ID) + " endpoint variable " + v + " has no parent key")
		}
	}
	return &linkedKind{desc: desc, fetcher: fetcher, path: tmpl, keys: keys, idFields: idFields}
}

func (k *linkedKind) Descriptor() *core.Descriptor { return k.desc }
func (k *linkedKind) Children() []core.StreamID    { return k.desc.Children }

func (k *linkedKind) Fetch(ctx context.Context, req core.FetchRequest) ([]core.Row, error) {
	return pipeline.OrderedFlatMap(ctx, k.fetcher.concurrency, req.Parents,
		func(ctx context.Context, _ int, parent core.Row) ([]core.Row, error) {
			vars := make(map[string]string, len(k.keys))
			for _, key := range k.keys {
				v, ok := parent.String(key.From)
				if !ok {
					return nil, errors.Newf(errors.ErrorTypeData, "%s parent row has no %s", k.desc.ID, key.From).
						WithDetail("parent_id", parent.ID())
				}
				vars[key.Field] = v
			}
			path, err := k.path.Expand(vars)
			if err != nil {
				return nil, err
			}

			rows, err := k.fetcher.List(ctx, k.desc, path)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				for _, key := range k.keys {
					row[key.Field] = parent[key.From]
				}
				if len(k.idFields) > 0 {
					row["ID"] = naturalID(parent, row, k.idFields)
				}
			}
			return rows, nil
		})
}

func (k *linkedKind) Transform(row core.Row, schema *core.Schema) (core.Row, error) {
	return Transform(row, schema, k.desc.JSONColumns)
}

// naturalID keys a child by its parent and its own field values, so the ID
// survives rows being added or reordered upstream. Missing fields contribute
// an empty part.
func naturalID(parent, row core.Row, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i], _ = row.String(f)
	}
	return core.SyntheticID(parent.ID(), strings.Join(parts, "_"))
}

func customerSite(customer, site core.Row, _ int) core.Row {
	row := core.Row{
		"ID":         core.SyntheticID(customer.ID(), site.ID()),
		"CustomerID": customer["ID"],
		"SiteID":     site["ID"],
	}
	if name, ok := site["Name"]; ok {
		row["Name"] = name
	}
	return row
}

func scheduleBlock(schedule, block core.Row, index int) core.Row {
	block["ID"] = core.SyntheticID(schedule.ID(), strconv.Itoa(index))
	block["ScheduleID"] = schedule["ID"]
	return block
}

func invoiceJob(invoice, job core.Row, _ int) core.Row {
	jobID := job.ID()
	job["JobID"] = job["ID"]
	job["InvoiceID"] = invoice["ID"]
	job["ID"] = core.SyntheticID(invoice.ID(), jobID)
	return job
}
