package simpro

import (
	"encoding/json"
	"regexp"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
)

const (
	zeroDateTime = "0000-00-00 00:00:00"
	zeroDate     = "0000-00-00"
)

// Transform normalizes a raw row for emission. It works on a copy; row is
// left untouched so children can still read the original shape. Rules run
// in order:
//
//  1. a CustomFields array becomes a map of definition name to value
//  2. each JSON column is replaced by its JSON encoding
//  3. zero-date sentinels in date fields become null
//  4. "0"/"1"/0/1 in boolean fields become false/true
//  5. when the schema is closed, fields it does not declare are dropped
func Transform(row core.Row, schema *core.Schema, jsonColumns []string) (core.Row, error) {
	out := row.Clone()

	if fields, ok := out["CustomFields"].([]interface{}); ok {
		out["CustomFields"] = customFieldMap(fields)
	}

	for _, col := range jsonColumns {
		v, ok := out[col]
		if !ok || v == nil {
			continue
		}
		encoded, err := gojson.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode JSON column").
				WithDetail("column", col)
		}
		out[col] = string(encoded)
	}

	if schema == nil {
		return out, nil
	}

	for name, prop := range schema.Properties {
		v, ok := out[name]
		if !ok {
			continue
		}
		switch {
		case prop.IsDate():
			if s, isStr := v.(string); isStr && (s == zeroDateTime || s == zeroDate) {
				out[name] = nil
			}
		case prop.IsBoolean():
			if b, coerced := coerceBool(v); coerced {
				out[name] = b
			}
		}
	}

	if schema.Closed() {
		for name := range out {
			if _, declared := schema.Properties[name]; !declared {
				delete(out, name)
			}
		}
	}
	return out, nil
}

// customFieldMap turns [{"CustomField": {"Name": n}, "Value": v}, ...] into
// {n: v}. Entries without a name are dropped.
func customFieldMap(fields []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		entry, ok := f.(map[string]interface{})
		if !ok {
			continue
		}
		def, ok := entry["CustomField"].(map[string]interface{})
		if !ok {
			continue
		}
		name, ok := def["Name"].(string)
		if !ok || name == "" {
			continue
		}
		m[name] = entry["Value"]
	}
	return m
}

func coerceBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case string:
		switch t {
		case "0":
			return false, true
		case "1":
			return true, true
		}
	case json.Number:
		switch t.String() {
		case "0":
			return false, true
		case "1":
			return true, true
		}
	case float64:
		switch t {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	case int:
		switch t {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	}
	return false, false
}

// catalogInvoiceName splits catalog names like
// "Acme Supplies non catalog item - Invoice INV-991" into supplier and
// invoice number.
var catalogInvoiceName = regexp.MustCompile(`^(.+?)(?: non? catalog item)? - Invoice (.+?)$`)

// annotateCatalog adds Supplier and InvoiceNumber to catalog rows whose Name
// follows the supplier invoice convention.
func annotateCatalog(row core.Row) core.Row {
	name, ok := row["Name"].(string)
	if !ok {
		return row
	}
	m := catalogInvoiceName.FindStringSubmatch(name)
	if m == nil {
		return row
	}
	row["Supplier"] = m[1]
	row["InvoiceNumber"] = m[2]
	return row
}
