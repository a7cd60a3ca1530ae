// Package catalog builds, loads and queries Singer catalogs for the tap.
//
// Discover returns the catalog of every supported stream from the JSON
// schemas embedded in the binary. A catalog passed back with --catalog marks
// streams for sync either with "selected": true on the schema or with
// "selected": true in the metadata entry whose breadcrumb is empty.
package catalog

import (
	"embed"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// KeyProperty is the primary key of every stream
const KeyProperty = "ID"

// Catalog is a Singer catalog
type Catalog struct {
	Streams []*Entry `json:"streams"`
}

// Entry describes one stream
type Entry struct {
	Stream        string       `json:"stream"`
	TapStreamID   string       `json:"tap_stream_id"`
	Schema        *core.Schema `json:"schema"`
	KeyProperties StringList   `json:"key_properties"`
	Metadata      []Metadata   `json:"metadata"`
}

// Metadata is a breadcrumb-addressed metadata entry
type Metadata struct {
	Breadcrumb []string               `json:"breadcrumb"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// StringList decodes from a JSON string or array of strings
type StringList []string

// UnmarshalJSON accepts "ID" and ["ID"]
func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := gojson.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := gojson.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// Discover builds the catalog from the embedded schemas, sorted by stream
func Discover() (*Catalog, error) {
	files, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list embedded schemas")
	}

	cat := &Catalog{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := schemaFS.ReadFile(path.Join("schemas", f.Name()))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read embedded schema")
		}
		var schema core.Schema
		if err := gojson.Unmarshal(data, &schema); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid embedded schema").
				WithDetail("file", f.Name())
		}
		name := strings.TrimSuffix(f.Name(), ".json")
		cat.Streams = append(cat.Streams, &Entry{
			Stream:        name,
			TapStreamID:   name,
			Schema:        &schema,
			KeyProperties: StringList{KeyProperty},
			Metadata:      populateMetadata(&schema),
		})
	}

	sort.Slice(cat.Streams, func(i, j int) bool { return cat.Streams[i].TapStreamID < cat.Streams[j].TapStreamID })
	return cat, nil
}

// populateMetadata marks ID automatic and every other field available
func populateMetadata(schema *core.Schema) []Metadata {
	md := []Metadata{{
		Breadcrumb: []string{},
		Metadata:   map[string]interface{}{"table-key-properties": []string{KeyProperty}},
	}}
	for _, name := range schema.PropertyNames() {
		inclusion := "available"
		if name == KeyProperty {
			inclusion = "automatic"
		}
		md = append(md, Metadata{
			Breadcrumb: []string{"properties", name},
			Metadata:   map[string]interface{}{"inclusion": inclusion},
		})
	}
	return md
}

// Parse decodes a catalog document
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := gojson.Unmarshal(data, &cat); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid catalog")
	}
	for i, e := range cat.Streams {
		if e == nil || e.TapStreamID == "" {
			return nil, errors.Newf(errors.ErrorTypeData, "catalog stream %d has no tap_stream_id", i)
		}
	}
	return &cat, nil
}

// Load reads a catalog file
func Load(filePath string) (*Catalog, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the CLI
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read catalog").WithDetail("path", filePath)
	}
	return Parse(data)
}

// Write encodes the catalog as indented JSON
func (c *Catalog) Write(w io.Writer) error {
	enc := gojson.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write catalog")
	}
	return nil
}

// Entry returns the stream's entry, or nil
func (c *Catalog) Entry(id core.StreamID) *Entry {
	for _, e := range c.Streams {
		if e.TapStreamID == string(id) {
			return e
		}
	}
	return nil
}

// Selected reports whether the stream is marked for sync
func (c *Catalog) Selected(id core.StreamID) bool {
	e := c.Entry(id)
	if e == nil {
		return false
	}
	if e.Schema != nil && e.Schema.Selected {
		return true
	}
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) != 0 {
			continue
		}
		if sel, ok := m.Metadata["selected"].(bool); ok && sel {
			return true
		}
	}
	return false
}

// Schema returns the stream's schema, or nil
func (c *Catalog) Schema(id core.StreamID) *core.Schema {
	if e := c.Entry(id); e != nil {
		return e.Schema
	}
	return nil
}

// KeyProperties returns the stream's key properties, defaulting to ID
func (c *Catalog) KeyProperties(id core.StreamID) []string {
	if e := c.Entry(id); e != nil && len(e.KeyProperties) > 0 {
		return e.KeyProperties
	}
	return []string{KeyProperty}
}

// SelectedStreams lists the selected streams in catalog order
func (c *Catalog) SelectedStreams() []core.StreamID {
	var ids []core.StreamID
	for _, e := range c.Streams {
		if c.Selected(core.StreamID(e.TapStreamID)) {
			ids = append(ids, core.StreamID(e.TapStreamID))
		}
	}
	return ids
}

// Select marks streams selected in their root metadata. Unknown streams are
// reported as a config error.
func (c *Catalog) Select(ids ...core.StreamID) error {
	for _, id := range ids {
		e := c.Entry(id)
		if e == nil {
			return errors.Newf(errors.ErrorTypeConfig, "unknown stream %s", id)
		}
		root := -1
		for i, m := range e.Metadata {
			if len(m.Breadcrumb) == 0 {
				root = i
				break
			}
		}
		if root == -1 {
			e.Metadata = append(e.Metadata, Metadata{Breadcrumb: []string{}, Metadata: map[string]interface{}{}})
			root = len(e.Metadata) - 1
		}
		if e.Metadata[root].Metadata == nil {
			e.Metadata[root].Metadata = map[string]interface{}{}
		}
		e.Metadata[root].Metadata["selected"] = true
	}
	return nil
}
