package singer

import (
	"io"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
)

// Writer emits Singer messages as JSON lines. It implements core.Emitter and
// is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *gojson.Encoder
}

// NewWriter creates a writer on w
func NewWriter(w io.Writer) *Writer {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

// WriteSchema announces a stream
func (w *Writer) WriteSchema(stream core.StreamID, schema *core.Schema, keyProperties []string) error {
	return w.write(&Message{
		Type:          MessageTypeSchema,
		Stream:        string(stream),
		Schema:        schema,
		KeyProperties: keyProperties,
	})
}

// WriteRecord emits one record
func (w *Writer) WriteRecord(stream core.StreamID, record core.Row, extracted time.Time) error {
	return w.write(&Message{
		Type:          MessageTypeRecord,
		Stream:        string(stream),
		Record:        record,
		TimeExtracted: &extracted,
	})
}

// WriteState emits the full bookmark map
func (w *Writer) WriteState(bookmarks core.Bookmarks) error {
	return w.write(&Message{
		Type:  MessageTypeState,
		Value: NewState(bookmarks),
	})
}

func (w *Writer) write(msg *Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write message").
			WithDetail("type", string(msg.Type)).
			WithDetail("stream", msg.Stream)
	}
	return nil
}
