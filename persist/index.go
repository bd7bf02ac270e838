package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/justmebob123/autonomy-sub001/bus"
)

// Index is a Bleve full-text archive over published messages. Unlike the
// SQLite archive it does not keep the wire form; it answers scored search
// queries over the indexed fields.
type Index struct {
	index  bleve.Index
	closed atomic.Bool
}

// messageDocument is the indexed shape of a message.
type messageDocument struct {
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewIndex opens or creates a Bleve index at path.
func NewIndex(path string) (*Index, error) {
	var index bleve.Index
	var err error

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		index, err = bleve.New(path, buildMessageMapping())
		if err != nil {
			return nil, fmt.Errorf("persist: create index: %w", err)
		}
	} else {
		index, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("persist: open index: %w", err)
		}
	}
	return &Index{index: index}, nil
}

// buildMessageMapping creates the Bleve document mapping: payload text is
// analyzed for full-text search, routing fields are exact-match keywords.
func buildMessageMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name

	keywordField := bleve.NewKeywordFieldMapping()
	dateField := bleve.NewDateTimeFieldMapping()

	docMapping.AddFieldMappingsAt("payload", textField)
	docMapping.AddFieldMappingsAt("sender", keywordField)
	docMapping.AddFieldMappingsAt("recipient", keywordField)
	docMapping.AddFieldMappingsAt("type", keywordField)
	docMapping.AddFieldMappingsAt("priority", keywordField)
	docMapping.AddFieldMappingsAt("timestamp", dateField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Persist indexes the message. Implements bus.Persister.
func (x *Index) Persist(msg *bus.Message) error {
	if msg == nil {
		return bus.ErrNilMessage
	}
	if x.closed.Load() {
		return ErrClosed
	}

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("persist: encode payload: %w", err)
	}
	doc := messageDocument{
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		Type:      msg.Type.String(),
		Priority:  msg.Priority.String(),
		Payload:   string(payload),
		Timestamp: msg.Timestamp,
	}
	if err := x.index.Index(msg.ID, doc); err != nil {
		return fmt.Errorf("persist: index message: %w", err)
	}
	return nil
}

// Hit is one scored search result. Fields holds the stored field values
// keyed by field name.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]any
}

// Search runs a Bleve query-string query and returns the best hits. A
// non-positive limit returns up to 10.
func (x *Index) Search(query string, limit int) ([]Hit, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"*"}

	result, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("persist: search index: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score, Fields: h.Fields})
	}
	return hits, nil
}

// Count returns the number of indexed messages.
func (x *Index) Count() (uint64, error) {
	if x.closed.Load() {
		return 0, ErrClosed
	}
	return x.index.DocCount()
}

// Close closes the index. Subsequent calls return ErrClosed from every
// operation.
func (x *Index) Close() error {
	if x.closed.Swap(true) {
		return nil
	}
	return x.index.Close()
}
