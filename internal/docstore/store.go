// Package docstore defines the schema-less document store the service layer
// is written against, plus an in-memory implementation for tests and a
// SQL-backed implementation built on GORM.
//
// Collections are slash-separated paths ("posts", "posts/{id}/comments").
// Deleting a document never deletes its sub-collections.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxBatchSize is the largest number of mutations a single batch may commit.
const MaxBatchSize = 500

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrBatchTooLarge is returned by Commit when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("docstore: batch exceeds maximum size")
)

// Data is a document body. Values are JSON-normalised: strings, bools,
// json.Number, []any, map[string]any and nil.
type Data map[string]any

// Document is a snapshot of one stored document.
type Document struct {
	Collection string
	ID         string
	Data       Data
}

// DataTo decodes the document body into v using its json tags.
func (d *Document) DataTo(v any) error {
	b, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", d.Collection, d.ID, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// DataOf converts a struct (or map) into normalised document Data.
func DataOf(v any) (Data, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeData(b)
}

func decodeData(b []byte) (Data, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out Data
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = Data{}
	}
	return out, nil
}

func (d Data) clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Direction is a sort direction for Query.OrderBy.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Op is a filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose top-level Field matches Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	// Limit of zero means unlimited.
	Limit int
}

// Where returns a copy of q with an additional equality filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// Tx is the view of the store inside RunTransaction. Writes become visible
// only if the transaction function returns nil.
type Tx interface {
	Get(collection, id string) (*Document, error)
	Set(collection, id string, fields map[string]any, merge bool) error
	Update(collection, id string, fields map[string]any) error
	Delete(collection, id string) error
}

// Batch accumulates deletes that commit atomically.
type Batch interface {
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

// Store is the document database collaborator.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]*Document, error)
	// Subscribe emits the full query result now and again after every
	// change to the collection until ctx is done or the subscription is
	// cancelled.
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
	Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	// Add stores a new document under a generated id.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Batch() Batch
}

// NewID returns a random 20 character document id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

// Sub returns the path of a sub-collection under parent/parentID.
func Sub(parent, parentID, name string) string {
	return parent + "/" + parentID + "/" + name
}

func validatePath(collection, id string) error {
	if collection == "" || strings.HasPrefix(collection, "/") || strings.HasSuffix(collection, "/") {
		return fmt.Errorf("docstore: invalid collection %q", collection)
	}
	if strings.Count(collection, "/")%2 != 0 {
		return fmt.Errorf("docstore: %q is a document path, not a collection", collection)
	}
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("docstore: invalid document id %q", id)
	}
	return nil
}

// merge applies fields on top of base (top-level keys only).
func merge(base Data, fields Data) Data {
	out := base.clone()
	for k, v := range fields {
		out[k] = v
	}
	return out
}
