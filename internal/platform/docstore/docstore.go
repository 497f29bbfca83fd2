// Package docstore is the persistence contract consumed by the domain packages:
// documents addressed by (collection, id), equality queries, plain writes and a
// single-attempt transaction primitive. Backends live in sub-packages.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrAlreadyExists = errors.New("docstore: document already exists")
	ErrConflict      = errors.New("docstore: transaction conflict")
)

// Filter is an equality predicate on a top-level document field.
type Filter struct {
	Field string
	Value interface{}
}

// Eq builds an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Document is a raw JSON document returned by Query.
type Document struct {
	ID   string
	Data []byte
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v interface{}) error {
	return json.Unmarshal(d.Data, v)
}

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, collection, id string, dst interface{}) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Set(ctx context.Context, collection, id string, v interface{}) error
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction runs fn once. Writes made through tx are applied atomically
	// when fn returns nil. A concurrent modification of anything fn read makes
	// the whole call fail with ErrConflict; there is no retry. Errors returned
	// by fn are passed through unchanged.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Close() error
}

// Tx is the view of the store inside RunTransaction. All reads must happen
// before the first write; some backends reject reads after writes.
type Tx interface {
	Get(ctx context.Context, collection, id string, dst interface{}) error
	// Create writes a new document and fails with ErrAlreadyExists if the id is
	// taken. Backends may report the failure from RunTransaction instead of
	// from Create.
	Create(ctx context.Context, collection, id string, v interface{}) error
	Set(ctx context.Context, collection, id string, v interface{}) error
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error
}
