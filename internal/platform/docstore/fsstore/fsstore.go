// Package fsstore is the Cloud Firestore docstore backend. Documents are
// written through their JSON form so every backend sees the same field names
// and number representation.
package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/agenda/agenda/internal/platform/docstore"
)

type Store struct {
	client *firestore.Client
}

var _ docstore.Store = (*Store)(nil)

// New connects to the given project. When FIRESTORE_EMULATOR_HOST is set the
// client library talks to the emulator instead.
func New(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) ref(collection, id string) *firestore.DocumentRef {
	return s.client.Collection(collection).Doc(id)
}

func (s *Store) Get(ctx context.Context, collection, id string, dst interface{}) error {
	snap, err := s.ref(collection, id).Get(ctx)
	if err != nil {
		return mapError(fmt.Errorf("get %s/%s: %w", collection, id, err))
	}
	return decodeSnapshot(snap, dst)
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, err
		}
		q = q.Where(f.Field, "==", v)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	docs := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		data, err := json.Marshal(snap.Data())
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", collection, snap.Ref.ID, err)
		}
		docs = append(docs, docstore.Document{ID: snap.Ref.ID, Data: data})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, v interface{}) error {
	m, err := docstore.ToMap(v)
	if err != nil {
		return err
	}
	if _, err := s.ref(collection, id).Set(ctx, m); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	updates, err := toUpdates(fields)
	if err != nil {
		return err
	}
	if _, err := s.ref(collection, id).Update(ctx, updates); err != nil {
		return mapError(fmt.Errorf("update %s/%s: %w", collection, id, err))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.ref(collection, id).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// RunTransaction makes a single attempt; contention is reported to the caller
// as docstore.ErrConflict rather than retried.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		return fn(ctx, &tx{store: s, ftx: ftx})
	}, firestore.MaxAttempts(1))
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrAlreadyExists) || errors.Is(err, docstore.ErrConflict) {
		return err
	}
	// status.Code unwraps to the first gRPC status in the chain.
	switch status.Code(err) {
	case codes.NotFound:
		return docstore.ErrNotFound
	case codes.AlreadyExists:
		return docstore.ErrAlreadyExists
	case codes.Aborted:
		return docstore.ErrConflict
	}
	return err
}

func decodeSnapshot(snap *firestore.DocumentSnapshot, dst interface{}) error {
	data, err := json.Marshal(snap.Data())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return docstore.Document{ID: snap.Ref.ID, Data: data}.Decode(dst)
}

// normalize converts v to the shape it has after a JSON round trip, which is
// how it was stored.
func normalize(v interface{}) (interface{}, error) {
	data, err := docstore.Encode(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

func toUpdates(fields map[string]interface{}) ([]firestore.Update, error) {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		nv, err := normalize(v)
		if err != nil {
			return nil, err
		}
		updates = append(updates, firestore.Update{Path: k, Value: nv})
	}
	return updates, nil
}

type tx struct {
	store *Store
	ftx   *firestore.Transaction
}

func (t *tx) Get(_ context.Context, collection, id string, dst interface{}) error {
	snap, err := t.ftx.Get(t.store.ref(collection, id))
	if err != nil {
		return mapError(fmt.Errorf("get %s/%s: %w", collection, id, err))
	}
	return decodeSnapshot(snap, dst)
}

// Create does not read first: Firestore forbids reads after writes inside a
// transaction. An existing document fails the commit with AlreadyExists,
// which RunTransaction reports as docstore.ErrAlreadyExists.
func (t *tx) Create(_ context.Context, collection, id string, v interface{}) error {
	m, err := docstore.ToMap(v)
	if err != nil {
		return err
	}
	return t.ftx.Create(t.store.ref(collection, id), m)
}

func (t *tx) Set(_ context.Context, collection, id string, v interface{}) error {
	m, err := docstore.ToMap(v)
	if err != nil {
		return err
	}
	return t.ftx.Set(t.store.ref(collection, id), m)
}

func (t *tx) Update(_ context.Context, collection, id string, fields map[string]interface{}) error {
	updates, err := toUpdates(fields)
	if err != nil {
		return err
	}
	return t.ftx.Update(t.store.ref(collection, id), updates)
}

func (t *tx) Delete(_ context.Context, collection, id string) error {
	return t.ftx.Delete(t.store.ref(collection, id))
}
