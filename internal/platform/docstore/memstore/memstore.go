// Package memstore is an in-process docstore backend used in development mode
// and by tests. Transactions are optimistic: every document read inside a
// transaction is version-checked at commit.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/agenda/agenda/internal/platform/docstore"
)

type docKey struct {
	collection string
	id         string
}

type Store struct {
	mu       sync.RWMutex
	docs     map[docKey][]byte
	versions map[docKey]uint64
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		docs:     make(map[docKey][]byte),
		versions: make(map[docKey]uint64),
	}
}

func (s *Store) Get(_ context.Context, collection, id string, dst interface{}) error {
	s.mu.RLock()
	data, ok := s.docs[docKey{collection, id}]
	s.mu.RUnlock()
	if !ok {
		return docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Data: data}.Decode(dst)
}

func (s *Store) Query(_ context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []docstore.Document
	for k, data := range s.docs {
		if k.collection != collection {
			continue
		}
		ok, err := docstore.Match(data, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, docstore.Document{ID: k.id, Data: append([]byte(nil), data...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Set(_ context.Context, collection, id string, v interface{}) error {
	data, err := docstore.Encode(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(docKey{collection, id}, data)
	return nil
}

func (s *Store) Update(_ context.Context, collection, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := docKey{collection, id}
	data, ok := s.docs[k]
	if !ok {
		return docstore.ErrNotFound
	}
	merged, err := docstore.Merge(data, fields)
	if err != nil {
		return err
	}
	s.write(k, merged)
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(docKey{collection, id})
	return nil
}

func (s *Store) Close() error { return nil }

// write and remove must be called with mu held.
func (s *Store) write(k docKey, data []byte) {
	s.docs[k] = data
	s.versions[k]++
}

func (s *Store) remove(k docKey) {
	if _, ok := s.docs[k]; !ok {
		return
	}
	delete(s.docs, k)
	s.versions[k]++
}

// RunTransaction executes fn against a transaction that buffers its writes.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	t := &tx{store: s, reads: make(map[docKey]uint64)}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

type op struct {
	key    docKey
	data   []byte // nil means delete
	create bool
}

type tx struct {
	store  *Store
	reads  map[docKey]uint64
	ops    []op
	staged map[docKey][]byte
}

func (t *tx) observe(k docKey) ([]byte, bool) {
	if data, ok := t.staged[k]; ok {
		return data, data != nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if _, seen := t.reads[k]; !seen {
		t.reads[k] = t.store.versions[k]
	}
	data, ok := t.store.docs[k]
	return data, ok
}

func (t *tx) stage(o op) {
	if t.staged == nil {
		t.staged = make(map[docKey][]byte)
	}
	t.staged[o.key] = o.data
	t.ops = append(t.ops, o)
}

func (t *tx) Get(_ context.Context, collection, id string, dst interface{}) error {
	data, ok := t.observe(docKey{collection, id})
	if !ok {
		return docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Data: data}.Decode(dst)
}

func (t *tx) Create(_ context.Context, collection, id string, v interface{}) error {
	k := docKey{collection, id}
	if _, ok := t.observe(k); ok {
		return docstore.ErrAlreadyExists
	}
	data, err := docstore.Encode(v)
	if err != nil {
		return err
	}
	t.stage(op{key: k, data: data, create: true})
	return nil
}

func (t *tx) Set(_ context.Context, collection, id string, v interface{}) error {
	data, err := docstore.Encode(v)
	if err != nil {
		return err
	}
	t.stage(op{key: docKey{collection, id}, data: data})
	return nil
}

func (t *tx) Update(_ context.Context, collection, id string, fields map[string]interface{}) error {
	k := docKey{collection, id}
	data, ok := t.observe(k)
	if !ok {
		return docstore.ErrNotFound
	}
	merged, err := docstore.Merge(data, fields)
	if err != nil {
		return err
	}
	t.stage(op{key: k, data: merged})
	return nil
}

func (t *tx) Delete(_ context.Context, collection, id string) error {
	t.stage(op{key: docKey{collection, id}})
	return nil
}

func (t *tx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// A lost create race is reported as such even when other reads went
	// stale too.
	for _, o := range t.ops {
		if o.create {
			if _, exists := s.docs[o.key]; exists {
				return docstore.ErrAlreadyExists
			}
		}
	}
	for k, v := range t.reads {
		if s.versions[k] != v {
			return docstore.ErrConflict
		}
	}
	for _, o := range t.ops {
		if o.data == nil {
			s.remove(o.key)
			continue
		}
		s.write(o.key, o.data)
	}
	return nil
}
