// Package redisstore keeps each document under its own key plus a per-collection
// id set. Transactions use WATCH/MULTI/EXEC: every key read inside a
// transaction is watched, writes are queued and sent in one EXEC, and a
// modified watched key aborts the whole call with docstore.ErrConflict.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/agenda/agenda/internal/platform/docstore"
)

const defaultPrefix = "agenda"

type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ docstore.Store = (*Store)(nil)

// Option customizes the store.
type Option func(*Store)

// WithPrefix sets the key namespace (default "agenda").
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromURL parses a redis:// URL and pings the server.
func NewFromURL(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, opts...), nil
}

func (s *Store) docKey(collection, id string) string {
	return s.prefix + ":" + collection + ":" + id
}

func (s *Store) idsKey(collection string) string {
	return s.prefix + ":" + collection + ":_ids"
}

func (s *Store) Get(ctx context.Context, collection, id string, dst interface{}) error {
	data, err := s.client.Get(ctx, s.docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: id, Data: data}.Decode(dst)
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}

	var docs []docstore.Document
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Deleted between SMEMBERS and MGET.
			continue
		}
		data := []byte(raw)
		match, err := docstore.Match(data, filters)
		if err != nil {
			return nil, err
		}
		if match {
			docs = append(docs, docstore.Document{ID: ids[i], Data: data})
		}
	}
	return docs, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, v interface{}) error {
	data, err := docstore.Encode(v)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(collection, id), data, 0)
		pipe.SAdd(ctx, s.idsKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update is a read-modify-write guarded by WATCH; it is not retried.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Update(ctx, collection, id, fields)
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(collection, id))
		pipe.SRem(ctx, s.idsKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		t := &tx{store: s, rtx: rtx}
		if err := fn(ctx, t); err != nil {
			return err
		}
		if len(t.ops) == 0 {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range t.ops {
				op(pipe)
			}
			return nil
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return docstore.ErrConflict
	}
	return err
}

type tx struct {
	store *Store
	rtx   *redis.Tx
	ops   []func(redis.Pipeliner)
}

func (t *tx) read(ctx context.Context, collection, id string) ([]byte, error) {
	key := t.store.docKey(collection, id)
	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}
	data, err := t.rtx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return data, nil
}

func (t *tx) queueSet(ctx context.Context, collection, id string, data []byte) {
	key, ids := t.store.docKey(collection, id), t.store.idsKey(collection)
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, ids, id)
	})
}

func (t *tx) Get(ctx context.Context, collection, id string, dst interface{}) error {
	data, err := t.read(ctx, collection, id)
	if err != nil {
		return err
	}
	return docstore.Document{ID: id, Data: data}.Decode(dst)
}

func (t *tx) Create(ctx context.Context, collection, id string, v interface{}) error {
	_, err := t.read(ctx, collection, id)
	switch {
	case err == nil:
		return docstore.ErrAlreadyExists
	case !errors.Is(err, docstore.ErrNotFound):
		return err
	}
	data, err := docstore.Encode(v)
	if err != nil {
		return err
	}
	t.queueSet(ctx, collection, id, data)
	return nil
}

func (t *tx) Set(ctx context.Context, collection, id string, v interface{}) error {
	data, err := docstore.Encode(v)
	if err != nil {
		return err
	}
	t.queueSet(ctx, collection, id, data)
	return nil
}

func (t *tx) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	data, err := t.read(ctx, collection, id)
	if err != nil {
		return err
	}
	merged, err := docstore.Merge(data, fields)
	if err != nil {
		return err
	}
	t.queueSet(ctx, collection, id, merged)
	return nil
}

func (t *tx) Delete(ctx context.Context, collection, id string) error {
	key, ids := t.store.docKey(collection, id), t.store.idsKey(collection)
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, ids, id)
	})
	return nil
}
