// Package pgstore stores documents as JSONB rows in PostgreSQL. The
// (collection, id) primary key is the uniqueness constraint Tx.Create relies on.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agenda/agenda/internal/platform/docstore"
)

const (
	sqlGet       = `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	sqlGetForTx  = `SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR SHARE`
	sqlQuery     = `SELECT id, data FROM documents WHERE collection = $1 AND data @> $2::jsonb ORDER BY id`
	sqlUpsert    = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb) ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`
	sqlInsert    = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`
	sqlMerge     = `UPDATE documents SET data = data || $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2`
	sqlDelete    = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	codeUnique   = "23505"
	codeSerial   = "40001"
	codeDeadlock = "40P01"
)

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Store struct {
	pool Pool
}

var _ docstore.Store = (*Store)(nil)

func New(pool Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, collection, id string, dst interface{}) error {
	return get(ctx, s.pool, sqlGet, collection, id, dst)
}

func get(ctx context.Context, q queryable, sql, collection, id string, dst interface{}) error {
	var data []byte
	err := q.QueryRow(ctx, sql, collection, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return json.Unmarshal(data, dst)
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	containment := make(map[string]interface{}, len(filters))
	for _, f := range filters {
		containment[f.Field] = f.Value
	}
	probe, err := docstore.Encode(containment)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sqlQuery, collection, string(probe))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var d docstore.Document
		if err := rows.Scan(&d.ID, &d.Data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, v interface{}) error {
	return set(ctx, s.pool, sqlUpsert, collection, id, v)
}

func set(ctx context.Context, q queryable, sql, collection, id string, v interface{}) error {
	data, err := docstore.Encode(v)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, sql, collection, id, string(data)); err != nil {
		return mapError(fmt.Errorf("write %s/%s: %w", collection, id, err))
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return update(ctx, s.pool, collection, id, fields)
}

func update(ctx context.Context, q queryable, collection, id string, fields map[string]interface{}) error {
	patch, err := docstore.Encode(fields)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, sqlMerge, collection, id, string(patch))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.pool.Exec(ctx, sqlDelete, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

// RunTransaction runs fn in a REPEATABLE READ transaction. Serialization
// failures surface as docstore.ErrConflict.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	ptx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, &tx{tx: ptx}); err != nil {
		_ = ptx.Rollback(ctx)
		return mapError(err)
	}
	if err := ptx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUnique:
		return docstore.ErrAlreadyExists
	case codeSerial, codeDeadlock:
		return docstore.ErrConflict
	}
	return err
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) Get(ctx context.Context, collection, id string, dst interface{}) error {
	return get(ctx, t.tx, sqlGetForTx, collection, id, dst)
}

func (t *tx) Create(ctx context.Context, collection, id string, v interface{}) error {
	return set(ctx, t.tx, sqlInsert, collection, id, v)
}

func (t *tx) Set(ctx context.Context, collection, id string, v interface{}) error {
	return set(ctx, t.tx, sqlUpsert, collection, id, v)
}

func (t *tx) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return update(ctx, t.tx, collection, id, fields)
}

func (t *tx) Delete(ctx context.Context, collection, id string) error {
	if _, err := t.tx.Exec(ctx, sqlDelete, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}
