package pgstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenda/agenda/internal/platform/docstore"
)

type claim struct {
	AppointmentID string `json:"appointmentId"`
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func TestGet(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(sqlGet)).
		WithArgs("slot_claims", "k1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte(`{"appointmentId": "a1"}`)))

	var c claim
	require.NoError(t, s.Get(context.Background(), "slot_claims", "k1", &c))
	assert.Equal(t, "a1", c.AppointmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(sqlGet)).
		WithArgs("slot_claims", "missing").
		WillReturnError(pgx.ErrNoRows)

	var c claim
	err := s.Get(context.Background(), "slot_claims", "missing", &c)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_UsesContainmentProbe(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(sqlQuery)).
		WithArgs("appointments", `{"date":"2026-02-10","professionalId":"p1"}`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).
			AddRow("a1", []byte(`{"appointmentId":"a1"}`)).
			AddRow("a2", []byte(`{"appointmentId":"a2"}`)))

	docs, err := s.Query(context.Background(), "appointments",
		docstore.Eq("professionalId", "p1"), docstore.Eq("date", "2026-02-10"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a1", docs[0].ID)
	assert.Equal(t, "a2", docs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSet(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(sqlUpsert)).
		WithArgs("slot_claims", "k1", `{"appointmentId":"a1"}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Set(context.Background(), "slot_claims", "k1", claim{AppointmentID: "a1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_NotFound(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(sqlMerge)).
		WithArgs("appointments", "a1", `{"status":"confirmed"}`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.Update(context.Background(), "appointments", "a1", map[string]interface{}{"status": "confirmed"})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(sqlDelete)).
		WithArgs("availability", "p1_2026-02-10").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.Delete(context.Background(), "availability", "p1_2026-02-10"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTransaction_Commit(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(regexp.QuoteMeta(sqlGetForTx)).
		WithArgs("availability", "p1_2026-02-10").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte(`{"appointmentId":"x"}`)))
	mock.ExpectExec(regexp.QuoteMeta(sqlInsert)).
		WithArgs("slot_claims", "p1_2026-02-10_10:00", `{"appointmentId":"a1"}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		var c claim
		if err := tx.Get(ctx, "availability", "p1_2026-02-10", &c); err != nil {
			return err
		}
		return tx.Create(ctx, "slot_claims", "p1_2026-02-10_10:00", claim{AppointmentID: "a1"})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTransaction_CreateDuplicate(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec(regexp.QuoteMeta(sqlInsert)).
		WithArgs("slot_claims", "k1", `{"appointmentId":"a2"}`).
		WillReturnError(&pgconn.PgError{Code: codeUnique})
	mock.ExpectRollback()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(ctx, "slot_claims", "k1", claim{AppointmentID: "a2"})
	})
	assert.ErrorIs(t, err, docstore.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTransaction_SerializationFailure(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec(regexp.QuoteMeta(sqlUpsert)).
		WithArgs("slot_claims", "k1", `{"appointmentId":"a1"}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: codeSerial})

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(ctx, "slot_claims", "k1", claim{AppointmentID: "a1"})
	})
	assert.ErrorIs(t, err, docstore.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTransaction_FnErrorRollsBack(t *testing.T) {
	mock, s := newMock(t)
	boom := errors.New("boom")
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectRollback()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
