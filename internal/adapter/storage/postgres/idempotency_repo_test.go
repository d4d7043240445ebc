package postgres

import (
	"context"
	"testing"
	"time"

	"groupbuy-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRetention = 24 * time.Hour
	testStaleLock = 30 * time.Second
)

func ledgerCols() []string {
	return []string{"tenant_id", "key", "fingerprint", "status", "order_id", "outcome", "created_at", "expires_at"}
}

func TestIdempotencyRepo_BeginOrReplay_Reserves(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock, testRetention, testStaleLock)
	tenantID := uuid.New()

	mock.ExpectExec("INSERT INTO idempotency_records").
		WithArgs(tenantID, "key-1", "fp-1", domain.IdempotencyStatusInProgress,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := repo.BeginOrReplay(context.Background(), domain.NewScope(tenantID), "key-1", "fp-1")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_BeginOrReplay_ReplaysCompleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock, testRetention, testStaleLock)
	tenantID := uuid.New()
	orderID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WithArgs(tenantID, "key-1", "fp-1", domain.IdempotencyStatusInProgress,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT .+ FROM idempotency_records WHERE tenant_id .+ AND key").
		WithArgs(tenantID, "key-1").
		WillReturnRows(pgxmock.NewRows(ledgerCols()).AddRow(
			tenantID, "key-1", "fp-1", domain.IdempotencyStatusCompleted,
			&orderID, []byte(`{"id":"x"}`), now, now.Add(testRetention),
		))

	rec, err := repo.BeginOrReplay(context.Background(), domain.NewScope(tenantID), "key-1", "fp-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.IdempotencyStatusCompleted, rec.Status)
	assert.Equal(t, orderID, *rec.OrderID)
	assert.Equal(t, []byte(`{"id":"x"}`), rec.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_BeginOrReplay_FingerprintConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock, testRetention, testStaleLock)
	tenantID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WithArgs(tenantID, "key-1", "fp-other", domain.IdempotencyStatusInProgress,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT .+ FROM idempotency_records WHERE tenant_id .+ AND key").
		WithArgs(tenantID, "key-1").
		WillReturnRows(pgxmock.NewRows(ledgerCols()).AddRow(
			tenantID, "key-1", "fp-original", domain.IdempotencyStatusCompleted,
			nil, nil, now, now.Add(testRetention),
		))

	rec, err := repo.BeginOrReplay(context.Background(), domain.NewScope(tenantID), "key-1", "fp-other")
	assert.Nil(t, rec)
	requireCode(t, err, "IDEMPOTENCY_CONFLICT")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_BeginOrReplay_InProgress(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock, testRetention, testStaleLock)
	tenantID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WithArgs(tenantID, "key-1", "fp-1", domain.IdempotencyStatusInProgress,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT .+ FROM idempotency_records WHERE tenant_id .+ AND key").
		WithArgs(tenantID, "key-1").
		WillReturnRows(pgxmock.NewRows(ledgerCols()).AddRow(
			tenantID, "key-1", "fp-1", domain.IdempotencyStatusInProgress,
			nil, nil, now, now.Add(testRetention),
		))

	rec, err := repo.BeginOrReplay(context.Background(), domain.NewScope(tenantID), "key-1", "fp-1")
	assert.Nil(t, rec)
	requireCode(t, err, "IDEMPOTENCY_IN_PROGRESS")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_BeginOrReplay_StaleLockTakeover(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock, testRetention, testStaleLock)
	tenantID := uuid.New()
	// Reservation abandoned well past the stale-lock timeout.
	staleCreated := time.Now().UTC().Add(-5 * time.Minute).Truncate(time.Microsecond)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WithArgs(tenantID, "key-1", "fp-1", domain.IdempotencyStatusInProgress,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT .+ FROM idempotency_records WHERE tenant_id .+ AND key").
		WithArgs(tenantID, "key-1").
		WillReturnRows(pgxmock.NewRows(ledgerCols()).AddRow(
			tenantID, "key-1", "fp-1", domain.IdempotencyStatusInProgress,
			nil, nil, staleCreated, staleCreated.Add(testRetention),
		))
	mock.ExpectExec("UPDATE idempotency_records").
		WithArgs("fp-1", domain.IdempotencyStatusInProgress, pgxmock.AnyArg(), pgxmock.AnyArg(),
			tenantID, "key-1", staleCreated).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec, err := repo.BeginOrReplay(context.Background(), domain.NewScope(tenantID), "key-1", "fp-1")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_BeginOrReplay_TakeoverRaceLoses(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock, testRetention, testStaleLock)
	tenantID := uuid.New()
	staleCreated := time.Now().UTC().Add(-5 * time.Minute).Truncate(time.Microsecond)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WithArgs(tenantID, "key-1", "fp-1", domain.IdempotencyStatusInProgress,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT .+ FROM idempotency_records WHERE tenant_id .+ AND key").
		WithArgs(tenantID, "key-1").
		WillReturnRows(pgxmock.NewRows(ledgerCols()).AddRow(
			tenantID, "key-1", "fp-1", domain.IdempotencyStatusInProgress,
			nil, nil, staleCreated, staleCreated.Add(testRetention),
		))
	// Another contender re-reserved the slot first; the created_at guard misses.
	mock.ExpectExec("UPDATE idempotency_records").
		WithArgs("fp-1", domain.IdempotencyStatusInProgress, pgxmock.AnyArg(), pgxmock.AnyArg(),
			tenantID, "key-1", staleCreated).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	rec, err := repo.BeginOrReplay(context.Background(), domain.NewScope(tenantID), "key-1", "fp-1")
	assert.Nil(t, rec)
	requireCode(t, err, "IDEMPOTENCY_IN_PROGRESS")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Complete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock, testRetention, testStaleLock)
	tenantID := uuid.New()
	orderID := uuid.New()
	outcome := []byte(`{"id":"x","status":"PENDING_PAYMENT"}`)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE idempotency_records SET status").
		WithArgs(domain.IdempotencyStatusCompleted, orderID, outcome,
			tenantID, "key-1", domain.IdempotencyStatusInProgress).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Complete(context.Background(), domain.NewScope(tenantID), tx, "key-1", orderID, outcome)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Release(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock, testRetention, testStaleLock)
	tenantID := uuid.New()

	mock.ExpectExec("DELETE FROM idempotency_records").
		WithArgs(tenantID, "key-1", domain.IdempotencyStatusInProgress).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err = repo.Release(context.Background(), domain.NewScope(tenantID), "key-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
