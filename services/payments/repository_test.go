package main

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres integration tests")
	}
	return dsn
}

// newTestPool aplica as migrações e limpa as tabelas de pagamentos
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}
	t.Cleanup(pool.Close)

	require.NoError(t, applyMigrations(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE holds, wallets, dtm_barrier.barrier`)
	require.NoError(t, err)
	return pool
}

func newTestBarrierDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", testDatabaseURL(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Ping())

	dtmcli.SetCurrentDBType("postgres")
	return db
}

func walletOf(t *testing.T, pool *pgxpool.Pool, customer string) (current, available int64) {
	t.Helper()
	err := pool.QueryRow(context.Background(),
		`SELECT current_amount, available_amount FROM wallets WHERE customer = $1`, customer).
		Scan(&current, &available)
	require.NoError(t, err)
	return current, available
}

func TestNewPostgresPaymentRepository(t *testing.T) {
	// Arrange
	var pool *pgxpool.Pool

	// Act
	repo := NewPostgresPaymentRepository(pool)

	// Assert
	assert.NotNil(t, repo)
	assert.Implements(t, (*PaymentRepository)(nil), repo)
}

func TestPostgresPaymentRepository_HoldLifecycle(t *testing.T) {
	pool := newTestPool(t)
	uc := NewPaymentUseCase(NewPostgresPaymentRepository(pool))
	ctx := context.Background()

	_, err := uc.TopUpWallet(ctx, TopUpRequest{Customer: "ana@example.com", Amount: 5000})
	require.NoError(t, err)

	req := CreateHoldRequest{HoldID: "h-1", OrderID: "o-1", Customer: "ana@example.com", Amount: 1000, Currency: "eur"}
	hold, err := uc.CreateHold(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, HoldPending, hold.Status)

	// Mesmo pedido repetido devolve a retenção existente
	again, err := uc.CreateHold(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, hold.HoldID, again.HoldID)

	_, err = uc.CreateHold(ctx, CreateHoldRequest{HoldID: "h-1", OrderID: "o-2", Customer: "ana@example.com", Amount: 1000, Currency: "eur"})
	assert.ErrorIs(t, err, ErrHoldMismatch)

	// authorize reserva, capture debita
	_, err = uc.AuthorizeHold(ctx, "h-1")
	require.NoError(t, err)
	current, available := walletOf(t, pool, "ana@example.com")
	assert.Equal(t, int64(5000), current)
	assert.Equal(t, int64(4000), available)

	_, err = uc.CaptureHold(ctx, "h-1")
	require.NoError(t, err)
	_, err = uc.CaptureHold(ctx, "h-1")
	require.NoError(t, err)
	current, available = walletOf(t, pool, "ana@example.com")
	assert.Equal(t, int64(4000), current)
	assert.Equal(t, int64(4000), available)

	_, err = uc.CancelHold(ctx, "h-1")
	assert.ErrorIs(t, err, ErrHoldCaptured)

	stored, err := uc.GetHold(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, HoldCaptured, stored.Status)
}

func TestPostgresPaymentRepository_CancelReleasesReservation(t *testing.T) {
	pool := newTestPool(t)
	uc := NewPaymentUseCase(NewPostgresPaymentRepository(pool))
	ctx := context.Background()

	_, err := uc.TopUpWallet(ctx, TopUpRequest{Customer: "ana@example.com", Amount: 1500})
	require.NoError(t, err)
	_, err = uc.CreateHold(ctx, CreateHoldRequest{HoldID: "h-1", OrderID: "o-1", Customer: "ana@example.com", Amount: 1000, Currency: "eur"})
	require.NoError(t, err)
	_, err = uc.CreateHold(ctx, CreateHoldRequest{HoldID: "h-2", OrderID: "o-2", Customer: "ana@example.com", Amount: 1000, Currency: "eur"})
	require.NoError(t, err)

	_, err = uc.AuthorizeHold(ctx, "h-1")
	require.NoError(t, err)

	// saldo disponível insuficiente para a segunda retenção
	_, err = uc.AuthorizeHold(ctx, "h-2")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = uc.CancelHold(ctx, "h-1")
	require.NoError(t, err)
	_, err = uc.CancelHold(ctx, "h-1")
	require.NoError(t, err)

	current, available := walletOf(t, pool, "ana@example.com")
	assert.Equal(t, int64(1500), current)
	assert.Equal(t, int64(1500), available)

	_, err = uc.AuthorizeHold(ctx, "h-2")
	require.NoError(t, err)
}

func TestPostgresPaymentRepository_NotFound(t *testing.T) {
	pool := newTestPool(t)
	uc := NewPaymentUseCase(NewPostgresPaymentRepository(pool))
	ctx := context.Background()

	_, err := uc.GetHold(ctx, "missing")
	assert.ErrorIs(t, err, ErrHoldNotFound)

	_, err = uc.CaptureHold(ctx, "missing")
	assert.ErrorIs(t, err, ErrHoldNotFound)

	// retenção sem carteira
	_, err = uc.CreateHold(ctx, CreateHoldRequest{HoldID: "h-1", OrderID: "o-1", Customer: "bob@example.com", Amount: 1000, Currency: "eur"})
	require.NoError(t, err)
	_, err = uc.AuthorizeHold(ctx, "h-1")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestApplyMigrations_RunsEachFileOnce(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	// newTestPool já aplicou; a segunda execução não pode repetir nenhum arquivo
	require.NoError(t, applyMigrations(ctx, pool))

	var applied int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM schema_migrations
		WHERE name IN ('001_create_wallets_and_holds.sql', '002_create_dtm_barrier.sql')
	`).Scan(&applied)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
}
