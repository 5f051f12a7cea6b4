package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresPaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresPaymentRepository(pool *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

// PostgresTx implementa a interface Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// BeginTx inicia uma nova transação
func (r *PostgresPaymentRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PostgresTx{tx: tx}, nil
}

const holdColumns = `hold_id, order_id, customer, amount, currency, status, created_at, updated_at`

func (r *PostgresPaymentRepository) CreateHold(ctx context.Context, hold *Hold) (bool, error) {
	query := `
		INSERT INTO holds (hold_id, order_id, customer, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (hold_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query, hold.HoldID, hold.OrderID, hold.Customer, hold.Amount, hold.Currency, string(hold.Status))
	if err != nil {
		return false, fmt.Errorf("failed to create hold: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresPaymentRepository) GetHold(ctx context.Context, holdID string) (*Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE hold_id = $1`
	return scanHold(r.pool.QueryRow(ctx, query, holdID))
}

// GetHoldForUpdate obtém a retenção com lock pessimista (FOR UPDATE)
func (r *PostgresPaymentRepository) GetHoldForUpdate(ctx context.Context, tx Tx, holdID string) (*Hold, error) {
	pgTx := tx.(*PostgresTx).tx

	query := `SELECT ` + holdColumns + ` FROM holds WHERE hold_id = $1 FOR UPDATE`
	return scanHold(pgTx.QueryRow(ctx, query, holdID))
}

// GetWalletForUpdate obtém a carteira com lock pessimista (FOR UPDATE)
func (r *PostgresPaymentRepository) GetWalletForUpdate(ctx context.Context, tx Tx, customer string) (*Wallet, error) {
	pgTx := tx.(*PostgresTx).tx

	query := `
		SELECT customer, current_amount, available_amount, created_at, updated_at
		FROM wallets
		WHERE customer = $1
		FOR UPDATE
	`

	var wallet Wallet
	err := pgTx.QueryRow(ctx, query, customer).Scan(
		&wallet.Customer,
		&wallet.CurrentAmount,
		&wallet.AvailableAmount,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, customer)
		}
		return nil, fmt.Errorf("failed to get wallet for update: %w", err)
	}

	return &wallet, nil
}

func (r *PostgresPaymentRepository) UpdateHoldStatus(ctx context.Context, tx Tx, holdID string, status HoldStatus) error {
	pgTx := tx.(*PostgresTx).tx

	query := `
		UPDATE holds
		SET status = $1,
			updated_at = NOW()
		WHERE hold_id = $2
	`
	if _, err := pgTx.Exec(ctx, query, string(status), holdID); err != nil {
		return fmt.Errorf("failed to update hold status: %w", err)
	}
	return nil
}

func (r *PostgresPaymentRepository) AdjustWallet(ctx context.Context, tx Tx, customer string, currentDelta, availableDelta int64) error {
	pgTx := tx.(*PostgresTx).tx

	query := `
		UPDATE wallets
		SET current_amount = current_amount + $1,
			available_amount = available_amount + $2,
			updated_at = NOW()
		WHERE customer = $3
	`
	if _, err := pgTx.Exec(ctx, query, currentDelta, availableDelta, customer); err != nil {
		return fmt.Errorf("failed to adjust wallet: %w", err)
	}

	log.Printf("💰 Wallet adjusted | Customer=%s | Current=%+d | Available=%+d", customer, currentDelta, availableDelta)
	return nil
}

func (r *PostgresPaymentRepository) TopUpWallet(ctx context.Context, customer string, amount int64) (*Wallet, error) {
	query := `
		INSERT INTO wallets (customer, current_amount, available_amount, created_at, updated_at)
		VALUES ($1, $2, $2, NOW(), NOW())
		ON CONFLICT (customer) DO UPDATE
		SET current_amount = wallets.current_amount + EXCLUDED.current_amount,
			available_amount = wallets.available_amount + EXCLUDED.available_amount,
			updated_at = NOW()
		RETURNING customer, current_amount, available_amount, created_at, updated_at
	`
	var wallet Wallet
	err := r.pool.QueryRow(ctx, query, customer, amount).Scan(
		&wallet.Customer,
		&wallet.CurrentAmount,
		&wallet.AvailableAmount,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to top up wallet: %w", err)
	}
	return &wallet, nil
}

func scanHold(row pgx.Row) (*Hold, error) {
	var (
		hold   Hold
		status string
	)
	err := row.Scan(
		&hold.HoldID,
		&hold.OrderID,
		&hold.Customer,
		&hold.Amount,
		&hold.Currency,
		&status,
		&hold.CreatedAt,
		&hold.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	hold.Status = HoldStatus(status)
	return &hold, nil
}
