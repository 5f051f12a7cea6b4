package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository define a interface para operações de banco de dados de pedidos
type OrderRepository interface {
	// Create insere o pedido; repetir com o mesmo ID não faz nada (idempotência)
	Create(ctx context.Context, order Order) error

	// Get busca um pedido pelo ID
	Get(ctx context.Context, orderID string) (Order, error)

	// FindDue returns authorized orders in one of states whose target date lies in [from, to].
	FindDue(ctx context.Context, states []LifecycleState, from, to time.Time) ([]Order, error)

	// Save writes the snapshot only if the stored version still equals order.Version.
	Save(ctx context.Context, order Order) (Order, error)

	// ListByContact lista os pedidos de um cliente, mais recentes primeiro
	ListByContact(ctx context.Context, contact string) ([]Order, error)
}

// PostgresOrderRepository implementa OrderRepository usando PostgreSQL
type PostgresOrderRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOrderRepository cria uma nova instância de PostgresOrderRepository
func NewPostgresOrderRepository(pool *pgxpool.Pool) *PostgresOrderRepository {
	return &PostgresOrderRepository{pool: pool}
}

const orderColumns = `
	id, contact_reference, target_date, location_name, latitude, longitude,
	amount, currency, min_temperature_c, rain_disallowed, payment_hold_id,
	payment_state, lifecycle_state, observed_temperature_c, rain_observed,
	checked_at, fulfilled, settlement_error, version, created_at, updated_at`

func (r *PostgresOrderRepository) Create(ctx context.Context, order Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO NOTHING
	`
	observed, rain, checkedAt, fulfilled := verificationColumns(order.VerificationResult)
	_, err := r.pool.Exec(ctx, query,
		order.ID,
		order.ContactReference,
		order.TargetDate,
		order.Location.Name,
		order.Location.Latitude,
		order.Location.Longitude,
		order.Amount,
		order.Currency,
		order.RequiredConditions.MinimumTemperatureCelsius,
		order.RequiredConditions.RainDisallowed,
		order.PaymentHoldID,
		string(order.PaymentState),
		string(order.LifecycleState),
		observed,
		rain,
		checkedAt,
		fulfilled,
		order.SettlementError,
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) Get(ctx context.Context, orderID string) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (r *PostgresOrderRepository) FindDue(ctx context.Context, states []LifecycleState, from, to time.Time) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE lifecycle_state = ANY($1)
		  AND payment_state = $2
		  AND target_date BETWEEN $3 AND $4
		ORDER BY target_date
	`
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, string(s))
	}

	rows, err := r.pool.Query(ctx, query, names, string(PaymentAuthorized), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query due orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *PostgresOrderRepository) Save(ctx context.Context, order Order) (Order, error) {
	query := `
		UPDATE orders
		SET payment_state = $3,
		    lifecycle_state = $4,
		    observed_temperature_c = $5,
		    rain_observed = $6,
		    checked_at = $7,
		    fulfilled = $8,
		    settlement_error = $9,
		    updated_at = $10,
		    version = version + 1
		WHERE id = $1 AND version = $2
	`
	observed, rain, checkedAt, fulfilled := verificationColumns(order.VerificationResult)
	tag, err := r.pool.Exec(ctx, query,
		order.ID,
		order.Version,
		string(order.PaymentState),
		string(order.LifecycleState),
		observed,
		rain,
		checkedAt,
		fulfilled,
		order.SettlementError,
		order.UpdatedAt,
	)
	if err != nil {
		return Order{}, fmt.Errorf("failed to save order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return Order{}, fmt.Errorf("failed to check order: %w", err)
		}
		if !exists {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, ErrConflict
	}

	order.Version++
	return order, nil
}

func (r *PostgresOrderRepository) ListByContact(ctx context.Context, contact string) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE contact_reference = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, contact)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		order          Order
		paymentState   string
		lifecycleState string
		observed       *float64
		rain           *bool
		checkedAt      *time.Time
		fulfilled      *bool
	)
	err := row.Scan(
		&order.ID,
		&order.ContactReference,
		&order.TargetDate,
		&order.Location.Name,
		&order.Location.Latitude,
		&order.Location.Longitude,
		&order.Amount,
		&order.Currency,
		&order.RequiredConditions.MinimumTemperatureCelsius,
		&order.RequiredConditions.RainDisallowed,
		&order.PaymentHoldID,
		&paymentState,
		&lifecycleState,
		&observed,
		&rain,
		&checkedAt,
		&fulfilled,
		&order.SettlementError,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}

	order.PaymentState = PaymentState(paymentState)
	order.LifecycleState = LifecycleState(lifecycleState)
	if checkedAt != nil && observed != nil && rain != nil && fulfilled != nil {
		order.VerificationResult = &VerificationResult{
			ObservedTemperature: *observed,
			RainObserved:        *rain,
			CheckedAt:           checkedAt.UTC(),
			Fulfilled:           *fulfilled,
		}
	}
	order.TargetDate = order.TargetDate.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func verificationColumns(v *VerificationResult) (*float64, *bool, *time.Time, *bool) {
	if v == nil {
		return nil, nil, nil, nil
	}
	observed, rain, checkedAt, fulfilled := v.ObservedTemperature, v.RainObserved, v.CheckedAt, v.Fulfilled
	return &observed, &rain, &checkedAt, &fulfilled
}
