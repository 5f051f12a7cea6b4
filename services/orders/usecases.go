package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IntakeConfig são os limites e padrões da criação de pedidos
type IntakeConfig struct {
	ForecastHorizon   time.Duration
	DefaultAmount     int64
	DefaultCurrency   string
	DefaultConditions RequiredConditions
}

// CreateOrderInput representa os dados de um novo pedido
type CreateOrderInput struct {
	Contact    string
	TargetDate time.Time
	Location   Location
	Amount     int64
	Conditions *RequiredConditions
}

// OrderUseCase contém a lógica de negócio dos pedidos fora da reconciliação
type OrderUseCase struct {
	repository OrderRepository
	intake     IntakeOrchestrator
	settlement Settlement
	clock      Clock
	cfg        IntakeConfig
}

// NewOrderUseCase cria uma nova instância de OrderUseCase
func NewOrderUseCase(
	repository OrderRepository,
	intake IntakeOrchestrator,
	settlement Settlement,
	clock Clock,
	cfg IntakeConfig,
) *OrderUseCase {
	return &OrderUseCase{
		repository: repository,
		intake:     intake,
		settlement: settlement,
		clock:      clock,
		cfg:        cfg,
	}
}

// CreateOrder valida o pedido, cria a retenção do pagamento e registra o pedido
func (uc *OrderUseCase) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	now := uc.clock.Now()

	target := in.TargetDate.UTC()
	if !target.After(now) || target.After(now.Add(uc.cfg.ForecastHorizon)) {
		return Order{}, ErrInvalidTargetDate
	}

	amount := in.Amount
	if amount == 0 {
		amount = uc.cfg.DefaultAmount
	}
	if amount <= 0 {
		return Order{}, ErrInvalidAmount
	}

	conditions := uc.cfg.DefaultConditions
	if in.Conditions != nil {
		conditions = *in.Conditions
	}

	order := NewOrder(
		uuid.New().String(),
		uuid.New().String(),
		strings.ToLower(strings.TrimSpace(in.Contact)),
		target,
		in.Location,
		amount,
		uc.cfg.DefaultCurrency,
		conditions,
		now,
	)

	log.Printf("📦 Registering order | OrderID=%s | HoldID=%s | Date=%s | City=%s | Amount=%d",
		order.ID, order.PaymentHoldID, order.TargetDate.Format(time.RFC3339), order.Location.Name, order.Amount)

	if err := uc.intake.Submit(ctx, order); err != nil {
		log.Printf("❌ Order intake failed | OrderID=%s | Error=%v", order.ID, err)
		return Order{}, fmt.Errorf("failed to register order: %w", err)
	}

	log.Printf("✅ Order registered | OrderID=%s", order.ID)
	return order, nil
}

// RecordOrder é a ação SAGA que grava o pedido já com a retenção criada
func (uc *OrderUseCase) RecordOrder(ctx context.Context, req IntakeActionRequest) error {
	order := req.toOrder()
	if err := uc.repository.Create(ctx, order); err != nil {
		log.Printf("❌ [SAGA CREATE ORDER] OrderID=%s | Error=%v", req.OrderID, err)
		return err
	}

	log.Printf("✅ [SAGA CREATE ORDER] Order stored | OrderID=%s", req.OrderID)
	return nil
}

// GetOrder busca um pedido pelo ID
func (uc *OrderUseCase) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return uc.repository.Get(ctx, orderID)
}

// ListOrders lista os pedidos de um email
func (uc *OrderUseCase) ListOrders(ctx context.Context, contact string) ([]Order, error) {
	return uc.repository.ListByContact(ctx, strings.ToLower(strings.TrimSpace(contact)))
}

// ConfirmPayment move o pedido para AwaitingVerification quando o processador informa a retenção
// como autorizada. Junto com ErrPaymentNotReady devolve o estado atual da retenção.
func (uc *OrderUseCase) ConfirmPayment(ctx context.Context, orderID string) (Order, PaymentState, error) {
	order, err := uc.repository.Get(ctx, orderID)
	if err != nil {
		return Order{}, "", err
	}

	switch order.LifecycleState {
	case LifecycleAwaitingFunds:
	case LifecycleAwaitingVerification:
		return order, order.PaymentState, nil
	default:
		return order, order.PaymentState, fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.ID, order.LifecycleState)
	}

	status, err := uc.settlement.GetHoldStatus(ctx, order.PaymentHoldID)
	if err != nil {
		return order, "", fmt.Errorf("failed to get payment status: %w", err)
	}
	if status != PaymentAuthorized {
		return order, status, ErrPaymentNotReady
	}

	next, err := order.AuthorizeFunds(uc.clock.Now())
	if err != nil {
		return order, status, err
	}
	saved, err := uc.repository.Save(ctx, next)
	if errors.Is(err, ErrConflict) {
		// A concurrent confirm won; return whatever it stored.
		current, getErr := uc.repository.Get(ctx, orderID)
		if getErr != nil {
			return order, status, getErr
		}
		return current, status, nil
	}
	if err != nil {
		return order, status, err
	}

	log.Printf("✅ Payment confirmed, waiting for weather verification | OrderID=%s", saved.ID)
	return saved, status, nil
}
