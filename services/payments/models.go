package main

import (
	"context"
	"errors"
	"time"
)

// HoldStatus é o estado de uma retenção de pagamento
type HoldStatus string

const (
	HoldPending    HoldStatus = "pending"
	HoldAuthorized HoldStatus = "authorized"
	HoldCaptured   HoldStatus = "captured"
	HoldCanceled   HoldStatus = "canceled"
)

// Hold representa um valor reservado na carteira do cliente até ser capturado ou cancelado
type Hold struct {
	HoldID    string     `json:"hold_id"`
	OrderID   string     `json:"order_id"`
	Customer  string     `json:"customer"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	Status    HoldStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Wallet representa a carteira de um cliente
type Wallet struct {
	Customer        string    `json:"customer"`
	CurrentAmount   int64     `json:"current_amount"`
	AvailableAmount int64     `json:"available_amount"` // saldo não reservado
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateHoldRequest é o payload de criação de retenção (API e ação SAGA)
type CreateHoldRequest struct {
	HoldID   string `json:"hold_id" binding:"required"`
	OrderID  string `json:"order_id" binding:"required"`
	Customer string `json:"customer" binding:"required,email"`
	Amount   int64  `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	TraceID  string `json:"trace_id,omitempty"`
	SpanID   string `json:"span_id,omitempty"`
}

// TopUpRequest credita saldo na carteira
type TopUpRequest struct {
	Customer string `json:"customer" binding:"required,email"`
	Amount   int64  `json:"amount" binding:"required"`
}

// PaymentRepository define as operações de persistência de pagamentos
type PaymentRepository interface {
	// Gerenciamento de transação
	BeginTx(ctx context.Context) (Tx, error)

	// CreateHold insere a retenção; false quando o hold_id já existia
	CreateHold(ctx context.Context, hold *Hold) (bool, error)
	GetHold(ctx context.Context, holdID string) (*Hold, error)

	// Lock pessimista
	GetHoldForUpdate(ctx context.Context, tx Tx, holdID string) (*Hold, error)
	GetWalletForUpdate(ctx context.Context, tx Tx, customer string) (*Wallet, error)

	UpdateHoldStatus(ctx context.Context, tx Tx, holdID string, status HoldStatus) error
	// AdjustWallet soma os deltas aos saldos atual e disponível
	AdjustWallet(ctx context.Context, tx Tx, customer string, currentDelta, availableDelta int64) error

	TopUpWallet(ctx context.Context, customer string, amount int64) (*Wallet, error)
}

// Tx representa uma transação de banco de dados
type Tx interface {
	Commit() error
	Rollback() error
}

// Erros customizados
var (
	ErrHoldNotFound   = errors.New("hold not found")
	ErrWalletNotFound = errors.New("wallet not found")

	ErrInvalidAmount       = &PaymentError{Message: "amount must be greater than 0"}
	ErrInsufficientBalance = &PaymentError{Message: "insufficient balance"}
	ErrHoldMismatch        = &PaymentError{Message: "hold already exists with different details"}
	ErrHoldNotAuthorized   = &PaymentError{Message: "hold is not authorized"}
	ErrHoldCaptured        = &PaymentError{Message: "hold already captured"}
	ErrHoldCanceled        = &PaymentError{Message: "hold already canceled"}
)

type PaymentError struct {
	Message string
}

func (e *PaymentError) Error() string {
	return e.Message
}
