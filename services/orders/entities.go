package main

import (
	"errors"
	"time"
)

// LifecycleState é o estado de reconciliação do pedido
type LifecycleState string

const (
	LifecycleAwaitingFunds        LifecycleState = "awaiting_funds"
	LifecycleAwaitingVerification LifecycleState = "awaiting_verification"
	LifecycleVerifying            LifecycleState = "verifying"
	LifecycleFulfilled            LifecycleState = "fulfilled"
	LifecycleNotFulfilled         LifecycleState = "not_fulfilled"
)

// Terminal indica se o estado não aceita mais transições
func (s LifecycleState) Terminal() bool {
	return s == LifecycleFulfilled || s == LifecycleNotFulfilled
}

// PaymentState espelha o estado da retenção informado pelo serviço de pagamentos
type PaymentState string

const (
	PaymentPending    PaymentState = "pending"
	PaymentAuthorized PaymentState = "authorized"
	PaymentCaptured   PaymentState = "captured"
	PaymentCanceled   PaymentState = "canceled"
)

// Location representa o local do pedido
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// RequiredConditions são as condições de tempo que precisam ser atendidas
type RequiredConditions struct {
	MinimumTemperatureCelsius float64 `json:"minimum_temperature_celsius"`
	RainDisallowed            bool    `json:"rain_disallowed"`
}

// VerificationResult é gravado uma única vez, ao concluir a verificação
type VerificationResult struct {
	ObservedTemperature float64   `json:"observed_temperature"`
	RainObserved        bool      `json:"rain_observed"`
	CheckedAt           time.Time `json:"checked_at"`
	Fulfilled           bool      `json:"fulfilled"`
}

// Order representa um pedido com garantia de tempo
type Order struct {
	ID                 string              `json:"id"`
	ContactReference   string              `json:"email"`
	TargetDate         time.Time           `json:"target_date"`
	Location           Location            `json:"location"`
	Amount             int64               `json:"amount"`
	Currency           string              `json:"currency"`
	RequiredConditions RequiredConditions  `json:"required_conditions"`
	PaymentHoldID      string              `json:"payment_hold_id"`
	PaymentState       PaymentState        `json:"payment_state"`
	LifecycleState     LifecycleState      `json:"lifecycle_state"`
	VerificationResult *VerificationResult `json:"verification_result,omitempty"`
	// SettlementError holds the processor error when capture/cancel failed after a decision.
	SettlementError string    `json:"settlement_error,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewOrder cria um pedido aguardando a confirmação do pagamento
func NewOrder(id, holdID, contact string, targetDate time.Time, location Location, amount int64, currency string, conditions RequiredConditions, now time.Time) Order {
	return Order{
		ID:                 id,
		ContactReference:   contact,
		TargetDate:         targetDate.UTC(),
		Location:           location,
		Amount:             amount,
		Currency:           currency,
		RequiredConditions: conditions,
		PaymentHoldID:      holdID,
		PaymentState:       PaymentPending,
		LifecycleState:     LifecycleAwaitingFunds,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Erros do domínio de pedidos
var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidState         = errors.New("invalid order state")
	ErrVerificationInFlight = errors.New("verification already in flight")
	ErrConflict             = errors.New("order was modified concurrently")
	ErrForecastUnavailable  = errors.New("forecast unavailable")
	ErrPaymentNotReady      = errors.New("payment not ready for confirmation")
	ErrInvalidTargetDate    = &OrderError{Message: "order date must be in the future and within the forecast horizon"}
	ErrInvalidAmount        = &OrderError{Message: "amount must be greater than 0"}
)

type OrderError struct {
	Message string
}

func (e *OrderError) Error() string {
	return e.Message
}
