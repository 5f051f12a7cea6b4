package main

import (
	"context"
	"log"
	"strings"
)

// PaymentUseCase encapsula a lógica de negócio de pagamentos
type PaymentUseCase struct {
	repository PaymentRepository
}

// NewPaymentUseCase cria uma nova instância do caso de uso
func NewPaymentUseCase(repository PaymentRepository) *PaymentUseCase {
	return &PaymentUseCase{
		repository: repository,
	}
}

// CreateHold registra uma retenção pendente. Repetir com o mesmo hold_id devolve a retenção existente.
func (uc *PaymentUseCase) CreateHold(ctx context.Context, req CreateHoldRequest) (*Hold, error) {
	log.Printf("💳 [HOLD] Create: HoldID=%s, OrderID=%s, Amount=%d %s", req.HoldID, req.OrderID, req.Amount, req.Currency)

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	hold := &Hold{
		HoldID:   req.HoldID,
		OrderID:  req.OrderID,
		Customer: strings.ToLower(req.Customer),
		Amount:   req.Amount,
		Currency: strings.ToLower(req.Currency),
		Status:   HoldPending,
	}
	created, err := uc.repository.CreateHold(ctx, hold)
	if err != nil {
		return nil, err
	}
	if created {
		return uc.repository.GetHold(ctx, hold.HoldID)
	}

	// Verifica idempotência
	existing, err := uc.repository.GetHold(ctx, hold.HoldID)
	if err != nil {
		return nil, err
	}
	if existing.OrderID != hold.OrderID || existing.Amount != hold.Amount || existing.Customer != hold.Customer {
		log.Printf("❌ [HOLD] HoldID=%s reused for a different order", hold.HoldID)
		return nil, ErrHoldMismatch
	}
	log.Printf("ℹ️ [HOLD] HoldID=%s already exists (%s)", hold.HoldID, existing.Status)
	return existing, nil
}

// GetHold busca uma retenção
func (uc *PaymentUseCase) GetHold(ctx context.Context, holdID string) (*Hold, error) {
	return uc.repository.GetHold(ctx, holdID)
}

// AuthorizeHold reserva o valor na carteira (o cliente confirmou o pagamento)
func (uc *PaymentUseCase) AuthorizeHold(ctx context.Context, holdID string) (*Hold, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	hold, err := uc.repository.GetHoldForUpdate(ctx, tx, holdID)
	if err != nil {
		return nil, err
	}

	switch hold.Status {
	case HoldAuthorized:
		log.Printf("ℹ️ [AUTHORIZE] Hold already authorized | HoldID=%s", holdID)
		return hold, nil
	case HoldCaptured:
		return nil, ErrHoldCaptured
	case HoldCanceled:
		return nil, ErrHoldCanceled
	}

	wallet, err := uc.repository.GetWalletForUpdate(ctx, tx, hold.Customer)
	if err != nil {
		log.Printf("❌ [AUTHORIZE] GetWalletForUpdate | HoldID=%s | Error=%v", holdID, err)
		return nil, err
	}
	if wallet.AvailableAmount < hold.Amount {
		log.Printf("❌ [AUTHORIZE] Insufficient balance for %s: available=%d, required=%d", hold.Customer, wallet.AvailableAmount, hold.Amount)
		return nil, ErrInsufficientBalance
	}

	if err := uc.repository.AdjustWallet(ctx, tx, hold.Customer, 0, -hold.Amount); err != nil {
		return nil, err
	}
	if err := uc.repository.UpdateHoldStatus(ctx, tx, holdID, HoldAuthorized); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	hold.Status = HoldAuthorized
	log.Printf("✅ [AUTHORIZE] Reserved %d for %s | HoldID=%s", hold.Amount, hold.Customer, holdID)
	return hold, nil
}

// CaptureHold debita o valor reservado. Capturar de novo não faz nada.
func (uc *PaymentUseCase) CaptureHold(ctx context.Context, holdID string) (*Hold, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	hold, err := uc.repository.GetHoldForUpdate(ctx, tx, holdID)
	if err != nil {
		return nil, err
	}

	switch hold.Status {
	case HoldCaptured:
		log.Printf("ℹ️ [CAPTURE] Hold already captured | HoldID=%s", holdID)
		return hold, nil
	case HoldCanceled:
		log.Printf("❌ [CAPTURE] Cannot capture canceled hold | HoldID=%s", holdID)
		return nil, ErrHoldCanceled
	case HoldPending:
		return nil, ErrHoldNotAuthorized
	}

	if _, err := uc.repository.GetWalletForUpdate(ctx, tx, hold.Customer); err != nil {
		return nil, err
	}
	if err := uc.repository.AdjustWallet(ctx, tx, hold.Customer, -hold.Amount, 0); err != nil {
		return nil, err
	}
	if err := uc.repository.UpdateHoldStatus(ctx, tx, holdID, HoldCaptured); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	hold.Status = HoldCaptured
	log.Printf("✅ [CAPTURE] Debited %d from %s | HoldID=%s", hold.Amount, hold.Customer, holdID)
	return hold, nil
}

// CancelHold libera a reserva. Cancelar de novo não faz nada; uma retenção capturada não pode ser cancelada.
func (uc *PaymentUseCase) CancelHold(ctx context.Context, holdID string) (*Hold, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	hold, err := uc.repository.GetHoldForUpdate(ctx, tx, holdID)
	if err != nil {
		return nil, err
	}

	switch hold.Status {
	case HoldCanceled:
		log.Printf("ℹ️ [CANCEL] Hold already canceled | HoldID=%s", holdID)
		return hold, nil
	case HoldCaptured:
		log.Printf("❌ [CANCEL] Cannot cancel captured hold | HoldID=%s", holdID)
		return nil, ErrHoldCaptured
	case HoldAuthorized:
		if _, err := uc.repository.GetWalletForUpdate(ctx, tx, hold.Customer); err != nil {
			return nil, err
		}
		if err := uc.repository.AdjustWallet(ctx, tx, hold.Customer, 0, hold.Amount); err != nil {
			return nil, err
		}
	}

	if err := uc.repository.UpdateHoldStatus(ctx, tx, holdID, HoldCanceled); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	hold.Status = HoldCanceled
	log.Printf("✅ [CANCEL] Released hold | HoldID=%s", holdID)
	return hold, nil
}

// TopUpWallet credita saldo na carteira, criando-a se preciso
func (uc *PaymentUseCase) TopUpWallet(ctx context.Context, req TopUpRequest) (*Wallet, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return uc.repository.TopUpWallet(ctx, strings.ToLower(req.Customer), req.Amount)
}
