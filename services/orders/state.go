package main

import (
	"fmt"
	"time"
)

// As transições recebem um snapshot e devolvem o próximo; o receptor nunca é alterado.
// Persistir o resultado fica a cargo de quem chama (ver OrderRepository.Save).

// AuthorizeFunds coloca na fila de reconciliação o pedido cuja retenção foi confirmada.
// Em um pedido que já aguarda verificação não faz nada.
func (o Order) AuthorizeFunds(now time.Time) (Order, error) {
	switch o.LifecycleState {
	case LifecycleAwaitingFunds:
	case LifecycleAwaitingVerification:
		return o, nil
	default:
		return o, fmt.Errorf("%w: cannot confirm funds for order in %s", ErrInvalidState, o.LifecycleState)
	}

	next := o
	next.PaymentState = PaymentAuthorized
	next.LifecycleState = LifecycleAwaitingVerification
	next.UpdatedAt = now
	return next, nil
}

// BeginVerification reserva o pedido para uma tentativa de reconciliação.
// Um pedido Verifying só é retomado depois de staleAfter em andamento.
func (o Order) BeginVerification(now time.Time, staleAfter time.Duration) (Order, error) {
	switch o.LifecycleState {
	case LifecycleAwaitingVerification:
	case LifecycleVerifying:
		if now.Sub(o.UpdatedAt) < staleAfter {
			return o, ErrVerificationInFlight
		}
	default:
		return o, fmt.Errorf("%w: cannot verify order in %s", ErrInvalidState, o.LifecycleState)
	}

	if o.PaymentState != PaymentAuthorized {
		return o, fmt.Errorf("%w: payment is %s, expected %s", ErrInvalidState, o.PaymentState, PaymentAuthorized)
	}

	next := o
	next.LifecycleState = LifecycleVerifying
	next.UpdatedAt = now
	return next, nil
}

// IsStaleVerification indica se um pedido Verifying ficou para trás por uma tentativa interrompida
func (o Order) IsStaleVerification(now time.Time, staleAfter time.Duration) bool {
	return o.LifecycleState == LifecycleVerifying && now.Sub(o.UpdatedAt) >= staleAfter
}

// CompleteVerification grava o resultado da verificação.
// paymentState é o estado da retenção confirmado pelo processador; se a liquidação falhou ele
// continua Authorized e settlementErr fica no pedido para reconciliação manual.
func (o Order) CompleteVerification(result VerificationResult, paymentState PaymentState, settlementErr error, now time.Time) (Order, error) {
	if o.LifecycleState != LifecycleVerifying {
		return o, fmt.Errorf("%w: cannot complete verification for order in %s", ErrInvalidState, o.LifecycleState)
	}
	if o.VerificationResult != nil {
		return o, fmt.Errorf("%w: verification result already recorded", ErrInvalidState)
	}

	next := o
	recorded := result
	next.VerificationResult = &recorded
	next.PaymentState = paymentState
	next.SettlementError = ""
	if settlementErr != nil {
		next.SettlementError = settlementErr.Error()
	}
	if result.Fulfilled {
		next.LifecycleState = LifecycleFulfilled
	} else {
		next.LifecycleState = LifecycleNotFulfilled
	}
	next.UpdatedAt = now
	return next, nil
}

// RevertVerification libera o pedido após uma falha transitória para a próxima passada tentar de novo
func (o Order) RevertVerification(now time.Time) (Order, error) {
	if o.LifecycleState != LifecycleVerifying {
		return o, fmt.Errorf("%w: cannot revert order in %s", ErrInvalidState, o.LifecycleState)
	}

	next := o
	next.LifecycleState = LifecycleAwaitingVerification
	next.VerificationResult = nil
	next.UpdatedAt = now
	return next, nil
}
