package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/dtm-labs/client/dtmcli"
)

// SagaParticipant executa as ações SAGA de retenção protegidas pela barreira do DTM
type SagaParticipant interface {
	CreateHold(qs url.Values, req CreateHoldRequest) error
	VoidHold(qs url.Values, req CreateHoldRequest) error
}

// BarrierHoldParticipant roda cada ação dentro da transação da barreira (database/sql + lib/pq);
// o DTM filtra chamadas duplicadas, fora de ordem e compensações vazias.
type BarrierHoldParticipant struct {
	db *sql.DB
}

// NewBarrierHoldParticipant cria o participante SAGA
func NewBarrierHoldParticipant(db *sql.DB) *BarrierHoldParticipant {
	return &BarrierHoldParticipant{db: db}
}

// CreateHold é a ação da SAGA: grava a retenção pendente
func (p *BarrierHoldParticipant) CreateHold(qs url.Values, req CreateHoldRequest) error {
	if req.Amount <= 0 {
		return fmt.Errorf("%w: %s", dtmcli.ErrFailure, ErrInvalidAmount.Message)
	}

	barrier, err := dtmcli.BarrierFromQuery(qs)
	if err != nil {
		return fmt.Errorf("invalid barrier query: %w", err)
	}

	return barrier.CallWithDB(p.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO holds (hold_id, order_id, customer, amount, currency, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			ON CONFLICT (hold_id) DO NOTHING
		`, req.HoldID, req.OrderID, strings.ToLower(req.Customer), req.Amount, strings.ToLower(req.Currency), string(HoldPending))
		if err != nil {
			return fmt.Errorf("failed to create hold: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var orderID string
			if err := tx.QueryRow(`SELECT order_id FROM holds WHERE hold_id = $1`, req.HoldID).Scan(&orderID); err != nil {
				return fmt.Errorf("failed to check hold: %w", err)
			}
			if orderID != req.OrderID {
				return fmt.Errorf("%w: %s", dtmcli.ErrFailure, ErrHoldMismatch.Message)
			}
		}

		log.Printf("✅ [SAGA CREATE HOLD] HoldID=%s | OrderID=%s | GID=%s", req.HoldID, req.OrderID, barrier.Gid)
		return nil
	})
}

// VoidHold é a compensação: cancela a retenção e devolve a reserva se já autorizada
func (p *BarrierHoldParticipant) VoidHold(qs url.Values, req CreateHoldRequest) error {
	barrier, err := dtmcli.BarrierFromQuery(qs)
	if err != nil {
		return fmt.Errorf("invalid barrier query: %w", err)
	}

	return barrier.CallWithDB(p.db, func(tx *sql.Tx) error {
		var (
			status   string
			customer string
			amount   int64
		)
		err := tx.QueryRow(`SELECT status, customer, amount FROM holds WHERE hold_id = $1 FOR UPDATE`, req.HoldID).
			Scan(&status, &customer, &amount)
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("ℹ️ [SAGA VOID HOLD] No hold found | HoldID=%s", req.HoldID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock hold: %w", err)
		}

		switch HoldStatus(status) {
		case HoldCanceled:
			return nil
		case HoldCaptured:
			// Compensation must not fail permanently; DTM keeps retrying until an operator steps in.
			log.Printf("🚨 [SAGA VOID HOLD] Hold already captured, manual refund required | HoldID=%s", req.HoldID)
			return ErrHoldCaptured
		case HoldAuthorized:
			if _, err := tx.Exec(`
				UPDATE wallets
				SET available_amount = available_amount + $1,
					updated_at = NOW()
				WHERE customer = $2
			`, amount, customer); err != nil {
				return fmt.Errorf("failed to release reservation: %w", err)
			}
		}

		if _, err := tx.Exec(`UPDATE holds SET status = $1, updated_at = NOW() WHERE hold_id = $2`, string(HoldCanceled), req.HoldID); err != nil {
			return fmt.Errorf("failed to void hold: %w", err)
		}

		log.Printf("🔄 [SAGA VOID HOLD] HoldID=%s | GID=%s", req.HoldID, barrier.Gid)
		return nil
	})
}
