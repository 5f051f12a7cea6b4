package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ReconcilerConfig controla a janela, o paralelismo e os timeouts da reconciliação
type ReconcilerConfig struct {
	// EligibilityWindow limita até quando uma data alvo passada ainda é verificada
	EligibilityWindow time.Duration
	// StaleAfter é quanto tempo um pedido fica Verifying antes de outra tentativa poder retomá-lo
	StaleAfter time.Duration
	// Workers limita quantos pedidos são processados em paralelo numa passada
	Workers int
	// CallTimeout limita cada chamada à previsão, aos pagamentos e ao banco
	CallTimeout time.Duration
}

// PassSummary resume uma execução da reconciliação
type PassSummary struct {
	Processed            int `json:"processed"`
	Fulfilled            int `json:"fulfilled"`
	NotFulfilled         int `json:"not_fulfilled"`
	Retried              int `json:"retried"`
	Errors               int `json:"errors"`
	Skipped              int `json:"skipped"`
	SettlementMismatches int `json:"settlement_mismatches"`
}

type outcome string

const (
	outcomeFulfilled    outcome = "fulfilled"
	outcomeNotFulfilled outcome = "not_fulfilled"
	outcomeRetried      outcome = "retried"
	outcomeSkipped      outcome = "skipped"
	outcomeError        outcome = "error"
)

type orderResult struct {
	order    Order
	outcome  outcome
	mismatch bool
	err      error
}

func (s *PassSummary) add(res orderResult) {
	s.Processed++
	switch res.outcome {
	case outcomeFulfilled:
		s.Fulfilled++
	case outcomeNotFulfilled:
		s.NotFulfilled++
	case outcomeRetried:
		s.Retried++
	case outcomeSkipped:
		s.Skipped++
	case outcomeError:
		s.Errors++
	}
	if res.mismatch {
		s.SettlementMismatches++
	}
}

var dueStates = []LifecycleState{LifecycleAwaitingVerification, LifecycleVerifying}

// Reconciler decide, para cada pedido vencido, se as condições foram atendidas e liquida o pagamento
type Reconciler struct {
	repo       OrderRepository
	forecast   ForecastProvider
	settlement Settlement
	alerter    Alerter
	clock      Clock
	cfg        ReconcilerConfig
	metrics    *reconcileMetrics
	tracer     trace.Tracer
}

// NewReconciler cria uma nova instância de Reconciler
func NewReconciler(
	repo OrderRepository,
	forecast ForecastProvider,
	settlement Settlement,
	alerter Alerter,
	clock Clock,
	cfg ReconcilerConfig,
) *Reconciler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.EligibilityWindow <= 0 {
		cfg.EligibilityWindow = 24 * time.Hour
	}
	// Com StaleAfter zero todo Verifying pareceria abandonado
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	return &Reconciler{
		repo:       repo,
		forecast:   forecast,
		settlement: settlement,
		alerter:    alerter,
		clock:      clock,
		cfg:        cfg,
		metrics:    newReconcileMetrics(otel.Meter("orders-service")),
		tracer:     otel.Tracer("orders-service"),
	}
}

// RunPass processa cada pedido vencido uma vez. Só uma falha na consulta ao banco aborta a passada.
// Com ctx cancelado nenhum pedido novo começa; os que já começaram vão até o fim.
func (r *Reconciler) RunPass(ctx context.Context) (PassSummary, error) {
	ctx, span := r.tracer.Start(ctx, "reconciliation.pass")
	defer span.End()

	started := time.Now()
	now := r.clock.Now()

	queryCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	orders, err := r.repo.FindDue(queryCtx, dueStates, now.Add(-r.cfg.EligibilityWindow), now)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "due orders query failed")
		log.Printf("❌ [PASS] Failed to query due orders: %v", err)
		r.metrics.recordPass(ctx, PassSummary{}, msSince(started), err)
		return PassSummary{}, fmt.Errorf("failed to query due orders: %w", err)
	}

	log.Printf("🔎 [PASS] Found %d orders to check", len(orders))

	var (
		mu      sync.Mutex
		summary PassSummary
	)
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)

	workCtx := context.WithoutCancel(ctx)
	for i, order := range orders {
		if ctx.Err() != nil {
			log.Printf("ℹ️ [PASS] Stopping dispatch, %d orders left for the next pass", len(orders)-i)
			break
		}
		g.Go(func() error {
			res := r.safeReconcile(workCtx, order)
			mu.Lock()
			summary.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("reconciliation.processed", summary.Processed),
		attribute.Int("reconciliation.fulfilled", summary.Fulfilled),
		attribute.Int("reconciliation.not_fulfilled", summary.NotFulfilled),
		attribute.Int("reconciliation.retried", summary.Retried),
		attribute.Int("reconciliation.errors", summary.Errors),
	)
	r.metrics.recordPass(ctx, summary, msSince(started), nil)

	log.Printf("✅ [PASS] Done | Processed=%d | Fulfilled=%d | NotFulfilled=%d | Retried=%d | Errors=%d | Skipped=%d | Mismatches=%d",
		summary.Processed, summary.Fulfilled, summary.NotFulfilled, summary.Retried, summary.Errors, summary.Skipped, summary.SettlementMismatches)
	return summary, nil
}

// ReconcileOrder verifica um único pedido fora do agendamento
func (r *Reconciler) ReconcileOrder(ctx context.Context, orderID string) (Order, error) {
	order, err := r.get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	if order.LifecycleState != LifecycleAwaitingVerification && order.LifecycleState != LifecycleVerifying {
		return order, fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.ID, order.LifecycleState)
	}

	log.Printf("🖐️ [RECONCILE] Manual trigger | OrderID=%s", order.ID)
	res := r.safeReconcile(context.WithoutCancel(ctx), order)
	if res.outcome == outcomeError {
		return res.order, res.err
	}
	return res.order, nil
}

func (r *Reconciler) safeReconcile(ctx context.Context, order Order) (res orderResult) {
	ctx, span := r.tracer.Start(ctx, "reconciliation.order",
		trace.WithAttributes(attribute.String("order_id", order.ID)))
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("🚨 [RECONCILE] PANIC RECOVERED | OrderID=%s | %v", order.ID, rec)
			res = orderResult{order: order, outcome: outcomeError, err: fmt.Errorf("panic: %v", rec)}
		}
		if res.err != nil {
			span.RecordError(res.err)
		}
		if res.outcome == outcomeError {
			span.SetStatus(codes.Error, string(res.outcome))
		}
		span.SetAttributes(attribute.String("reconciliation.outcome", string(res.outcome)))
		span.End()
		r.metrics.recordOutcome(ctx, string(res.outcome))
	}()

	return r.reconcile(ctx, order)
}

func (r *Reconciler) reconcile(ctx context.Context, order Order) orderResult {
	now := r.clock.Now()
	stale := order.IsStaleVerification(now, r.cfg.StaleAfter)

	claim, err := order.BeginVerification(now, r.cfg.StaleAfter)
	if errors.Is(err, ErrVerificationInFlight) {
		log.Printf("ℹ️ [RECONCILE] Verification already in flight | OrderID=%s", order.ID)
		return orderResult{order: order, outcome: outcomeSkipped}
	}
	if err != nil {
		log.Printf("❌ [RECONCILE] Cannot verify | OrderID=%s | Error=%v", order.ID, err)
		return orderResult{order: order, outcome: outcomeError, err: err}
	}

	claimed, err := r.save(ctx, claim)
	if errors.Is(err, ErrConflict) {
		log.Printf("ℹ️ [RECONCILE] Order claimed by another worker | OrderID=%s", order.ID)
		if latest, getErr := r.get(ctx, order.ID); getErr == nil {
			order = latest
		}
		return orderResult{order: order, outcome: outcomeSkipped}
	}
	if err != nil {
		log.Printf("❌ [RECONCILE] Failed to claim order | OrderID=%s | Error=%v", order.ID, err)
		return orderResult{order: order, outcome: outcomeError, err: err}
	}
	if stale {
		log.Printf("♻️  [RECONCILE] Taking over stale verification | OrderID=%s", order.ID)
	}

	// 1. Previsão mais próxima da data do pedido
	sample, err := r.fetchSample(ctx, claimed)
	if err != nil {
		return r.revert(ctx, claimed, "forecast", err)
	}

	// 2. Avalia as condições
	result := VerificationResult{
		ObservedTemperature: sample.Temperature,
		RainObserved:        sample.RainObserved,
		Fulfilled:           EvaluateConditions(sample, claimed.RequiredConditions),
	}

	// 3. Estado atual da retenção: uma tentativa anterior pode já ter liquidado
	status, err := r.holdStatus(ctx, claimed.PaymentHoldID)
	if err != nil {
		return r.revert(ctx, claimed, "hold status", err)
	}

	// 4. Liquida (capture ou cancel)
	var (
		paymentState PaymentState
		settleErr    error
	)
	switch status {
	case PaymentCaptured, PaymentCanceled:
		settledFulfilled := status == PaymentCaptured
		if settledFulfilled != result.Fulfilled {
			log.Printf("⚠️  [RECONCILE] Hold already %s, overriding fresh evaluation | OrderID=%s | Evaluated=%t",
				status, claimed.ID, result.Fulfilled)
		} else {
			log.Printf("ℹ️ [IDEMPOTENCY] Hold already %s | OrderID=%s", status, claimed.ID)
		}
		result.Fulfilled = settledFulfilled
		paymentState = status
	case PaymentAuthorized:
		paymentState, settleErr = r.settle(ctx, claimed, result.Fulfilled)
	default:
		return r.revert(ctx, claimed, "hold status", fmt.Errorf("hold %s is %s, expected %s", claimed.PaymentHoldID, status, PaymentAuthorized))
	}

	// 5. Persiste o estado terminal
	result.CheckedAt = r.clock.Now()
	done, err := claimed.CompleteVerification(result, paymentState, settleErr, result.CheckedAt)
	if err != nil {
		return orderResult{order: claimed, outcome: outcomeError, err: err}
	}
	saved, err := r.save(ctx, done)
	if err != nil {
		// The order stays Verifying; the stale takeover re-reads the hold status before acting again.
		log.Printf("❌ [RECONCILE] Failed to persist outcome | OrderID=%s | Lifecycle=%s | Error=%v",
			done.ID, done.LifecycleState, err)
		return orderResult{order: claimed, outcome: outcomeError, err: err}
	}

	res := orderResult{order: saved, mismatch: settleErr != nil}
	if saved.LifecycleState == LifecycleFulfilled {
		res.outcome = outcomeFulfilled
	} else {
		res.outcome = outcomeNotFulfilled
	}
	log.Printf("✅ [RECONCILE] OrderID=%s | Lifecycle=%s | Payment=%s | Temp=%.1f | Rain=%t",
		saved.ID, saved.LifecycleState, saved.PaymentState, result.ObservedTemperature, result.RainObserved)
	return res
}

// settle captures or cancels the hold. A failure keeps the payment Authorized and raises an alert;
// the action is not retried because the decision is recorded as final.
func (r *Reconciler) settle(ctx context.Context, order Order, fulfilled bool) (PaymentState, error) {
	action, target := "cancel", PaymentCanceled
	call := r.settlement.CancelHold
	if fulfilled {
		action, target = "capture", PaymentCaptured
		call = r.settlement.CaptureHold
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	err := call(callCtx, order.PaymentHoldID)
	cancel()
	if err != nil {
		log.Printf("❌ [SETTLE] Failed to %s hold | OrderID=%s | HoldID=%s | Error=%v", action, order.ID, order.PaymentHoldID, err)
		r.metrics.alert(ctx, action)
		if r.alerter != nil {
			r.alerter.SettlementFailed(ctx, order, action, err)
		}
		return PaymentAuthorized, err
	}

	log.Printf("💳 [SETTLE] Hold %s | OrderID=%s | HoldID=%s", target, order.ID, order.PaymentHoldID)
	return target, nil
}

func (r *Reconciler) revert(ctx context.Context, claimed Order, step string, cause error) orderResult {
	log.Printf("↩️ [RECONCILE] %s failed, reverting for retry | OrderID=%s | Error=%v", step, claimed.ID, cause)

	reverted, err := claimed.RevertVerification(r.clock.Now())
	if err != nil {
		return orderResult{order: claimed, outcome: outcomeError, err: err}
	}
	saved, err := r.save(ctx, reverted)
	if err != nil {
		log.Printf("❌ [RECONCILE] Failed to revert, order left verifying | OrderID=%s | Error=%v", claimed.ID, err)
		return orderResult{order: claimed, outcome: outcomeError, err: err}
	}
	return orderResult{order: saved, outcome: outcomeRetried, err: cause}
}

func (r *Reconciler) fetchSample(ctx context.Context, order Order) (ForecastSample, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	samples, err := r.forecast.GetForecast(callCtx, order.Location.Latitude, order.Location.Longitude)
	if err != nil {
		return ForecastSample{}, err
	}
	return NearestSample(samples, order.TargetDate)
}

func (r *Reconciler) holdStatus(ctx context.Context, holdID string) (PaymentState, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.settlement.GetHoldStatus(callCtx, holdID)
}

func (r *Reconciler) get(ctx context.Context, orderID string) (Order, error) {
	getCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.repo.Get(getCtx, orderID)
}

func (r *Reconciler) save(ctx context.Context, order Order) (Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.repo.Save(callCtx, order)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
