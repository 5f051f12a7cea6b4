package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dtm-labs/client/dtmcli"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// IntakeOrchestrator cria a retenção de pagamento e o pedido como uma unidade
type IntakeOrchestrator interface {
	Submit(ctx context.Context, order Order) error
}

// IntakeActionRequest é o payload das ações SAGA de criação de pedido
type IntakeActionRequest struct {
	OrderID    string             `json:"order_id" binding:"required"`
	HoldID     string             `json:"hold_id" binding:"required"`
	Customer   string             `json:"customer" binding:"required"`
	TargetDate time.Time          `json:"target_date" binding:"required"`
	Location   Location           `json:"location"`
	Amount     int64              `json:"amount" binding:"required,gt=0"`
	Currency   string             `json:"currency" binding:"required"`
	Conditions RequiredConditions `json:"conditions"`
	CreatedAt  time.Time          `json:"created_at"`
	// Manual trace context propagation (DTM doesn't propagate W3C headers)
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

func newIntakeActionRequest(order Order, traceID, spanID string) IntakeActionRequest {
	return IntakeActionRequest{
		OrderID:    order.ID,
		HoldID:     order.PaymentHoldID,
		Customer:   order.ContactReference,
		TargetDate: order.TargetDate,
		Location:   order.Location,
		Amount:     order.Amount,
		Currency:   order.Currency,
		Conditions: order.RequiredConditions,
		CreatedAt:  order.CreatedAt,
		TraceID:    traceID,
		SpanID:     spanID,
	}
}

func (r IntakeActionRequest) toOrder() Order {
	return NewOrder(r.OrderID, r.HoldID, r.Customer, r.TargetDate, r.Location, r.Amount, r.Currency, r.Conditions, r.CreatedAt.UTC())
}

// DTMSagaIntake implementa IntakeOrchestrator usando uma SAGA do DTM
type DTMSagaIntake struct {
	dtmServer   string
	ordersURL   string
	paymentsURL string
}

// NewDTMSagaIntake cria uma nova instância do orquestrador SAGA
func NewDTMSagaIntake(dtmServer, ordersURL, paymentsURL string) *DTMSagaIntake {
	return &DTMSagaIntake{
		dtmServer:   dtmServer,
		ordersURL:   strings.TrimRight(ordersURL, "/"),
		paymentsURL: strings.TrimRight(paymentsURL, "/"),
	}
}

// Submit registra a SAGA e espera o DTM concluí-la. O gid deriva do ID do pedido,
// então reenviar o mesmo pedido é deduplicado pelo DTM.
func (s *DTMSagaIntake) Submit(ctx context.Context, order Order) (err error) {
	gid := "intake-" + order.ID
	ctx, span := createDTMSagaSpan(ctx, "intake_saga", gid)
	defer span.End()

	var traceID, spanID string
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dtm saga panicked: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "dtm saga panicked")
		}
	}()

	log.Printf("🚀 Starting SAGA | TraceID: %s | GID: %s | OrderID: %s", traceID, gid, order.ID)

	payload := newIntakeActionRequest(order, traceID, spanID)
	saga := dtmcli.NewSaga(s.dtmServer, gid).
		Add(
			s.paymentsURL+"/api/saga/holds/create",
			s.paymentsURL+"/api/saga/holds/void",
			&payload,
		).
		Add(
			s.ordersURL+"/api/saga/orders/create",
			"",
			&payload,
		)
	saga.WaitResult = true

	if err := saga.Submit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "saga submit failed")
		log.Printf("❌ SAGA failed | GID: %s | Error: %v", gid, err)
		return fmt.Errorf("failed to process order saga: %w", err)
	}

	span.SetStatus(codes.Ok, "saga finished")
	log.Printf("✅ SAGA finished | GID: %s | OrderID: %s", gid, order.ID)
	return nil
}

// DirectIntake cria a retenção e o pedido sem coordenador, cancelando a retenção se o pedido falhar
type DirectIntake struct {
	settlement Settlement
	repository OrderRepository
}

// NewDirectIntake cria o orquestrador usado quando não há servidor DTM configurado
func NewDirectIntake(settlement Settlement, repository OrderRepository) *DirectIntake {
	return &DirectIntake{settlement: settlement, repository: repository}
}

func (d *DirectIntake) Submit(ctx context.Context, order Order) error {
	err := d.settlement.CreateHold(ctx, HoldRequest{
		HoldID:   order.PaymentHoldID,
		OrderID:  order.ID,
		Customer: order.ContactReference,
		Amount:   order.Amount,
		Currency: order.Currency,
	})
	if err != nil {
		return fmt.Errorf("failed to create payment hold: %w", err)
	}

	if err := d.repository.Create(ctx, order); err != nil {
		if cancelErr := d.settlement.CancelHold(ctx, order.PaymentHoldID); cancelErr != nil {
			log.Printf("🚨 [ALERT] Orphan hold left behind | HoldID=%s | Error=%v", order.PaymentHoldID, cancelErr)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// createDTMSagaSpan cria um span específico para operações SAGA do DTM
func createDTMSagaSpan(ctx context.Context, operationName string, gid string) (context.Context, trace.Span) {
	tracer := otel.Tracer("dtm-saga")
	ctx, span := tracer.Start(ctx, "dtm."+operationName)

	span.SetAttributes(
		attribute.String("dtm.gid", gid),
		attribute.String("dtm.operation", operationName),
		attribute.String("component", "dtm-coordinator"),
	)

	return ctx, span
}

// startSpanFromPayload creates a child span linked to the trace context carried in the payload
func startSpanFromPayload(ctx context.Context, operationName string, req IntakeActionRequest) (context.Context, trace.Span) {
	if req.TraceID != "" && req.SpanID != "" {
		parsedTraceID, errTrace := trace.TraceIDFromHex(req.TraceID)
		parsedSpanID, errSpan := trace.SpanIDFromHex(req.SpanID)
		if errTrace == nil && errSpan == nil {
			spanContext := trace.NewSpanContext(trace.SpanContextConfig{
				TraceID:    parsedTraceID,
				SpanID:     parsedSpanID,
				TraceFlags: trace.FlagsSampled,
				Remote:     true,
			})
			ctx = trace.ContextWithSpanContext(ctx, spanContext)
		}
	}

	return otel.Tracer("orders-service").Start(ctx, operationName)
}
