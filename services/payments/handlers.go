package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// HoldService é o que os handlers precisam da camada de pagamentos
type HoldService interface {
	CreateHold(ctx context.Context, req CreateHoldRequest) (*Hold, error)
	GetHold(ctx context.Context, holdID string) (*Hold, error)
	AuthorizeHold(ctx context.Context, holdID string) (*Hold, error)
	CaptureHold(ctx context.Context, holdID string) (*Hold, error)
	CancelHold(ctx context.Context, holdID string) (*Hold, error)
	TopUpWallet(ctx context.Context, req TopUpRequest) (*Wallet, error)
}

// startSpanFromPayload creates a child span linked to the propagated trace context
func startSpanFromPayload(c *gin.Context, operationName string, req CreateHoldRequest) (context.Context, trace.Span) {
	ctx := c.Request.Context()

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

	return otel.Tracer("payments-service").Start(ctx, operationName)
}

// HandleCreateHold handler para criação de retenção
func HandleCreateHold(svc HoldService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Printf("❌ Invalid request body: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		ctx, span := startSpanFromPayload(c, "payments.CreateHold", req)
		defer span.End()

		hold, err := svc.CreateHold(ctx, req)
		if err != nil {
			writePaymentError(c, err)
			return
		}
		c.JSON(http.StatusCreated, hold)
	}
}

// HandleGetHold handler para consulta de retenção
func HandleGetHold(svc HoldService) gin.HandlerFunc {
	return func(c *gin.Context) {
		hold, err := svc.GetHold(c.Request.Context(), c.Param("id"))
		if err != nil {
			writePaymentError(c, err)
			return
		}
		c.JSON(http.StatusOK, hold)
	}
}

// HandleHoldAction handler genérico para authorize / capture / cancel
func HandleHoldAction(name string, action func(ctx context.Context, holdID string) (*Hold, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID := c.Param("id")
		hold, err := action(c.Request.Context(), holdID)
		if err != nil {
			log.Printf("❌ [%s] HoldID=%s | Failed: %v", name, holdID, err)
			writePaymentError(c, err)
			return
		}
		c.JSON(http.StatusOK, hold)
	}
}

// HandleTopUpWallet handler para creditar saldo
func HandleTopUpWallet(svc HoldService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TopUpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		wallet, err := svc.TopUpWallet(c.Request.Context(), req)
		if err != nil {
			writePaymentError(c, err)
			return
		}
		c.JSON(http.StatusOK, wallet)
	}
}

// HandleSagaAction handler para as ações SAGA chamadas pelo DTM
func HandleSagaAction(name string, action func(qs url.Values, req CreateHoldRequest) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Printf("❌ [%s] Invalid request body: %v", name, err)
			c.JSON(http.StatusConflict, gin.H{"dtm_result": dtmcli.ResultFailure, "error": "Invalid request body"})
			return
		}

		_, span := startSpanFromPayload(c, "payments."+name, req)
		defer span.End()

		err := action(c.Request.URL.Query(), req)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"dtm_result": dtmcli.ResultSuccess})
		case errors.Is(err, dtmcli.ErrFailure):
			// 409 faz o DTM compensar em vez de repetir
			span.RecordError(err)
			log.Printf("❌ [%s] HoldID=%s | Failure: %v", name, req.HoldID, err)
			c.JSON(http.StatusConflict, gin.H{"dtm_result": dtmcli.ResultFailure, "error": err.Error()})
		default:
			span.RecordError(err)
			log.Printf("⚠️  [%s] HoldID=%s | Will be retried: %v", name, req.HoldID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	}
}

// HandleHealth handler para health check
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "payments-service"})
	}
}

func writePaymentError(c *gin.Context, err error) {
	var paymentErr *PaymentError
	switch {
	case errors.Is(err, ErrHoldNotFound), errors.Is(err, ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &paymentErr):
		c.JSON(http.StatusConflict, gin.H{"error": paymentErr.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func registerRoutes(r *gin.Engine, svc HoldService, saga SagaParticipant) {
	r.GET("/health", HandleHealth())

	api := r.Group("/api")
	{
		api.POST("/wallets", HandleTopUpWallet(svc))

		api.POST("/holds", HandleCreateHold(svc))
		api.GET("/holds/:id", HandleGetHold(svc))
		api.POST("/holds/:id/authorize", HandleHoldAction("AUTHORIZE", svc.AuthorizeHold))
		api.POST("/holds/:id/capture", HandleHoldAction("CAPTURE", svc.CaptureHold))
		api.POST("/holds/:id/cancel", HandleHoldAction("CANCEL", svc.CancelHold))

		// Ações SAGA
		api.POST("/saga/holds/create", HandleSagaAction("SAGA_CREATE_HOLD", saga.CreateHold))
		api.POST("/saga/holds/void", HandleSagaAction("SAGA_VOID_HOLD", saga.VoidHold))
	}
}
