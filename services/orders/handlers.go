package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/gin-gonic/gin"
)

// OrderService é o que os handlers HTTP precisam da camada de pedidos
type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error)
	RecordOrder(ctx context.Context, req IntakeActionRequest) error
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, contact string) ([]Order, error)
	ConfirmPayment(ctx context.Context, orderID string) (Order, PaymentState, error)
}

// ReconcileService expõe a reconciliação para os gatilhos manuais
type ReconcileService interface {
	RunPass(ctx context.Context) (PassSummary, error)
	ReconcileOrder(ctx context.Context, orderID string) (Order, error)
}

// CreateOrderRequest é o corpo de POST /api/orders
type CreateOrderRequest struct {
	Email      string             `json:"email" binding:"required,email"`
	Date       string             `json:"date" binding:"required"`
	Location   LocationRequest    `json:"location"`
	Amount     int64              `json:"amount" binding:"omitempty,gt=0"`
	Conditions *ConditionsRequest `json:"conditions,omitempty"`
}

// LocationRequest representa o local informado pelo cliente
type LocationRequest struct {
	City string   `json:"city" binding:"required"`
	Lat  *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lon  *float64 `json:"lon" binding:"required,gte=-180,lte=180"`
}

// ConditionsRequest sobrescreve a garantia padrão; campos omitidos mantêm o padrão
type ConditionsRequest struct {
	MinimumTemperatureCelsius *float64 `json:"required_temp"`
	NoRain                    *bool    `json:"no_rain"`
}

func (r CreateOrderRequest) toInput(defaults RequiredConditions) (CreateOrderInput, error) {
	target, err := parseTargetDate(r.Date)
	if err != nil {
		return CreateOrderInput{}, err
	}

	in := CreateOrderInput{
		Contact:    r.Email,
		TargetDate: target,
		Location: Location{
			Name:      r.Location.City,
			Latitude:  *r.Location.Lat,
			Longitude: *r.Location.Lon,
		},
		Amount: r.Amount,
	}
	if r.Conditions != nil {
		conditions := defaults
		if r.Conditions.MinimumTemperatureCelsius != nil {
			conditions.MinimumTemperatureCelsius = *r.Conditions.MinimumTemperatureCelsius
		}
		if r.Conditions.NoRain != nil {
			conditions.RainDisallowed = *r.Conditions.NoRain
		}
		in.Conditions = &conditions
	}
	return in, nil
}

// parseTargetDate aceita RFC3339 ou apenas a data (meia-noite UTC)
func parseTargetDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, &OrderError{Message: "date must be RFC3339 or YYYY-MM-DD"}
	}
	return t.UTC(), nil
}

// HandleCreateOrder handler para criação de pedidos
func HandleCreateOrder(svc OrderService, defaults RequiredConditions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Printf("❌ Invalid request body: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		in, err := req.toInput(defaults)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		order, err := svc.CreateOrder(c.Request.Context(), in)
		if err != nil {
			writeOrderError(c, err)
			return
		}

		// Retorna 202 Accepted - o pagamento ainda precisa ser confirmado
		c.JSON(http.StatusAccepted, gin.H{
			"order_id":        order.ID,
			"payment_hold_id": order.PaymentHoldID,
			"status":          order.LifecycleState,
			"message":         "Order registered, waiting for payment authorization",
		})
	}
}

// HandleGetOrder handler para consulta de um pedido
func HandleGetOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := svc.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// ListOrdersQuery filtro da listagem de pedidos
type ListOrdersQuery struct {
	Email string `form:"email" binding:"required,email"`
}

// HandleListOrders handler para listar os pedidos de um email
func HandleListOrders(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query ListOrdersQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email query parameter is required", "details": err.Error()})
			return
		}

		orders, err := svc.ListOrders(c.Request.Context(), query.Email)
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
	}
}

// HandleConfirmPayment handler para confirmar a autorização do pagamento
func HandleConfirmPayment(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, status, err := svc.ConfirmPayment(c.Request.Context(), c.Param("id"))
		if errors.Is(err, ErrPaymentNotReady) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "payment_status": status})
			return
		}
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// HandleReconcileOrder handler para verificar um pedido fora do agendamento
func HandleReconcileOrder(svc ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := svc.ReconcileOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// HandleRunPass handler para disparar uma passada completa
func HandleRunPass(svc ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := svc.RunPass(c.Request.Context())
		if err != nil {
			log.Printf("❌ Manual pass failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// HandleSagaCreateOrder handler para a ação SAGA que grava o pedido
func HandleSagaCreateOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IntakeActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Printf("❌ [SAGA CREATE ORDER] Invalid request body: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		ctx, span := startSpanFromPayload(c.Request.Context(), "orders.SagaCreateOrder", req)
		defer span.End()

		if err := svc.RecordOrder(ctx, req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store order"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"dtm_result": dtmcli.ResultSuccess})
	}
}

// HandleHealth handler para health check
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "orders-service"})
	}
}

func writeOrderError(c *gin.Context, err error) {
	var orderErr *OrderError
	switch {
	case errors.As(err, &orderErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": orderErr.Message})
	case errors.Is(err, ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrVerificationInFlight), errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("❌ Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func registerRoutes(r *gin.Engine, orders OrderService, reconciler ReconcileService, defaults RequiredConditions) {
	r.GET("/health", HandleHealth())

	api := r.Group("/api")
	{
		api.POST("/orders", HandleCreateOrder(orders, defaults))
		api.GET("/orders", HandleListOrders(orders))
		api.GET("/orders/:id", HandleGetOrder(orders))
		api.POST("/orders/:id/confirm", HandleConfirmPayment(orders))
		api.POST("/orders/:id/reconcile", HandleReconcileOrder(reconciler))
		api.POST("/reconciliation/run", HandleRunPass(reconciler))

		// Ações SAGA
		api.POST("/saga/orders/create", HandleSagaCreateOrder(orders))
	}
}
