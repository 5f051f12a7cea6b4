package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HoldRequest representa a criação de uma retenção de pagamento
type HoldRequest struct {
	HoldID   string `json:"hold_id"`
	OrderID  string `json:"order_id"`
	Customer string `json:"customer"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Settlement abstrai o processador de pagamentos.
// Capturar e cancelar a mesma retenção mais de uma vez deve ser seguro.
type Settlement interface {
	CreateHold(ctx context.Context, req HoldRequest) error
	CaptureHold(ctx context.Context, holdID string) error
	CancelHold(ctx context.Context, holdID string) error
	GetHoldStatus(ctx context.Context, holdID string) (PaymentState, error)
}

var ErrHoldNotFound = errors.New("hold not found")

// HoldsClient fala com o serviço de pagamentos via HTTP
type HoldsClient struct {
	client *resty.Client
}

// NewHoldsClient cria o cliente do serviço de pagamentos
func NewHoldsClient(baseURL string, timeout time.Duration) *HoldsClient {
	return &HoldsClient{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			ForceContentType("application/json"),
	}
}

type holdResponse struct {
	HoldID string `json:"hold_id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *HoldsClient) CreateHold(ctx context.Context, req HoldRequest) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetError(&errorResponse{}).
		Post("/api/holds")
	return checkResponse("create hold", req.HoldID, resp, err)
}

func (c *HoldsClient) CaptureHold(ctx context.Context, holdID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", holdID).
		SetError(&errorResponse{}).
		Post("/api/holds/{id}/capture")
	return checkResponse("capture hold", holdID, resp, err)
}

func (c *HoldsClient) CancelHold(ctx context.Context, holdID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", holdID).
		SetError(&errorResponse{}).
		Post("/api/holds/{id}/cancel")
	return checkResponse("cancel hold", holdID, resp, err)
}

func (c *HoldsClient) GetHoldStatus(ctx context.Context, holdID string) (PaymentState, error) {
	var body holdResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", holdID).
		SetResult(&body).
		SetError(&errorResponse{}).
		Get("/api/holds/{id}")
	if err := checkResponse("get hold", holdID, resp, err); err != nil {
		return "", err
	}

	switch state := PaymentState(body.Status); state {
	case PaymentPending, PaymentAuthorized, PaymentCaptured, PaymentCanceled:
		return state, nil
	default:
		return "", fmt.Errorf("get hold %s: unknown status %q", holdID, body.Status)
	}
}

func checkResponse(op, holdID string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, holdID, err)
	}
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", op, holdID, ErrHoldNotFound)
	}
	msg := resp.String()
	if e, ok := resp.Error().(*errorResponse); ok && e.Error != "" {
		msg = e.Error
	}
	return fmt.Errorf("%s %s: status %d: %s", op, holdID, resp.StatusCode(), msg)
}
