package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldsClient(t *testing.T) {
	// Arrange
	var created HoldRequest
	var captured, canceled []string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/holds", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"hold_id":"h-1","status":"pending"}`))
	})
	mux.HandleFunc("POST /api/holds/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		captured = append(captured, r.PathValue("id"))
		_, _ = w.Write([]byte(`{"hold_id":"h-1","status":"captured"}`))
	})
	mux.HandleFunc("POST /api/holds/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		canceled = append(canceled, r.PathValue("id"))
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"hold already captured"}`))
	})
	mux.HandleFunc("GET /api/holds/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "h-1":
			_, _ = w.Write([]byte(`{"hold_id":"h-1","status":"authorized"}`))
		case "h-odd":
			_, _ = w.Write([]byte(`{"hold_id":"h-odd","status":"refunded"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"hold not found"}`))
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewHoldsClient(server.URL, time.Second)
	ctx := context.Background()

	// Act & Assert
	err := client.CreateHold(ctx, HoldRequest{HoldID: "h-1", OrderID: "o-1", Customer: "ana@example.com", Amount: 1000, Currency: "eur"})
	require.NoError(t, err)
	assert.Equal(t, HoldRequest{HoldID: "h-1", OrderID: "o-1", Customer: "ana@example.com", Amount: 1000, Currency: "eur"}, created)

	require.NoError(t, client.CaptureHold(ctx, "h-1"))
	assert.Equal(t, []string{"h-1"}, captured)

	err = client.CancelHold(ctx, "h-1")
	assert.ErrorContains(t, err, "hold already captured")
	assert.Equal(t, []string{"h-1"}, canceled)

	status, err := client.GetHoldStatus(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, PaymentAuthorized, status)

	_, err = client.GetHoldStatus(ctx, "h-missing")
	assert.ErrorIs(t, err, ErrHoldNotFound)

	_, err = client.GetHoldStatus(ctx, "h-odd")
	assert.ErrorContains(t, err, "unknown status")
}

func TestHoldsClient_GetHoldStatus_IgnoresResponseContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{"no header", ""},
		{"plain text", "text/plain; charset=utf-8"},
		{"json", "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				_, _ = w.Write([]byte(`{"hold_id":"h-1","status":"authorized"}`))
			}))
			defer server.Close()

			// Act
			status, err := NewHoldsClient(server.URL, time.Second).GetHoldStatus(context.Background(), "h-1")

			// Assert
			require.NoError(t, err)
			assert.Equal(t, PaymentAuthorized, status)
		})
	}
}
