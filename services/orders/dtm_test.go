package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func intakeOrder() Order {
	return NewOrder("o-1", "h-1", "ana@example.com", intakeNow.Add(24*time.Hour),
		Location{Name: "Lisbon", Latitude: 38.72, Longitude: -9.14}, 1000, "eur",
		RequiredConditions{MinimumTemperatureCelsius: 20, RainDisallowed: true}, intakeNow)
}

func TestDirectIntake_CreatesHoldThenOrder(t *testing.T) {
	// Arrange
	order := intakeOrder()
	repo := newMemoryOrderRepository()
	settlement := new(MockSettlement)
	settlement.On("CreateHold", mock.Anything, HoldRequest{
		HoldID: "h-1", OrderID: "o-1", Customer: "ana@example.com", Amount: 1000, Currency: "eur",
	}).Return(nil).Once()

	// Act
	err := NewDirectIntake(settlement, repo).Submit(context.Background(), order)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, order, repo.stored("o-1"))
	settlement.AssertExpectations(t)
}

func TestDirectIntake_HoldFailureStoresNothing(t *testing.T) {
	// Arrange
	repo := newMemoryOrderRepository()
	settlement := new(MockSettlement)
	settlement.On("CreateHold", mock.Anything, mock.Anything).Return(errors.New("card declined")).Once()

	// Act
	err := NewDirectIntake(settlement, repo).Submit(context.Background(), intakeOrder())

	// Assert
	assert.ErrorContains(t, err, "card declined")
	_, getErr := repo.Get(context.Background(), "o-1")
	assert.ErrorIs(t, getErr, ErrOrderNotFound)
}

type failingCreateRepository struct {
	*memoryOrderRepository
}

func (failingCreateRepository) Create(context.Context, Order) error {
	return errors.New("disk full")
}

func TestDirectIntake_OrderFailureCancelsHold(t *testing.T) {
	// Arrange
	settlement := new(MockSettlement)
	settlement.On("CreateHold", mock.Anything, mock.Anything).Return(nil).Once()
	settlement.On("CancelHold", mock.Anything, "h-1").Return(nil).Once()
	repo := failingCreateRepository{newMemoryOrderRepository()}

	// Act
	err := NewDirectIntake(settlement, repo).Submit(context.Background(), intakeOrder())

	// Assert
	assert.ErrorContains(t, err, "disk full")
	settlement.AssertExpectations(t)
}

func TestIntakeActionRequest_RoundTripsOrder(t *testing.T) {
	order := intakeOrder()
	req := newIntakeActionRequest(order, "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")

	assert.Equal(t, order, req.toOrder())
	assert.Equal(t, "ana@example.com", req.Customer)
}

func TestStartSpanFromPayload_IgnoresMalformedIDs(t *testing.T) {
	req := IntakeActionRequest{TraceID: "not-hex", SpanID: "zz"}

	ctx, span := startSpanFromPayload(context.Background(), "orders.test", req)
	defer span.End()

	assert.NotNil(t, ctx)
}
