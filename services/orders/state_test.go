package main

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stateNow = time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)

func pendingOrder() Order {
	return NewOrder("o-1", "h-1", "ana@example.com", stateNow.Add(48*time.Hour),
		Location{Name: "Porto", Latitude: 41.15, Longitude: -8.61}, 1000, "eur",
		RequiredConditions{MinimumTemperatureCelsius: 20, RainDisallowed: true}, stateNow.Add(-time.Hour))
}

func TestNewOrder(t *testing.T) {
	// Act
	order := pendingOrder()

	// Assert
	assert.Equal(t, LifecycleAwaitingFunds, order.LifecycleState)
	assert.Equal(t, PaymentPending, order.PaymentState)
	assert.Nil(t, order.VerificationResult)
	assert.Equal(t, int64(0), order.Version)
	assert.Equal(t, order.CreatedAt, order.UpdatedAt)
}

func TestAuthorizeFunds(t *testing.T) {
	order := pendingOrder()

	next, err := order.AuthorizeFunds(stateNow)
	require.NoError(t, err)
	assert.Equal(t, LifecycleAwaitingVerification, next.LifecycleState)
	assert.Equal(t, PaymentAuthorized, next.PaymentState)
	assert.Equal(t, stateNow, next.UpdatedAt)
	assert.Equal(t, LifecycleAwaitingFunds, order.LifecycleState, "receiver must not change")

	again, err := next.AuthorizeFunds(stateNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, next, again)

	done := next
	done.LifecycleState = LifecycleNotFulfilled
	_, err = done.AuthorizeFunds(stateNow)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestBeginVerification(t *testing.T) {
	authorized, err := pendingOrder().AuthorizeFunds(stateNow.Add(-time.Hour))
	require.NoError(t, err)

	t.Run("claims an awaiting order", func(t *testing.T) {
		claimed, err := authorized.BeginVerification(stateNow, 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, LifecycleVerifying, claimed.LifecycleState)
		assert.Equal(t, stateNow, claimed.UpdatedAt)
	})

	t.Run("fresh claim is in flight", func(t *testing.T) {
		claimed, _ := authorized.BeginVerification(stateNow, 15*time.Minute)
		_, err := claimed.BeginVerification(stateNow.Add(time.Minute), 15*time.Minute)
		assert.ErrorIs(t, err, ErrVerificationInFlight)
		assert.False(t, claimed.IsStaleVerification(stateNow.Add(time.Minute), 15*time.Minute))
	})

	t.Run("stale claim can be taken over", func(t *testing.T) {
		claimed, _ := authorized.BeginVerification(stateNow, 15*time.Minute)
		later := stateNow.Add(20 * time.Minute)
		assert.True(t, claimed.IsStaleVerification(later, 15*time.Minute))

		retaken, err := claimed.BeginVerification(later, 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, later, retaken.UpdatedAt)
	})

	t.Run("payment must be authorized", func(t *testing.T) {
		o := authorized
		o.PaymentState = PaymentPending
		_, err := o.BeginVerification(stateNow, 15*time.Minute)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("awaiting funds cannot be verified", func(t *testing.T) {
		_, err := pendingOrder().BeginVerification(stateNow, 15*time.Minute)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestCompleteVerification(t *testing.T) {
	authorized, _ := pendingOrder().AuthorizeFunds(stateNow.Add(-time.Hour))
	claimed, err := authorized.BeginVerification(stateNow, 15*time.Minute)
	require.NoError(t, err)

	result := VerificationResult{ObservedTemperature: 23, CheckedAt: stateNow, Fulfilled: true}

	done, err := claimed.CompleteVerification(result, PaymentCaptured, nil, stateNow)
	require.NoError(t, err)
	assert.Equal(t, LifecycleFulfilled, done.LifecycleState)
	assert.Equal(t, PaymentCaptured, done.PaymentState)
	require.NotNil(t, done.VerificationResult)
	assert.Equal(t, result, *done.VerificationResult)

	_, err = done.CompleteVerification(result, PaymentCaptured, nil, stateNow)
	assert.ErrorIs(t, err, ErrInvalidState, "a terminal order accepts no further transition")

	_, err = done.RevertVerification(stateNow)
	assert.ErrorIs(t, err, ErrInvalidState)

	failed, err := claimed.CompleteVerification(VerificationResult{Fulfilled: false}, PaymentAuthorized, errors.New("cancel timed out"), stateNow)
	require.NoError(t, err)
	assert.Equal(t, LifecycleNotFulfilled, failed.LifecycleState)
	assert.Equal(t, PaymentAuthorized, failed.PaymentState)
	assert.Equal(t, "cancel timed out", failed.SettlementError)
}

func TestRevertVerification(t *testing.T) {
	authorized, _ := pendingOrder().AuthorizeFunds(stateNow.Add(-time.Hour))
	claimed, _ := authorized.BeginVerification(stateNow, 15*time.Minute)

	reverted, err := claimed.RevertVerification(stateNow.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, LifecycleAwaitingVerification, reverted.LifecycleState)
	assert.Equal(t, PaymentAuthorized, reverted.PaymentState)
	assert.Nil(t, reverted.VerificationResult)

	_, err = authorized.RevertVerification(stateNow)
	assert.ErrorIs(t, err, ErrInvalidState)
}

// A verification result exists exactly when the order is terminal, whatever the sequence of calls.
func TestTransitions_ResultOnlyWhenTerminal(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	states := []PaymentState{PaymentAuthorized, PaymentCaptured, PaymentCanceled}

	for run := 0; run < 200; run++ {
		order := pendingOrder()
		now := stateNow
		for step := 0; step < 12; step++ {
			now = now.Add(time.Duration(rng.Intn(30)) * time.Minute)

			var next Order
			var err error
			switch rng.Intn(5) {
			case 0:
				next, err = order.AuthorizeFunds(now)
			case 1, 2:
				next, err = order.BeginVerification(now, 15*time.Minute)
			case 3:
				res := VerificationResult{ObservedTemperature: float64(rng.Intn(40)), CheckedAt: now, Fulfilled: rng.Intn(2) == 0}
				next, err = order.CompleteVerification(res, states[rng.Intn(len(states))], nil, now)
			case 4:
				next, err = order.RevertVerification(now)
			}
			if err != nil {
				assert.Equal(t, order, next, "a rejected transition returns the input unchanged")
				continue
			}

			if order.LifecycleState.Terminal() {
				t.Fatalf("terminal order moved from %s to %s", order.LifecycleState, next.LifecycleState)
			}
			order = next
			assert.Equal(t, order.LifecycleState.Terminal(), order.VerificationResult != nil,
				"state=%s result=%v", order.LifecycleState, order.VerificationResult)
		}
	}
}
