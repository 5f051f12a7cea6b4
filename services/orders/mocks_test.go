package main

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
)

// memoryOrderRepository simula o repositório com o mesmo controle de versão do Postgres
type memoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]Order

	findErr error
	// saveHook runs before a save is applied; a non-nil error aborts it.
	saveHook func(Order) error
}

func newMemoryOrderRepository(orders ...Order) *memoryOrderRepository {
	repo := &memoryOrderRepository{orders: make(map[string]Order)}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (r *memoryOrderRepository) Create(_ context.Context, order Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		r.orders[order.ID] = order
	}
	return nil
}

func (r *memoryOrderRepository) Get(_ context.Context, orderID string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (r *memoryOrderRepository) FindDue(_ context.Context, states []LifecycleState, from, to time.Time) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}

	var due []Order
	for _, o := range r.orders {
		if o.PaymentState != PaymentAuthorized || o.TargetDate.Before(from) || o.TargetDate.After(to) {
			continue
		}
		for _, s := range states {
			if o.LifecycleState == s {
				due = append(due, o)
				break
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].TargetDate.Before(due[j].TargetDate) })
	return due, nil
}

func (r *memoryOrderRepository) Save(_ context.Context, order Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if current.Version != order.Version {
		return Order{}, ErrConflict
	}
	if r.saveHook != nil {
		if err := r.saveHook(order); err != nil {
			return Order{}, err
		}
	}
	order.Version++
	r.orders[order.ID] = order
	return order, nil
}

func (r *memoryOrderRepository) ListByContact(_ context.Context, contact string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.ContactReference == contact {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryOrderRepository) stored(id string) Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

// MockSettlement simula o processador de pagamentos
type MockSettlement struct {
	mock.Mock
}

func (m *MockSettlement) CreateHold(ctx context.Context, req HoldRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockSettlement) CaptureHold(ctx context.Context, holdID string) error {
	args := m.Called(ctx, holdID)
	return args.Error(0)
}

func (m *MockSettlement) CancelHold(ctx context.Context, holdID string) error {
	args := m.Called(ctx, holdID)
	return args.Error(0)
}

func (m *MockSettlement) GetHoldStatus(ctx context.Context, holdID string) (PaymentState, error) {
	args := m.Called(ctx, holdID)
	return args.Get(0).(PaymentState), args.Error(1)
}

// stubForecast answers every location with the same series unless byLatitude overrides it
type stubForecast struct {
	samples    []ForecastSample
	err        error
	byLatitude map[float64]func() ([]ForecastSample, error)

	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (f *stubForecast) GetForecast(_ context.Context, lat, _ float64) ([]ForecastSample, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if fn, ok := f.byLatitude[lat]; ok {
		return fn()
	}
	return f.samples, f.err
}

// recordingAlerter guarda os alertas emitidos
type recordingAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *recordingAlerter) SettlementFailed(_ context.Context, order Order, action string, _ error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, order.ID+":"+action)
}

func (a *recordingAlerter) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.alerts...)
}
