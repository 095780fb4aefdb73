package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoseSOto27/WNGL/common/api"
	"github.com/JoseSOto27/WNGL/common/broker"
	"github.com/JoseSOto27/WNGL/common/logger"
	"github.com/JoseSOto27/WNGL/common/metrics"
	"github.com/JoseSOto27/WNGL/common/pricing"
	"github.com/JoseSOto27/WNGL/common/store"
)

type fakeStore struct {
	mu        sync.Mutex
	orders    []*api.Order
	profiles  map[string]int
	addresses []*api.Address
	products  []*api.Product
	stats     *api.DashboardStats

	insertErr  error
	adjustErr  error
	adjusts    int
	statsCalls int
	menuCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: map[string]int{}}
}

func (s *fakeStore) InsertOrder(_ context.Context, o *api.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	o.ID = int64(len(s.orders) + 1)
	s.orders = append(s.orders, o)
	return o.ID, nil
}

func (s *fakeStore) ListOrders(_ context.Context, f store.OrderFilter) ([]*api.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*api.Order{}
	for _, o := range s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *fakeStore) UpdateOrderStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			o.Status = status
			return nil
		}
	}
	return store.ErrOrderNotFound
}

func (s *fakeStore) DashboardStats(context.Context) (*api.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsCalls++
	if s.stats == nil {
		return &api.DashboardStats{ByStatus: map[string]int{}}, nil
	}
	return s.stats, nil
}

func (s *fakeStore) GetPoints(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.profiles[id]
	if !ok {
		return 0, store.ErrProfileNotFound
	}
	return bal, nil
}

func (s *fakeStore) AdjustPoints(_ context.Context, id string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjusts++
	if s.adjustErr != nil {
		return 0, s.adjustErr
	}
	bal, ok := s.profiles[id]
	if !ok {
		return 0, store.ErrProfileNotFound
	}
	s.profiles[id] = max(0, bal+delta)
	return s.profiles[id], nil
}

func (s *fakeStore) ListAddresses(_ context.Context, userID string) ([]*api.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*api.Address{}
	for _, a := range s.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateAddress(_ context.Context, a *api.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.addresses) + 1)
	s.addresses = append(s.addresses, a)
	return nil
}

func (s *fakeStore) DeleteAddress(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.addresses {
		if a.ID == id && a.UserID == userID {
			s.addresses = append(s.addresses[:i], s.addresses[i+1:]...)
			return nil
		}
	}
	return store.ErrAddressNotFound
}

func (s *fakeStore) ListProducts(context.Context) ([]*api.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menuCalls++
	if s.products == nil {
		return []*api.Product{}, nil
	}
	return s.products, nil
}

type published struct {
	event string
	body  api.OrderEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{event: event, body: v.(api.OrderEvent)})
	return nil
}

var fixedNow = time.UnixMilli(1700000000000)

func newTestService(s *fakeStore, p Publisher) (*service, *metrics.OrderMetrics) {
	m := metrics.NewOrderMetrics(prometheus.NewRegistry(), "test")
	svc := NewService(s, p, logger.Discard(), m)
	svc.now = func() time.Time { return fixedNow }
	return svc, m
}

func cashRequest(customerID string, redeem int) CashOrderRequest {
	return CashOrderRequest{
		Items: []api.CartLine{
			{ProductID: "a1", Name: "Alitas", UnitPrice: decimal.NewFromInt(100), Quantity: 2},
		},
		UserData:       api.Customer{ID: customerID, Name: "Ana", Phone: "555", Address: "Calle 1"},
		PointsRedeemed: redeem,
	}
}

func TestPlaceCashOrder(t *testing.T) {
	fs := newFakeStore()
	fs.profiles["c1"] = 100
	pub := &fakePublisher{}
	svc, m := newTestService(fs, pub)

	order, err := svc.PlaceCashOrder(context.Background(), cashRequest("c1", 30))
	require.NoError(t, err)

	assert.Equal(t, "CASH-1700000000000-c1", order.Reference)
	assert.Equal(t, api.PaymentMethodCash, order.PaymentMethod)
	assert.Equal(t, api.StatusPending, order.Status)
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(200)))
	assert.True(t, order.Total.Equal(decimal.NewFromInt(210)), order.Total.String())
	assert.Equal(t, 10, order.PointsEarned)
	assert.Equal(t, 30, order.PointsRedeemed)

	assert.Equal(t, 80, fs.profiles["c1"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CashOrdersCreated))

	require.Len(t, pub.events, 1)
	assert.Equal(t, broker.OrderCreatedEvent, pub.events[0].event)
	assert.Equal(t, order.Reference, pub.events[0].body.Reference)
	assert.NotEmpty(t, pub.events[0].body.EventID)
}

func TestPlaceCashOrderClampsRedemption(t *testing.T) {
	tests := []struct {
		name         string
		balance      int
		hasProfile   bool
		redeem       int
		wantRedeemed int
		wantBalance  int
	}{
		{"below minimum balance", 40, true, 30, 0, 50},
		{"more than balance", 60, true, 100, 60, 10},
		{"missing profile", 0, false, 30, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeStore()
			if tt.hasProfile {
				fs.profiles["c1"] = tt.balance
			}
			svc, _ := newTestService(fs, nil)

			order, err := svc.PlaceCashOrder(context.Background(), cashRequest("c1", tt.redeem))
			require.NoError(t, err)

			assert.Equal(t, tt.wantRedeemed, order.PointsRedeemed)
			assert.Equal(t, tt.wantBalance, fs.profiles["c1"])
			assert.Len(t, fs.orders, 1)
		})
	}
}

func TestPlaceCashOrderAnonymous(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs, nil)

	order, err := svc.PlaceCashOrder(context.Background(), cashRequest("", 50))
	require.NoError(t, err)

	assert.Equal(t, "CASH-1700000000000-anon", order.Reference)
	assert.Zero(t, order.PointsRedeemed)
	assert.Zero(t, fs.adjusts)
}

func TestPlaceCashOrderKeepsOrderWhenPointsOrPublishFail(t *testing.T) {
	fs := newFakeStore()
	fs.profiles["c1"] = 0
	fs.adjustErr = errors.New("connection reset")
	pub := &fakePublisher{err: errors.New("channel closed")}
	svc, _ := newTestService(fs, pub)

	order, err := svc.PlaceCashOrder(context.Background(), cashRequest("c1", 0))

	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Len(t, fs.orders, 1)
}

func TestPlaceCashOrderRejects(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*CashOrderRequest)
		field string
	}{
		{"empty cart", func(r *CashOrderRequest) { r.Items = nil }, "items"},
		{"negative points", func(r *CashOrderRequest) { r.PointsRedeemed = -1 }, "puntosUsados"},
		{"no phone", func(r *CashOrderRequest) { r.UserData.Phone = " " }, "userData.phone"},
		{"no address", func(r *CashOrderRequest) { r.UserData.Address = "" }, "userData.address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeStore()
			svc, _ := newTestService(fs, nil)
			req := cashRequest("c1", 0)
			tt.edit(&req)

			_, err := svc.PlaceCashOrder(context.Background(), req)

			var vErr *pricing.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, fs.orders)
		})
	}
}

func TestPlaceCashOrderStoreFailure(t *testing.T) {
	fs := newFakeStore()
	fs.insertErr = errors.New("disk full")
	svc, m := newTestService(fs, nil)

	_, err := svc.PlaceCashOrder(context.Background(), cashRequest("c1", 0))

	require.Error(t, err)
	assert.Zero(t, fs.adjusts)
	assert.Zero(t, testutil.ToFloat64(m.CashOrdersCreated))
}

func TestUpdateOrderStatus(t *testing.T) {
	fs := newFakeStore()
	fs.orders = []*api.Order{{ID: 7, Status: api.StatusPaid}}
	svc, m := newTestService(fs, nil)

	require.NoError(t, svc.UpdateOrderStatus(context.Background(), 7, api.StatusShipped))
	assert.Equal(t, api.StatusShipped, fs.orders[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusUpdates.WithLabelValues(api.StatusShipped)))

	err := svc.UpdateOrderStatus(context.Background(), 7, "perdido")
	var vErr *pricing.ValidationError
	assert.ErrorAs(t, err, &vErr)

	err = svc.UpdateOrderStatus(context.Background(), 99, api.StatusDelivered)
	assert.ErrorIs(t, err, store.ErrOrderNotFound)
}

func TestListOrders(t *testing.T) {
	fs := newFakeStore()
	fs.orders = []*api.Order{
		{ID: 1, Status: api.StatusPaid, CustomerID: "c1"},
		{ID: 2, Status: api.StatusPending, CustomerID: "c2"},
	}
	svc, _ := newTestService(fs, nil)

	all, err := svc.ListOrders(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paid, err := svc.ListOrders(context.Background(), api.StatusPaid)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.EqualValues(t, 1, paid[0].ID)

	mine, err := svc.CustomerOrders(context.Background(), "c2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.EqualValues(t, 2, mine[0].ID)

	_, err = svc.ListOrders(context.Background(), "nope")
	var vErr *pricing.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestAddAddress(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs, nil)

	a := &api.Address{UserID: "c1", Label: " Casa ", Address: "Calle 1"}
	require.NoError(t, svc.AddAddress(context.Background(), a))
	assert.Equal(t, "Casa", a.Label)
	assert.NotZero(t, a.ID)

	err := svc.AddAddress(context.Background(), &api.Address{UserID: "c1", Address: "Calle 2"})
	var vErr *pricing.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "label", vErr.Field)

	require.NoError(t, svc.RemoveAddress(context.Background(), "c1", a.ID))
	assert.ErrorIs(t, svc.RemoveAddress(context.Background(), "c1", a.ID), store.ErrAddressNotFound)
}
