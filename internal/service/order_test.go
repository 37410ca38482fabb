package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
)

type mockOrderRepo struct {
	orders map[string]*model.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*model.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *model.Order) error {
	if _, ok := m.orders[o.OrderNumber]; ok {
		return repository.ErrDuplicate
	}
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.orders[o.OrderNumber] = &cp
	return nil
}

func (m *mockOrderRepo) GetByOrderNumber(_ context.Context, number string) (*model.Order, error) {
	o, ok := m.orders[number]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListForUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]model.Order, int, error) {
	var out []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return page(out, limit, offset), len(out), nil
}

func (m *mockOrderRepo) ListAll(_ context.Context, f repository.OrderFilter) ([]model.Order, int, error) {
	var out []model.Order
	for _, o := range m.orders {
		if f.Status != "" && o.PaymentStatus != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(o.OrderNumber, f.Search) && !strings.Contains(o.ProductDetails.Name, f.Search) {
			continue
		}
		out = append(out, *o)
	}
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (m *mockOrderRepo) ListByPaymentRef(_ context.Context, ref string) ([]model.Order, error) {
	var out []model.Order
	for _, o := range m.orders {
		if o.PaymentRef == ref {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, o *model.Order, from model.PaymentStatus) error {
	stored, ok := m.orders[o.OrderNumber]
	if !ok || stored.PaymentStatus != from {
		return repository.ErrVersionConflict
	}
	cp := *o
	m.orders[o.OrderNumber] = &cp
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, number string) error {
	if _, ok := m.orders[number]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.orders, number)
	return nil
}

func page(orders []model.Order, limit, offset int) []model.Order {
	if offset >= len(orders) {
		return nil
	}
	end := offset + limit
	if end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end]
}

type mockAddressRepo struct {
	addrs map[uuid.UUID]*model.Address
}

func newMockAddressRepo() *mockAddressRepo {
	return &mockAddressRepo{addrs: make(map[uuid.UUID]*model.Address)}
}

func (m *mockAddressRepo) add(userID uuid.UUID) *model.Address {
	a := &model.Address{ID: uuid.New(), UserID: userID, AddressLine: "1 Market St", City: "Izmir", Active: true}
	m.addrs[a.ID] = a
	return a
}

func (m *mockAddressRepo) Create(_ context.Context, a *model.Address) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	cp := *a
	m.addrs[a.ID] = &cp
	return nil
}

func (m *mockAddressRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Address, error) {
	a, ok := m.addrs[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockAddressRepo) ListActive(_ context.Context, userID uuid.UUID) ([]model.Address, error) {
	var out []model.Address
	for _, a := range m.addrs {
		if a.UserID == userID && a.Active {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAddressRepo) Update(_ context.Context, a *model.Address) error {
	cur, ok := m.addrs[a.ID]
	if !ok || cur.UserID != a.UserID || !cur.Active {
		return pgx.ErrNoRows
	}
	cp := *a
	m.addrs[a.ID] = &cp
	return nil
}

func (m *mockAddressRepo) Deactivate(_ context.Context, id, userID uuid.UUID) error {
	a, ok := m.addrs[id]
	if !ok || a.UserID != userID || !a.Active {
		return pgx.ErrNoRows
	}
	a.Active = false
	return nil
}

type orderFixture struct {
	svc       *OrderService
	orders    *mockOrderRepo
	products  *mockProductRepo
	addresses *mockAddressRepo
	users     *mockUserRepo
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		orders:    newMockOrderRepo(),
		products:  newMockProductRepo(),
		addresses: newMockAddressRepo(),
		users:     newMockUserRepo(),
	}
	f.svc = NewOrderService(f.orders, f.products, f.addresses, f.users, testLog)
	return f
}

func (f *orderFixture) seedOrder(userID uuid.UUID, status model.PaymentStatus) *model.Order {
	o := &model.Order{
		OrderNumber:    newOrderNumber(),
		UserID:         userID,
		ProductID:      uuid.New(),
		Quantity:       1,
		ProductDetails: model.ProductSnapshot{Name: "milk"},
		Subtotal:       decimal.NewFromInt(10),
		Total:          decimal.NewFromInt(10),
		PaymentStatus:  status,
	}
	f.orders.orders[o.OrderNumber] = o
	return o
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.PaymentStatus
		ok       bool
	}{
		{model.PaymentPending, model.PaymentSuccess, true},
		{model.PaymentPending, model.PaymentFailed, true},
		{model.PaymentSuccess, model.PaymentCompleted, true},
		{model.PaymentSuccess, model.PaymentSuccess, true},
		{model.PaymentPending, model.PaymentCompleted, false},
		{model.PaymentSuccess, model.PaymentFailed, false},
		{model.PaymentCompleted, model.PaymentPending, false},
		{model.PaymentFailed, model.PaymentSuccess, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrderService_Create(t *testing.T) {
	f := newOrderFixture()
	user := f.users.add(&model.User{Email: "a@example.com", Role: model.RoleUser, Status: model.UserActive})
	addr := f.addresses.add(user.ID)
	p := f.products.add("cheese", "20", 5)
	p.Discount = decimal.NewFromInt(50)

	o, err := f.svc.Create(context.Background(), dto.CreateOrderRequest{
		UserID: user.ID, ProductID: p.ID, Quantity: 2, DeliveryAddressID: addr.ID,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(o.OrderNumber, "ORD-"))
	assert.Equal(t, model.PaymentPending, o.PaymentStatus)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(40)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "cheese", o.ProductDetails.Name)

	other := f.addresses.add(uuid.New())
	_, err = f.svc.Create(context.Background(), dto.CreateOrderRequest{
		UserID: user.ID, ProductID: p.ID, Quantity: 1, DeliveryAddressID: other.ID,
	})
	assert.ErrorIs(t, err, ErrAddressForbidden)

	_, err = f.svc.Create(context.Background(), dto.CreateOrderRequest{
		UserID: user.ID, ProductID: p.ID, Quantity: 6, DeliveryAddressID: addr.ID,
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestOrderService_GetByOrderNumber_Access(t *testing.T) {
	f := newOrderFixture()
	owner := uuid.New()
	o := f.seedOrder(owner, model.PaymentSuccess)

	got, err := f.svc.GetByOrderNumber(context.Background(), o.OrderNumber, owner, false)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)

	_, err = f.svc.GetByOrderNumber(context.Background(), o.OrderNumber, uuid.New(), false)
	assert.ErrorIs(t, err, ErrOrderAccessDenied)

	_, err = f.svc.GetByOrderNumber(context.Background(), o.OrderNumber, uuid.New(), true)
	assert.NoError(t, err)

	_, err = f.svc.GetByOrderNumber(context.Background(), "ORD-NOPE", owner, true)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_ListForUser_Paged(t *testing.T) {
	f := newOrderFixture()
	owner := uuid.New()
	for i := 0; i < 3; i++ {
		f.seedOrder(owner, model.PaymentSuccess)
	}
	f.seedOrder(uuid.New(), model.PaymentSuccess)

	orders, total, err := f.svc.ListForUser(context.Background(), owner, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, orders, 1)
}

func TestOrderService_ListAll_Filters(t *testing.T) {
	f := newOrderFixture()
	f.seedOrder(uuid.New(), model.PaymentSuccess)
	f.seedOrder(uuid.New(), model.PaymentPending)

	orders, total, err := f.svc.ListAll(context.Background(), dto.ListOrdersRequest{Page: 1, Limit: 10, Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, model.PaymentPending, orders[0].PaymentStatus)
}

func TestOrderService_UpdateStatus(t *testing.T) {
	f := newOrderFixture()
	o := f.seedOrder(uuid.New(), model.PaymentPending)
	invoice := "INV-42"

	updated, err := f.svc.UpdateStatus(context.Background(), dto.UpdateOrderStatusRequest{
		OrderID: o.OrderNumber, Status: model.PaymentSuccess, InvoiceRef: &invoice,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSuccess, updated.PaymentStatus)
	assert.Equal(t, "INV-42", f.orders.orders[o.OrderNumber].InvoiceRef)

	_, err = f.svc.UpdateStatus(context.Background(), dto.UpdateOrderStatusRequest{
		OrderID: o.OrderNumber, Status: model.PaymentPending,
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	forced, err := f.svc.UpdateStatus(context.Background(), dto.UpdateOrderStatusRequest{
		OrderID: o.OrderNumber, Status: model.PaymentPending, Force: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, forced.PaymentStatus)

	_, err = f.svc.UpdateStatus(context.Background(), dto.UpdateOrderStatusRequest{
		OrderID: "ORD-NOPE", Status: model.PaymentSuccess,
	})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_UpdateStatus_PaymentRefGuard(t *testing.T) {
	f := newOrderFixture()
	o := f.seedOrder(uuid.New(), model.PaymentSuccess)
	o.PaymentRef = "pi_original"
	ctx := context.Background()

	other := "pi_other"
	_, err := f.svc.UpdateStatus(ctx, dto.UpdateOrderStatusRequest{
		OrderID: o.OrderNumber, Status: model.PaymentCompleted, PaymentRef: &other,
	})
	assert.ErrorIs(t, err, ErrPaymentRefMismatch)
	assert.Equal(t, "pi_original", f.orders.orders[o.OrderNumber].PaymentRef)
	assert.Equal(t, model.PaymentSuccess, f.orders.orders[o.OrderNumber].PaymentStatus)

	same := "pi_original"
	_, err = f.svc.UpdateStatus(ctx, dto.UpdateOrderStatusRequest{
		OrderID: o.OrderNumber, Status: model.PaymentCompleted, PaymentRef: &same,
	})
	require.NoError(t, err)

	moved, err := f.svc.UpdateStatus(ctx, dto.UpdateOrderStatusRequest{
		OrderID: o.OrderNumber, Status: model.PaymentCompleted, PaymentRef: &other, Force: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_other", moved.PaymentRef)

	fresh := f.seedOrder(uuid.New(), model.PaymentPending)
	attached, err := f.svc.UpdateStatus(ctx, dto.UpdateOrderStatusRequest{
		OrderID: fresh.OrderNumber, Status: model.PaymentSuccess, PaymentRef: &other,
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_other", attached.PaymentRef)
}

func TestOrderService_Delete(t *testing.T) {
	f := newOrderFixture()
	o := f.seedOrder(uuid.New(), model.PaymentFailed)

	require.NoError(t, f.svc.Delete(context.Background(), o.OrderNumber))
	assert.ErrorIs(t, f.svc.Delete(context.Background(), o.OrderNumber), ErrOrderNotFound)
}

func TestAddressService_SoftDelete(t *testing.T) {
	repo := newMockAddressRepo()
	svc := NewAddressService(repo)
	userID := uuid.New()

	addr, err := svc.Add(context.Background(), userID, dto.CreateAddressRequest{
		AddressLine: "1 Market St", City: "Izmir", State: "Izmir", Pincode: "35000", Country: "TR", Mobile: "555",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(context.Background(), uuid.New(), addr.ID), ErrAddressForbidden)
	require.NoError(t, svc.Delete(context.Background(), userID, addr.ID))
	assert.ErrorIs(t, svc.Delete(context.Background(), userID, addr.ID), ErrAddressNotFound)

	list, err := svc.List(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Len(t, repo.addrs, 1)
}

func TestAddressService_Update(t *testing.T) {
	repo := newMockAddressRepo()
	svc := NewAddressService(repo)
	userID := uuid.New()
	addr := repo.add(userID)
	ctx := context.Background()

	city := "  Ankara "
	got, err := svc.Update(ctx, userID, addr.ID, dto.UpdateAddressRequest{City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Ankara", got.City)
	assert.Equal(t, "1 Market St", got.AddressLine)
	assert.Equal(t, "Ankara", repo.addrs[addr.ID].City)

	blank := " "
	_, err = svc.Update(ctx, userID, addr.ID, dto.UpdateAddressRequest{State: &blank})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = svc.Update(ctx, uuid.New(), addr.ID, dto.UpdateAddressRequest{City: &city})
	assert.ErrorIs(t, err, ErrAddressForbidden)

	require.NoError(t, svc.Delete(ctx, userID, addr.ID))
	_, err = svc.Update(ctx, userID, addr.ID, dto.UpdateAddressRequest{City: &city})
	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestUserService_UpdateStatus_RevokesRefresh(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, testLog)
	user := repo.add(&model.User{Email: "s@example.com", Status: model.UserActive, RefreshTokenID: "jti"})

	got, err := svc.UpdateStatus(context.Background(), user.ID, model.UserSuspended)
	require.NoError(t, err)
	assert.Equal(t, model.UserSuspended, got.Status)
	assert.Empty(t, got.RefreshTokenID)

	_, err = svc.UpdateStatus(context.Background(), uuid.New(), model.UserActive)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.UpdateStatus(context.Background(), user.ID, model.UserStatus("Banned"))
	assert.ErrorIs(t, err, ErrInvalidUserStatus)
}
