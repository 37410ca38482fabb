package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/grocery-storefront/internal/discount"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
)

// mockCartRepo joins lines with the products of the given product mock the
// way the SQL LEFT JOIN does.
type mockCartRepo struct {
	lines    map[uuid.UUID]*model.CartLine
	products *mockProductRepo
}

func newMockCartRepo(products *mockProductRepo) *mockCartRepo {
	return &mockCartRepo{lines: make(map[uuid.UUID]*model.CartLine), products: products}
}

func (m *mockCartRepo) ListLines(_ context.Context, userID uuid.UUID) ([]model.CartLine, error) {
	var out []model.CartLine
	for _, l := range m.lines {
		if l.UserID != userID {
			continue
		}
		cp := *l
		if p, ok := m.products.products[l.ProductID]; ok {
			pc := *p
			cp.Product = &pc
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockCartRepo) GetLine(_ context.Context, lineID uuid.UUID) (*model.CartLine, error) {
	l, ok := m.lines[lineID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *mockCartRepo) GetLineByProduct(_ context.Context, userID, productID uuid.UUID) (*model.CartLine, error) {
	for _, l := range m.lines {
		if l.UserID == userID && l.ProductID == productID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockCartRepo) InsertLine(ctx context.Context, line *model.CartLine) error {
	if existing, _ := m.GetLineByProduct(ctx, line.UserID, line.ProductID); existing != nil {
		return repository.ErrVersionConflict
	}
	line.ID = uuid.New()
	line.Version = 1
	line.CreatedAt = time.Now().Add(time.Duration(len(m.lines)) * time.Millisecond)
	line.UpdatedAt = line.CreatedAt
	cp := *line
	cp.Product = nil
	m.lines[line.ID] = &cp
	return nil
}

func (m *mockCartRepo) UpdateQuantity(_ context.Context, line *model.CartLine) error {
	stored, ok := m.lines[line.ID]
	if !ok || stored.Version != line.Version {
		return repository.ErrVersionConflict
	}
	stored.Quantity = line.Quantity
	stored.Version++
	line.Version = stored.Version
	return nil
}

func (m *mockCartRepo) DeleteLine(_ context.Context, userID, lineID uuid.UUID) error {
	l, ok := m.lines[lineID]
	if !ok || l.UserID != userID {
		return pgx.ErrNoRows
	}
	delete(m.lines, lineID)
	return nil
}

func (m *mockCartRepo) Clear(_ context.Context, userID uuid.UUID) error {
	for id, l := range m.lines {
		if l.UserID == userID {
			delete(m.lines, id)
		}
	}
	return nil
}

func newCartFixture() (*CartService, *mockCartRepo, *mockProductRepo) {
	products := newMockProductRepo()
	carts := newMockCartRepo(products)
	return NewCartService(carts, products, discount.Default()), carts, products
}

func TestCartService_AddLine_Merges(t *testing.T) {
	svc, carts, products := newCartFixture()
	userID := uuid.New()
	apple := products.add("apple", "5", 10)

	first, err := svc.AddLine(context.Background(), userID, apple.ID, 3)
	require.NoError(t, err)
	second, err := svc.AddLine(context.Background(), userID, apple.ID, 4)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 7, second.Quantity)
	assert.Len(t, carts.lines, 1)
}

func TestCartService_AddLine_OverStockLeavesCartUnchanged(t *testing.T) {
	svc, carts, products := newCartFixture()
	userID := uuid.New()
	apple := products.add("apple", "5", 5)

	_, err := svc.AddLine(context.Background(), userID, apple.ID, 4)
	require.NoError(t, err)

	_, err = svc.AddLine(context.Background(), userID, apple.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	lines, err := carts.ListLines(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 4, lines[0].Quantity)
}

func TestCartService_AddLine_Rejections(t *testing.T) {
	svc, _, products := newCartFixture()
	userID := uuid.New()

	_, err := svc.AddLine(context.Background(), userID, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrProductNotFound)

	hidden := products.add("draft", "5", 5)
	hidden.Publish = false
	_, err = svc.AddLine(context.Background(), userID, hidden.ID, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)

	apple := products.add("apple", "5", 5)
	_, err = svc.AddLine(context.Background(), userID, apple.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCartService_UpdateLine(t *testing.T) {
	svc, carts, products := newCartFixture()
	userID := uuid.New()
	apple := products.add("apple", "5", 5)
	line, err := svc.AddLine(context.Background(), userID, apple.ID, 1)
	require.NoError(t, err)

	updated, err := svc.UpdateLine(context.Background(), userID, line.ID, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)

	_, err = svc.UpdateLine(context.Background(), userID, line.ID, 6, nil)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	stale := 1
	_, err = svc.UpdateLine(context.Background(), userID, line.ID, 2, &stale)
	assert.ErrorIs(t, err, ErrCartConflict)

	_, err = svc.UpdateLine(context.Background(), uuid.New(), line.ID, 2, nil)
	assert.ErrorIs(t, err, ErrCartLineForbidden)

	_, err = svc.UpdateLine(context.Background(), userID, uuid.New(), 2, nil)
	assert.ErrorIs(t, err, ErrCartLineNotFound)

	removed, err := svc.UpdateLine(context.Background(), userID, line.ID, 0, nil)
	require.NoError(t, err)
	assert.Nil(t, removed)
	assert.Empty(t, carts.lines)
}

func TestCartService_RemoveAndClear(t *testing.T) {
	svc, carts, products := newCartFixture()
	userID := uuid.New()
	apple := products.add("apple", "5", 5)
	pear := products.add("pear", "6", 5)

	line, err := svc.AddLine(context.Background(), userID, apple.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), userID, pear.ID, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RemoveLine(context.Background(), uuid.New(), line.ID), ErrCartLineForbidden)
	require.NoError(t, svc.RemoveLine(context.Background(), userID, line.ID))
	assert.Len(t, carts.lines, 1)

	require.NoError(t, svc.Clear(context.Background(), userID))
	assert.Empty(t, carts.lines)
}

func TestCartService_View_UsesLiveProductsAndDiscount(t *testing.T) {
	svc, _, products := newCartFixture()
	userID := uuid.New()
	apple := products.add("apple", "500", 5)
	pear := products.add("pear", "250", 5)

	_, err := svc.AddLine(context.Background(), userID, apple.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), userID, pear.ID, 2)
	require.NoError(t, err)

	apple.Discount = decimal.NewFromInt(10)
	delete(products.products, pear.ID)

	q, err := svc.View(context.Background(), userID, "welcome10")
	require.NoError(t, err)
	require.Len(t, q.Lines, 1)
	require.Len(t, q.Unavailable, 1)
	assert.True(t, q.Subtotal.Equal(decimal.NewFromInt(450)))
	assert.True(t, q.DiscountAmount.Equal(decimal.NewFromInt(45)))
	assert.True(t, q.Total.Equal(decimal.NewFromInt(405)))

	_, err = svc.View(context.Background(), userID, "NOPE")
	assert.ErrorIs(t, err, ErrUnknownDiscount)
}
