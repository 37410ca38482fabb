package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/discount"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
)

var (
	ErrProductNotFound   = apperr.New(apperr.NotFound, "product_not_found", "product not found")
	ErrInsufficientStock = apperr.New(apperr.InsufficientStock, "insufficient_stock", "insufficient stock")
	ErrCartLineNotFound  = apperr.New(apperr.NotFound, "cart_line_not_found", "cart line not found")
	ErrCartLineForbidden = apperr.New(apperr.Forbidden, "cart_line_forbidden", "cart line belongs to another user")
	ErrCartConflict      = apperr.New(apperr.Conflict, "cart_conflict", "cart line was modified concurrently")
	ErrInvalidQuantity   = apperr.New(apperr.Validation, "invalid_quantity", "quantity must be positive")
)

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	discounts   *discount.Resolver
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, discounts *discount.Resolver) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo, discounts: discounts}
}

// View returns the cart priced against live product data.
func (s *CartService) View(ctx context.Context, userID uuid.UUID, discountCode string) (*Quote, error) {
	d, err := resolveDiscount(s.discounts, discountCode)
	if err != nil {
		return nil, err
	}
	lines, err := s.cartRepo.ListLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	q := PriceLines(lines, d)
	return &q, nil
}

// AddLine adds qty of a product, merging into an existing line for the same
// product. Stock must cover the merged quantity.
func (s *CartService) AddLine(ctx context.Context, userID, productID uuid.UUID, qty int) (*model.CartLine, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.Publish {
		return nil, ErrProductNotFound
	}

	existing, err := s.cartRepo.GetLineByProduct(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("get cart line: %w", err)
	}

	want := qty
	if existing != nil {
		want += existing.Quantity
	}
	if product.Stock < want {
		return nil, ErrInsufficientStock
	}

	if existing != nil {
		existing.Quantity = want
		if err := s.cartRepo.UpdateQuantity(ctx, existing); err != nil {
			return nil, cartWriteError(err)
		}
		existing.Product = product
		return existing, nil
	}

	line := &model.CartLine{UserID: userID, ProductID: productID, Quantity: qty}
	if err := s.cartRepo.InsertLine(ctx, line); err != nil {
		return nil, cartWriteError(err)
	}
	line.Product = product
	return line, nil
}

// UpdateLine sets the quantity of a line. A quantity of zero or less removes
// it. When version is given it must match the stored line.
func (s *CartService) UpdateLine(ctx context.Context, userID, lineID uuid.UUID, qty int, version *int) (*model.CartLine, error) {
	line, err := s.ownedLine(ctx, userID, lineID)
	if err != nil {
		return nil, err
	}
	if version != nil && *version != line.Version {
		return nil, ErrCartConflict
	}

	if qty <= 0 {
		if err := s.cartRepo.DeleteLine(ctx, userID, lineID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrCartLineNotFound
			}
			return nil, fmt.Errorf("delete cart line: %w", err)
		}
		return nil, nil
	}

	product, err := s.productRepo.GetByID(ctx, line.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.Stock < qty {
		return nil, ErrInsufficientStock
	}

	line.Quantity = qty
	if err := s.cartRepo.UpdateQuantity(ctx, line); err != nil {
		return nil, cartWriteError(err)
	}
	line.Product = product
	return line, nil
}

func (s *CartService) RemoveLine(ctx context.Context, userID, lineID uuid.UUID) error {
	if _, err := s.ownedLine(ctx, userID, lineID); err != nil {
		return err
	}
	if err := s.cartRepo.DeleteLine(ctx, userID, lineID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCartLineNotFound
		}
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.cartRepo.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *CartService) ownedLine(ctx context.Context, userID, lineID uuid.UUID) (*model.CartLine, error) {
	line, err := s.cartRepo.GetLine(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("get cart line: %w", err)
	}
	if line == nil {
		return nil, ErrCartLineNotFound
	}
	if line.UserID != userID {
		return nil, ErrCartLineForbidden
	}
	return line, nil
}

func cartWriteError(err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return ErrCartConflict
	}
	return fmt.Errorf("write cart line: %w", err)
}
