package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
)

var (
	ErrOrderNotFound        = apperr.New(apperr.NotFound, "order_not_found", "order not found")
	ErrOrderAccessDenied    = apperr.New(apperr.Forbidden, "order_forbidden", "access denied")
	ErrInvalidTransition    = apperr.New(apperr.Conflict, "invalid_transition", "status transition not allowed")
	ErrOrderConflict        = apperr.New(apperr.Conflict, "order_conflict", "order was modified concurrently")
	ErrInvalidPaymentStatus = apperr.New(apperr.Validation, "invalid_status", "invalid payment status")
	ErrPaymentRefMismatch   = apperr.New(apperr.Conflict, "payment_ref_mismatch", "order already carries a different payment reference")
)

var transitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentPending: {model.PaymentSuccess, model.PaymentFailed},
	model.PaymentSuccess: {model.PaymentCompleted},
}

// CanTransition reports whether an order may move from one payment status to
// another without an admin override. Same-status updates are allowed.
func CanTransition(from, to model.PaymentStatus) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func newOrderNumber() string { return "ORD-" + ulid.Make().String() }

type OrderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	addressRepo repository.AddressRepository
	userRepo    repository.UserRepository
	log         *slog.Logger
}

func NewOrderService(orderRepo repository.OrderRepository, productRepo repository.ProductRepository,
	addressRepo repository.AddressRepository, userRepo repository.UserRepository, log *slog.Logger) *OrderService {
	return &OrderService{orderRepo: orderRepo, productRepo: productRepo, addressRepo: addressRepo, userRepo: userRepo, log: log}
}

// Create records a manual order in pending state for the given user.
func (s *OrderService) Create(ctx context.Context, req dto.CreateOrderRequest) (*model.Order, error) {
	user, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if _, err := ownedAddress(ctx, s.addressRepo, req.UserID, req.DeliveryAddressID); err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if product.Stock < req.Quantity {
		return nil, ErrInsufficientStock
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	addrID := req.DeliveryAddressID
	order := &model.Order{
		OrderNumber:       newOrderNumber(),
		UserID:            req.UserID,
		ProductID:         product.ID,
		Quantity:          req.Quantity,
		ProductDetails:    model.ProductSnapshot{Name: product.Name, Images: product.Images},
		Subtotal:          product.Price.Mul(qty),
		Total:             product.EffectivePrice().Mul(qty),
		PaymentStatus:     model.PaymentPending,
		DeliveryAddressID: &addrID,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.log.Info("manual order created", "order_id", order.OrderNumber, "user_id", order.UserID)
	return order, nil
}

// GetByOrderNumber returns an order visible to the requester: its owner or
// an admin.
func (s *OrderService) GetByOrderNumber(ctx context.Context, number string, requester uuid.UUID, isAdmin bool) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !isAdmin && order.UserID != requester {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.Order, int, error) {
	orders, total, err := s.orderRepo.ListForUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

func (s *OrderService) ListAll(ctx context.Context, req dto.ListOrdersRequest) ([]model.Order, int, error) {
	orders, total, err := s.orderRepo.ListAll(ctx, repository.OrderFilter{
		Status: model.PaymentStatus(req.Status),
		Search: req.Search,
		Limit:  req.Limit,
		Offset: (req.Page - 1) * req.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus moves an order along the payment status table. Force bypasses
// the table for admin corrections.
func (s *OrderService) UpdateStatus(ctx context.Context, req dto.UpdateOrderStatusRequest) (*model.Order, error) {
	if !req.Status.Valid() {
		return nil, ErrInvalidPaymentStatus
	}
	order, err := s.orderRepo.GetByOrderNumber(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	from := order.PaymentStatus
	if !req.Force && !CanTransition(from, req.Status) {
		return nil, ErrInvalidTransition
	}
	// A settled order is replayed by its payment reference; moving it to
	// another reference needs the override.
	if !req.Force && req.PaymentRef != nil && order.PaymentRef != "" && *req.PaymentRef != order.PaymentRef {
		return nil, ErrPaymentRefMismatch
	}

	order.PaymentStatus = req.Status
	if req.PaymentRef != nil {
		order.PaymentRef = *req.PaymentRef
	}
	if req.InvoiceRef != nil {
		order.InvoiceRef = *req.InvoiceRef
	}
	if err := s.orderRepo.UpdateStatus(ctx, order, from); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrOrderConflict
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	s.log.Info("order status updated", "order_id", order.OrderNumber, "from", from, "to", req.Status, "force", req.Force)
	return order, nil
}

func (s *OrderService) Delete(ctx context.Context, number string) error {
	if err := s.orderRepo.Delete(ctx, number); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("delete order: %w", err)
	}
	s.log.Info("order deleted", "order_id", number)
	return nil
}

func ToOrderResponse(o *model.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:                o.ID,
		OrderID:           o.OrderNumber,
		UserID:            o.UserID,
		ProductID:         o.ProductID,
		Quantity:          o.Quantity,
		ProductDetails:    o.ProductDetails,
		Subtotal:          o.Subtotal,
		Total:             o.Total,
		PaymentStatus:     o.PaymentStatus,
		DeliveryAddressID: o.DeliveryAddressID,
		PaymentRef:        o.PaymentRef,
		InvoiceRef:        o.InvoiceRef,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func ToOrderResponses(orders []model.Order) []dto.OrderResponse {
	out := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, ToOrderResponse(&orders[i]))
	}
	return out
}
