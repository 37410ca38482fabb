package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/discount"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/events"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/payment"
	"github.com/flicky/grocery-storefront/internal/repository"
)

var (
	ErrEmptyCart            = apperr.New(apperr.Validation, "empty_cart", "cart is empty")
	ErrAmountTooSmall       = apperr.New(apperr.Validation, "amount_below_minimum", "order total is below the minimum charge")
	ErrConfirmInProgress    = apperr.New(apperr.Conflict, "confirm_in_progress", "payment confirmation already in progress")
	ErrPaymentNotSucceeded  = apperr.New(apperr.Gateway, "payment_not_succeeded", "payment has not succeeded")
	ErrPaymentForbidden     = apperr.New(apperr.Forbidden, "payment_forbidden", "payment belongs to another user")
	ErrSettlementIncomplete = apperr.New(apperr.SettlementIncomplete, "settlement_incomplete", "payment captured but orders not yet recorded, retry confirmation")
)

const confirmLockPrefix = "checkout:confirm:"

type CheckoutConfig struct {
	Currency string
	// MinAmount is the smallest chargeable total in minor units.
	MinAmount int64
	LockTTL   time.Duration
}

type CheckoutService struct {
	cartRepo     repository.CartRepository
	addressRepo  repository.AddressRepository
	orderRepo    repository.OrderRepository
	checkoutRepo repository.CheckoutRepository
	gateway      payment.Gateway
	discounts    *discount.Resolver
	locker       Locker
	publisher    events.Publisher
	cfg          CheckoutConfig
	log          *slog.Logger
	now          func() time.Time
}

func NewCheckoutService(
	cartRepo repository.CartRepository,
	addressRepo repository.AddressRepository,
	orderRepo repository.OrderRepository,
	checkoutRepo repository.CheckoutRepository,
	gateway payment.Gateway,
	discounts *discount.Resolver,
	locker Locker,
	publisher events.Publisher,
	cfg CheckoutConfig,
	log *slog.Logger,
) *CheckoutService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &CheckoutService{
		cartRepo: cartRepo, addressRepo: addressRepo, orderRepo: orderRepo, checkoutRepo: checkoutRepo,
		gateway: gateway, discounts: discounts, locker: locker, publisher: publisher,
		cfg: cfg, log: log, now: time.Now,
	}
}

// CreateIntent prices the live cart and opens a gateway payment attempt for
// its total. Nothing is reserved or persisted locally.
func (s *CheckoutService) CreateIntent(ctx context.Context, userID uuid.UUID, req dto.CreateIntentRequest) (*dto.CreateIntentResponse, error) {
	if _, err := ownedAddress(ctx, s.addressRepo, userID, req.DeliveryAddressID); err != nil {
		return nil, err
	}
	d, err := resolveDiscount(s.discounts, req.DiscountCode)
	if err != nil {
		return nil, err
	}

	lines, err := s.cartRepo.ListLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	q := PriceLines(lines, d)
	if len(q.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	amount := MinorUnits(q.Total)
	if amount < s.cfg.MinAmount {
		return nil, ErrAmountTooSmall
	}

	code := ""
	if d != nil {
		code = d.Code
	}
	attempt, err := s.gateway.CreateIntent(ctx, payment.CreateParams{
		AmountMinor:       amount,
		Currency:          s.cfg.Currency,
		UserID:            userID,
		DeliveryAddressID: req.DeliveryAddressID,
		DiscountCode:      code,
		IdempotencyKey:    intentKey(userID, req.DeliveryAddressID, code, s.cfg.Currency, amount, q.Lines),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment intent created",
		"payment_intent_id", attempt.ID, "user_id", userID, "amount", amount, "currency", attempt.Currency)

	return &dto.CreateIntentResponse{
		ClientSecret:    attempt.ClientSecret,
		PaymentIntentID: attempt.ID,
		Amount:          attempt.AmountMinor,
		Currency:        attempt.Currency,
		Subtotal:        q.Subtotal,
		DiscountAmount:  q.DiscountAmount,
		Total:           q.Total,
	}, nil
}

// Confirm verifies the attempt with the gateway and materializes the cart
// into orders. Confirming an already materialized attempt returns the
// orders recorded the first time.
func (s *CheckoutService) Confirm(ctx context.Context, userID uuid.UUID, req dto.ConfirmPaymentRequest) (*dto.ConfirmPaymentResponse, error) {
	ref := req.PaymentIntentID

	orders, done, err := s.materialized(ctx, ref, userID)
	if err != nil {
		return nil, err
	}
	if done {
		return confirmResponse(ref, orders), nil
	}

	release, ok, err := s.locker.TryLock(ctx, confirmLockPrefix+ref, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfirmInProgress
	}
	defer release()

	orders, done, err = s.materialized(ctx, ref, userID)
	if err != nil {
		return nil, err
	}
	if done {
		return confirmResponse(ref, orders), nil
	}

	attempt, err := s.gateway.RetrieveIntent(ctx, ref)
	if err != nil {
		return nil, err
	}
	if attempt.Status != payment.StatusSucceeded {
		s.log.Warn("confirm on unsettled payment", "payment_intent_id", ref, "user_id", userID, "status", attempt.Status)
		return nil, ErrPaymentNotSucceeded
	}
	if owner, ok := attempt.UserID(); !ok || owner != userID {
		return nil, ErrPaymentForbidden
	}
	if _, err := ownedAddress(ctx, s.addressRepo, userID, req.DeliveryAddressID); err != nil {
		return nil, err
	}

	addrID := req.DeliveryAddressID
	orders, err = s.settle(ctx, attempt, userID, &addrID)
	if err != nil {
		return nil, err
	}
	return confirmResponse(ref, orders), nil
}

// HandleWebhook applies a signed gateway event. A succeeded payment settles
// through the same path as Confirm.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	if ev.Attempt == nil {
		s.log.Debug("ignoring webhook event", "event_id", ev.ID, "type", ev.Type)
		return nil
	}
	attempt := ev.Attempt

	userID, ok := attempt.UserID()
	if !ok {
		s.log.Warn("webhook payment without user metadata", "event_id", ev.ID, "payment_intent_id", attempt.ID)
		return nil
	}
	var addrID *uuid.UUID
	if id, ok := attempt.DeliveryAddressID(); ok {
		addrID = &id
	}

	switch ev.Type {
	case payment.EventSucceeded:
		release, ok, err := s.locker.TryLock(ctx, confirmLockPrefix+attempt.ID, s.cfg.LockTTL)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConfirmInProgress
		}
		defer release()

		_, err = s.settle(ctx, attempt, userID, addrID)
		if errors.Is(err, ErrEmptyCart) {
			s.log.Warn("succeeded payment with empty cart", "payment_intent_id", attempt.ID, "user_id", userID)
			return nil
		}
		return err

	case payment.EventFailed:
		if _, err := s.checkoutRepo.CreateIntent(ctx, s.intentRecord(attempt, userID, addrID)); err != nil {
			return fmt.Errorf("record checkout intent: %w", err)
		}
		if err := s.checkoutRepo.MarkFailed(ctx, attempt.ID); err != nil {
			return err
		}
		s.log.Info("payment failed", "payment_intent_id", attempt.ID, "user_id", userID)
	}
	return nil
}

// materialized reports whether ref was already settled and, if so, returns
// the stored orders.
func (s *CheckoutService) materialized(ctx context.Context, ref string, userID uuid.UUID) ([]model.Order, bool, error) {
	intent, err := s.checkoutRepo.GetIntent(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	if intent == nil || intent.Status != model.IntentMaterialized {
		return nil, false, nil
	}
	if intent.UserID != userID {
		return nil, true, ErrPaymentForbidden
	}
	orders, err := s.orderRepo.ListByPaymentRef(ctx, ref)
	if err != nil {
		return nil, true, fmt.Errorf("list orders by payment: %w", err)
	}
	return orders, true, nil
}

// settle records the intent and turns the user's current cart into orders in
// one transaction. Callers hold the confirm lock for attempt.ID.
func (s *CheckoutService) settle(ctx context.Context, attempt *payment.Attempt, userID uuid.UUID, addrID *uuid.UUID) ([]model.Order, error) {
	ref := attempt.ID
	log := s.log.With("payment_intent_id", ref, "user_id", userID)

	intent, err := s.checkoutRepo.CreateIntent(ctx, s.intentRecord(attempt, userID, addrID))
	if err != nil {
		return nil, fmt.Errorf("record checkout intent: %w", err)
	}
	if intent.UserID != userID {
		return nil, ErrPaymentForbidden
	}
	if intent.Status == model.IntentMaterialized {
		return s.orderRepo.ListByPaymentRef(ctx, ref)
	}

	d, err := resolveDiscount(s.discounts, attempt.DiscountCode())
	if err != nil {
		log.Warn("discount code no longer resolves", "discount_code", attempt.DiscountCode())
		d = nil
	}
	lines, err := s.cartRepo.ListLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	q := PriceLines(lines, d)
	if len(q.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	charged := attempt.Charged()
	if MinorUnits(q.Total) != charged {
		log.Warn("cart total differs from charged amount", "cart_total", MinorUnits(q.Total), "charged", charged)
	}

	shares := allocate(charged, q.Lines)
	orders := make([]model.Order, 0, len(q.Lines))
	for i, pl := range q.Lines {
		orders = append(orders, model.Order{
			OrderNumber: newOrderNumber(),
			UserID:      userID,
			ProductID:   pl.Line.ProductID,
			Quantity:    pl.Line.Quantity,
			ProductDetails: model.ProductSnapshot{
				Name:   pl.Line.Product.Name,
				Images: pl.Line.Product.Images,
			},
			Subtotal:          pl.ListTotal,
			Total:             FromMinorUnits(shares[i]),
			PaymentStatus:     model.PaymentSuccess,
			DeliveryAddressID: addrID,
			PaymentRef:        ref,
		})
	}
	consumed := make([]repository.ConsumedLine, 0, len(lines))
	for _, l := range lines {
		consumed = append(consumed, repository.ConsumedLine{ID: l.ID, Version: l.Version})
	}

	if err := s.checkoutRepo.Materialize(ctx, ref, orders, consumed); err != nil {
		if errors.Is(err, repository.ErrAlreadyMaterialized) {
			return s.orderRepo.ListByPaymentRef(ctx, ref)
		}
		log.Error("materialize checkout", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSettlementIncomplete, err)
	}

	numbers := make([]string, 0, len(orders))
	for _, o := range orders {
		numbers = append(numbers, o.OrderNumber)
	}
	msg := model.SettlementMessage{
		PaymentRef:   ref,
		UserID:       userID,
		OrderNumbers: numbers,
		AmountMinor:  charged,
		Currency:     attempt.Currency,
		SettledAt:    s.now().UTC(),
	}
	if err := s.publisher.PublishSettled(ctx, msg); err != nil {
		log.Warn("publish settlement", "error", err)
	}

	log.Info("checkout materialized", "orders", len(orders), "charged", charged)
	return orders, nil
}

func (s *CheckoutService) intentRecord(a *payment.Attempt, userID uuid.UUID, addrID *uuid.UUID) *model.CheckoutIntent {
	return &model.CheckoutIntent{
		PaymentRef:        a.ID,
		UserID:            userID,
		DeliveryAddressID: addrID,
		DiscountCode:      a.DiscountCode(),
		AmountMinor:       a.Charged(),
		Currency:          a.Currency,
	}
}

func confirmResponse(ref string, orders []model.Order) *dto.ConfirmPaymentResponse {
	return &dto.ConfirmPaymentResponse{Orders: ToOrderResponses(orders), PaymentIntentID: ref}
}

// intentKey is stable for an unchanged cart at unchanged prices, so a
// double-submitted create maps onto the same gateway attempt. Any change to
// the charged amount or a unit price yields a new key.
func intentKey(userID, addrID uuid.UUID, code, currency string, amount int64, lines []PricedLine) string {
	h := sha256.New()
	for _, part := range []string{userID.String(), addrID.String(), code, currency, strconv.FormatInt(amount, 10)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	for _, l := range lines {
		h.Write([]byte(l.Line.ID.String()))
		h.Write([]byte(strconv.Itoa(l.Line.Version)))
		h.Write([]byte(strconv.Itoa(l.Line.Quantity)))
		h.Write([]byte(l.UnitPrice.String()))
		if l.Line.Product != nil {
			h.Write([]byte(strconv.Itoa(l.Line.Product.Version)))
		}
		h.Write([]byte{0})
	}
	return "checkout-" + hex.EncodeToString(h.Sum(nil))
}
