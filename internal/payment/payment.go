// Package payment is the narrow contract to the external payment gateway.
package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/flicky/grocery-storefront/internal/apperr"
)

type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusRequiresAction        Status = "requires_action"
	StatusProcessing            Status = "processing"
	StatusSucceeded             Status = "succeeded"
	StatusCanceled              Status = "canceled"
)

const (
	MetaUserID            = "user_id"
	MetaDeliveryAddressID = "delivery_address_id"
	MetaDiscountCode      = "discount_code"
)

var (
	ErrAttemptNotFound = apperr.New(apperr.NotFound, "payment_not_found", "payment intent not found")
	ErrBadSignature    = apperr.New(apperr.Validation, "invalid_signature", "webhook signature verification failed")
	ErrUnavailable     = apperr.New(apperr.GatewayUnavailable, "gateway_unavailable", "payment gateway unavailable")
)

// Attempt is the gateway's view of one payment. It is never persisted as-is.
type Attempt struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	// AmountReceived is what the gateway actually collected.
	AmountReceived int64
	Currency       string
	Status         Status
	Metadata       map[string]string
}

func (a *Attempt) UserID() (uuid.UUID, bool) {
	id, err := uuid.Parse(a.Metadata[MetaUserID])
	return id, err == nil
}

func (a *Attempt) DeliveryAddressID() (uuid.UUID, bool) {
	id, err := uuid.Parse(a.Metadata[MetaDeliveryAddressID])
	return id, err == nil
}

func (a *Attempt) DiscountCode() string { return a.Metadata[MetaDiscountCode] }

// Charged returns the collected amount, falling back to the requested one.
func (a *Attempt) Charged() int64 {
	if a.AmountReceived > 0 {
		return a.AmountReceived
	}
	return a.AmountMinor
}

type CreateParams struct {
	AmountMinor       int64
	Currency          string
	UserID            uuid.UUID
	DeliveryAddressID uuid.UUID
	DiscountCode      string
	// IdempotencyKey is forwarded to the gateway so a retried create does not
	// open a second attempt.
	IdempotencyKey string
}

type EventType string

const (
	EventSucceeded EventType = "payment_intent.succeeded"
	EventFailed    EventType = "payment_intent.payment_failed"
)

type Event struct {
	ID      string
	Type    EventType
	Attempt *Attempt
}

type Gateway interface {
	CreateIntent(ctx context.Context, p CreateParams) (*Attempt, error)
	RetrieveIntent(ctx context.Context, id string) (*Attempt, error)
	// ParseWebhook verifies the signature and decodes a payment event.
	// Events of other types are returned with a nil Attempt.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
