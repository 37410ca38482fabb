package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/flicky/grocery-storefront/internal/apperr"
)

type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

// NewStripeGatewayWithBackends is used by tests to point the client at a fake server.
func NewStripeGatewayWithBackends(secretKey, webhookSecret string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateParams) (*Attempt, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountMinor),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(MetaUserID, p.UserID.String())
	params.AddMetadata(MetaDeliveryAddressID, p.DeliveryAddressID.String())
	params.AddMetadata(MetaDiscountCode, p.DiscountCode)
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", mapStripeError(err))
	}
	return toAttempt(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Attempt, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent %s: %w", id, mapStripeError(err))
	}
	return toAttempt(pi), nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, ErrBadSignature
	}

	out := &Event{ID: ev.ID, Type: EventType(ev.Type)}
	switch out.Type {
	case EventSucceeded, EventFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Attempt = toAttempt(&pi)
	}
	return out, nil
}

func toAttempt(pi *stripe.PaymentIntent) *Attempt {
	meta := make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		meta[k] = v
	}
	return &Attempt{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		AmountMinor:    pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Status:         Status(pi.Status),
		Metadata:       meta,
	}
}

// mapStripeError classifies a gateway failure: rejected requests become
// Gateway errors (400), outages and unknown transport failures become
// GatewayUnavailable (502).
func mapStripeError(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if serr.Code == stripe.ErrorCodeResourceMissing {
		return ErrAttemptNotFound
	}
	if serr.HTTPStatusCode >= http.StatusInternalServerError || serr.Type == stripe.ErrorTypeAPI {
		return fmt.Errorf("%w: %s", ErrUnavailable, serr.Msg)
	}
	msg := serr.Msg
	if msg == "" {
		msg = "payment gateway rejected the request"
	}
	return apperr.New(apperr.Gateway, "gateway_error", msg)
}
