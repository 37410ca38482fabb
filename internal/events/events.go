// Package events publishes settlement notifications to the message brokers.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/flicky/grocery-storefront/internal/model"
)

const (
	SettledQueue    = "orders.settled"
	SettledDLX      = "orders.settled.dlx"
	SettledDLQ      = "orders.settled.dlq"
	SettledTopic    = "orders.settled"
	ContentTypeJSON = "application/json"
)

type Publisher interface {
	PublishSettled(ctx context.Context, msg model.SettlementMessage) error
}

// Fanout delivers to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) PublishSettled(ctx context.Context, msg model.SettlementMessage) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishSettled(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish settled %s: %w", msg.PaymentRef, errors.Join(errs...))
	}
	return nil
}

// Nop drops every message. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishSettled(context.Context, model.SettlementMessage) error { return nil }
