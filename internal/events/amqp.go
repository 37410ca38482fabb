package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/grocery-storefront/internal/model"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQPPublisher struct {
	ch    amqpChannel
	queue string
}

func NewAMQPPublisher(ch amqpChannel) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, queue: SettledQueue}
}

func (p *AMQPPublisher) PublishSettled(ctx context.Context, msg model.SettlementMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  ContentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.PaymentRef,
		Timestamp:    msg.SettledAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// DeclareTopology declares the settlement queue with its dead-letter
// exchange and queue.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(SettledDLX, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(SettledDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(SettledDLQ, SettledQueue, SettledDLX, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(SettledQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    SettledDLX,
		"x-dead-letter-routing-key": SettledQueue,
	}); err != nil {
		return fmt.Errorf("declare settled queue: %w", err)
	}
	return nil
}
