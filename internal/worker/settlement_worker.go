package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/grocery-storefront/internal/events"
	"github.com/flicky/grocery-storefront/internal/model"
)

const (
	notifiedKeyPrefix = "settlement_notified:"
	idempotencyTTL    = 24 * time.Hour
)

// Notifier tells the customer their checkout went through.
type Notifier interface {
	NotifySettled(ctx context.Context, msg model.SettlementMessage) error
}

// LogNotifier stands in for the outbound mail collaborator.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifySettled(_ context.Context, msg model.SettlementMessage) error {
	n.log.Info("order confirmation",
		"user_id", msg.UserID,
		"payment_intent_id", msg.PaymentRef,
		"orders", msg.OrderNumbers,
		"amount_minor", msg.AmountMinor,
		"currency", msg.Currency,
	)
	return nil
}

// SendPasswordResetOTP logs the code itself at debug level only.
func (n *LogNotifier) SendPasswordResetOTP(ctx context.Context, user *model.User, otp string, expiresAt time.Time) error {
	n.log.Info("password reset code issued", "user_id", user.ID, "expires_at", expiresAt)
	n.log.DebugContext(ctx, "password reset code", "email", user.Email, "otp", otp)
	return nil
}

// Deduper remembers which settlements were already handled.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return d.client.Set(ctx, key, "1", ttl).Err()
}

type consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type SettlementWorker struct {
	channel  consumer
	dedupe   Deduper
	notifier Notifier
	log      *slog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

func NewSettlementWorker(ch consumer, dedupe Deduper, notifier Notifier, log *slog.Logger) *SettlementWorker {
	return &SettlementWorker{
		channel:  ch,
		dedupe:   dedupe,
		notifier: notifier,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (w *SettlementWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(events.SettledQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, open := <-msgs:
				if !open {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("settlement worker started", "queue", events.SettledQueue)
	return nil
}

func (w *SettlementWorker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *SettlementWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var settled model.SettlementMessage
	if err := json.Unmarshal(msg.Body, &settled); err != nil || settled.PaymentRef == "" {
		w.log.Error("unreadable settlement message", "error", err, "message_id", msg.MessageId)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("payment_intent_id", settled.PaymentRef, "user_id", settled.UserID)

	key := notifiedKeyPrefix + settled.PaymentRef
	seen, err := w.dedupe.Seen(ctx, key)
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if seen {
		log.Info("settlement already notified, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.notifier.NotifySettled(ctx, settled); err != nil {
		log.Error("notify settlement", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	if err := w.dedupe.Mark(ctx, key, idempotencyTTL); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("settlement notified", "orders", len(settled.OrderNumbers))
}
