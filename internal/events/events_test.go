package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/flicky/grocery-storefront/internal/model"
)

type fakeChannel struct {
	key string
	pub amqp.Publishing
	err error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.key = key
	f.pub = msg
	return f.err
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func sampleMessage() model.SettlementMessage {
	return model.SettlementMessage{
		PaymentRef:   "pi_123",
		UserID:       uuid.New(),
		OrderNumbers: []string{"ORD-1", "ORD-2"},
		AmountMinor:  900,
		Currency:     "try",
		SettledAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestAMQPPublisher(t *testing.T) {
	ch := &fakeChannel{}
	msg := sampleMessage()

	require.NoError(t, NewAMQPPublisher(ch).PublishSettled(context.Background(), msg))

	assert.Equal(t, SettledQueue, ch.key)
	assert.Equal(t, amqp.Persistent, ch.pub.DeliveryMode)
	assert.Equal(t, "pi_123", ch.pub.MessageId)

	var got model.SettlementMessage
	require.NoError(t, json.Unmarshal(ch.pub.Body, &got))
	assert.Equal(t, msg.OrderNumbers, got.OrderNumbers)
	assert.Equal(t, msg.UserID, got.UserID)
}

func TestKafkaPublisher(t *testing.T) {
	prod := &fakeProducer{}
	require.NoError(t, NewKafkaPublisher(prod, "").PublishSettled(context.Background(), sampleMessage()))

	require.Len(t, prod.records, 1)
	assert.Equal(t, SettledTopic, prod.records[0].Topic)
	assert.Equal(t, []byte("pi_123"), prod.records[0].Key)

	prod.err = errors.New("broker down")
	err := NewKafkaPublisher(prod, "custom").PublishSettled(context.Background(), sampleMessage())
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, "custom", prod.records[1].Topic)
}

func TestFanout_JoinsErrors(t *testing.T) {
	ok := &fakeChannel{}
	bad := &fakeProducer{err: errors.New("broker down")}

	f := Fanout{NewAMQPPublisher(ok), NewKafkaPublisher(bad, ""), nil, Nop{}}
	err := f.PublishSettled(context.Background(), sampleMessage())

	require.Error(t, err)
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, SettledQueue, ok.key, "healthy publishers still receive the message")
}
