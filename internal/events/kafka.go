package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/flicky/grocery-storefront/internal/model"
)

type kafkaProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher streams settlements to downstream consumers keyed by
// payment reference, so every record of one checkout lands on one partition.
type KafkaPublisher struct {
	client kafkaProducer
	topic  string
}

func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return cl, nil
}

func NewKafkaPublisher(client kafkaProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = SettledTopic
	}
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) PublishSettled(ctx context.Context, msg model.SettlementMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.PaymentRef),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "content-type", Value: []byte(ContentTypeJSON)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}
