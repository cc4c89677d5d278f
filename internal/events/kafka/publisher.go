// Package kafka publishes domain events to a kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"papernet/internal/events"
)

// Publisher produces one JSON record per domain event. Records are keyed by
// the entity they concern so per-instrument ordering survives partitioning.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// New connects to the brokers and ensures the topic exists. Topic creation
// is best-effort: brokers with auto-create or pre-provisioned topics reject
// the request harmlessly.
func New(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopics(ctx, 1, 1, nil, topic); err != nil {
		logger.WarnContext(ctx, "could not ensure kafka topic, continuing",
			"topic", topic,
			"error", err,
		)
	}

	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

func (p *Publisher) Emit(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(partitionKey(event)),
		Value: value,
		Topic: p.topic,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}

// partitionKey keys the record by the entity the event concerns.
func partitionKey(event events.Event) string {
	switch {
	case event.CreatePaper != nil:
		return event.CreatePaper.Paper.CUSIP.String()
	case event.PurchasePaper != nil:
		return event.PurchasePaper.Paper.CUSIP.String()
	case event.RedeemPaper != nil:
		return event.RedeemPaper.Paper.CUSIP.String()
	case event.ListOnMarket != nil:
		return event.ListOnMarket.Market.String()
	case event.AssignDid != nil:
		return event.AssignDid.Company.String()
	default:
		return string(event.Type)
	}
}
