// Package kafka publishes outbox entries to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/cernops/keystone/internal/platform/config"
	audit "github.com/cernops/keystone/pkg/platform/audit"
)

// Producer writes outbox entries to one topic, keyed by aggregate ID so
// events for one domain keep their order.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewProducer connects to the configured brokers.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.ZstdCompression(), kgo.NoCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{client: client, topic: cfg.Topic, logger: logger}, nil
}

// EnsureTopic creates the topic when it does not exist.
func (p *Producer) EnsureTopic(ctx context.Context, partitions int32) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopic(ctx, partitions, -1, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

// Publish produces entries synchronously and returns the IDs the broker
// acknowledged. The returned error joins every per-record failure.
func (p *Producer) Publish(ctx context.Context, entries []audit.OutboxEntry) ([]string, error) {
	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.EventType)},
				{Key: "outbox_id", Value: []byte(e.ID)},
			},
		})
	}

	results := p.client.ProduceSync(ctx, records...)
	delivered := make([]string, 0, len(entries))
	var errs []error
	for i, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("produce %s: %w", entries[i].ID, res.Err))
			continue
		}
		delivered = append(delivered, entries[i].ID)
	}
	if len(errs) > 0 {
		p.logger.WarnContext(ctx, "kafka produce partially failed",
			"delivered", len(delivered),
			"failed", len(errs),
		)
	}
	return delivered, errors.Join(errs...)
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() {
	p.client.Close()
}
