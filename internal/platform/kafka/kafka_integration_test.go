//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/cernops/keystone/internal/platform/config"
	"github.com/cernops/keystone/internal/platform/kafka"
	"github.com/cernops/keystone/internal/platform/logger"
	audit "github.com/cernops/keystone/pkg/platform/audit"
	"github.com/cernops/keystone/pkg/testutil/containers"
)

func TestProducer_PublishRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	topic := "audit-" + time.Now().Format("150405.000")
	p, err := kafka.NewProducer(config.KafkaConfig{Brokers: []string{broker.Broker}, Topic: topic}, logger.NewNop())
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.EnsureTopic(ctx, 1))
	require.NoError(t, p.EnsureTopic(ctx, 1), "second call must tolerate an existing topic")

	delivered, err := p.Publish(ctx, []audit.OutboxEntry{
		{ID: "e1", AggregateID: "d1", EventType: "domain_created", Payload: []byte(`{"id":"e1"}`)},
		{ID: "e2", AggregateID: "d1", EventType: "domain_deleted", Payload: []byte(`{"id":"e2"}`)},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e2"}, delivered)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []string
	for len(got) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			got = append(got, string(r.Value))
		})
	}
	require.Equal(t, []string{`{"id":"e1"}`, `{"id":"e2"}`}, got)
}
