//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"impactledger/internal/ledger"
	"impactledger/internal/platform/config"
	"impactledger/internal/platform/kafka"
	audit "impactledger/pkg/platform/audit"
	auditpostgres "impactledger/pkg/platform/audit/store/postgres"
	"impactledger/pkg/platform/audit/worker"
	"impactledger/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	kafka    *containers.KafkaContainer
	producer *kafka.Producer
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.Postgres(s.T())
	s.kafka = mgr.Kafka(s.T())

	producer, err := kafka.NewProducer(config.KafkaConfig{Brokers: s.kafka.Brokers})
	s.Require().NoError(err)
	s.producer = producer
}

func (s *RelaySuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func (s *RelaySuite) consume(topic string, want int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	var records []*kgo.Record
	for len(records) < want {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			break
		}
		s.Require().Empty(fetches.Errors())
		records = append(records, fetches.Records()...)
	}
	return records
}

func (s *RelaySuite) TestRelaysCommittedEventsOnce() {
	ctx := context.Background()
	store := auditpostgres.New(s.postgres.DB)
	manager := ledger.NewPostgresTx(s.postgres.DB, 0)

	err := manager.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.Append(ctx, audit.New(audit.EventDonationMade, "0xdonor", "ngo-relay").WithAmount(975_000)); err != nil {
			return err
		}
		return store.Append(ctx, audit.New(audit.EventFeeCharged, "0xdonor", "ngo-relay").WithAmount(25_000))
	})
	s.Require().NoError(err)

	prefix := "relay-" + time.Now().Format("150405.000000")
	relay := worker.NewRelay(store, s.producer, prefix, worker.WithTx(manager.RunInTx))
	s.Require().NoError(s.producer.EnsureTopics(ctx, 1, relay.Topics()...))

	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	n, err = relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n, "entries are marked after the broker acks")

	records := s.consume(relay.Topic(string(audit.CategoryLedger)), 2)
	s.Require().Len(records, 2)
	s.Equal("ngo-relay", string(records[0].Key))

	var payload auditpostgres.OutboxPayload
	s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
	s.Equal(string(audit.EventDonationMade), payload.Action)
	s.Equal(int64(975_000), payload.Amount)

	headers := map[string]string{}
	for _, h := range records[1].Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(string(audit.EventFeeCharged), headers["event_type"])
}

func (s *RelaySuite) TestRolledBackEventsAreNeverRelayed() {
	ctx := context.Background()
	store := auditpostgres.New(s.postgres.DB)
	manager := ledger.NewPostgresTx(s.postgres.DB, 0)

	err := manager.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.Append(ctx, audit.New(audit.EventDonationMade, "0xdonor", "ngo-aborted")); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Require().ErrorIs(err, context.Canceled)

	entries, err := store.FetchUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(entries)
}
