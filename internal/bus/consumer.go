package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/cloudsentinel/riskguard/internal/telemetry"
	"github.com/cloudsentinel/riskguard/pkg/identity"
)

// pollTimeout bounds each PollFetches call so the consume loop can observe
// context cancellation promptly, matching kafka_consumer.py's poll-timeout
// loop rather than blocking indefinitely on a single fetch.
const pollTimeout = time.Second

// Consumer reads from the events and identities topics and routes each
// message: identity payloads upsert directly, event payloads are buffered
// for the flusher (spec §4.1), grounded on Credo's audit Router — one
// handler per topic name, an unrecognized topic is logged and skipped
// rather than blocking the group.
type Consumer struct {
	client *kgo.Client
	admin  *kadm.Client

	eventsTopic     string
	identitiesTopic string

	identities *identity.Store
	buffer     *Buffer
	logger     *slog.Logger
}

// Config holds the bus connection and topic settings (mirrors
// internal/config.Config's Kafka fields).
type Config struct {
	BootstrapServers string
	GroupID          string
	EventsTopic      string
	IdentitiesTopic  string
}

// NewConsumer dials the bus and ensures both topics exist before returning,
// swallowing topic-creation failures: a topic that already exists, or one
// the broker's auto-create handles on first produce, is not fatal to
// startup (spec §6).
func NewConsumer(cfg Config, identities *identity.Store, buffer *Buffer, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BootstrapServers),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.EventsTopic, cfg.IdentitiesTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AutoCommitInterval(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: dialing bootstrap servers: %w", err)
	}

	admin := kadm.NewClient(client)

	c := &Consumer{
		client:          client,
		admin:           admin,
		eventsTopic:     cfg.EventsTopic,
		identitiesTopic: cfg.IdentitiesTopic,
		identities:      identities,
		buffer:          buffer,
		logger:          logger,
	}

	c.ensureTopics(cfg)
	return c, nil
}

func (c *Consumer) ensureTopics(cfg Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.admin.CreateTopics(ctx, 1, 1, nil, cfg.EventsTopic, cfg.IdentitiesTopic)
	if err != nil {
		c.logger.Warn("bus: topic ensure request failed, continuing", "error", err)
		return
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			c.logger.Warn("bus: topic creation failed, continuing", "topic", r.Topic, "error", r.Err)
		}
	}
}

// Run consumes until ctx is cancelled. Malformed messages (spec §7) are
// logged and the offset still advances — auto-commit runs independently of
// the flush outcome (SPEC_FULL.md §9).
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		fetchCtx, cancel := context.WithTimeout(ctx, pollTimeout)
		fetches := c.client.PollFetches(fetchCtx)
		cancel()

		if ctx.Err() != nil {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("bus: fetch error", "topic", topic, "partition", partition, "error", err)
		})

		fetches.EachRecord(func(rec *kgo.Record) {
			c.route(ctx, rec)
		})
	}
}

func (c *Consumer) route(ctx context.Context, rec *kgo.Record) {
	switch rec.Topic {
	case c.identitiesTopic:
		c.handleIdentity(ctx, rec)
	case c.eventsTopic:
		c.handleEvent(rec)
	default:
		c.logger.Warn("bus: no handler for topic, skipping message", "topic", rec.Topic)
	}
}

func (c *Consumer) handleEvent(rec *kgo.Record) {
	e, err := NormalizeEvent(rec.Value)
	if err != nil {
		c.logger.Warn("bus: dropping malformed event", "error", err)
		telemetry.EventsDroppedTotal.WithLabelValues("malformed").Inc()
		return
	}
	telemetry.EventsIngestedTotal.WithLabelValues(c.eventsTopic).Inc()
	c.buffer.Add(e.OrganizationID, e)
}

func (c *Consumer) handleIdentity(ctx context.Context, rec *kgo.Record) {
	p, err := NormalizeIdentity(rec.Value)
	if err != nil {
		c.logger.Warn("bus: dropping malformed identity message", "error", err)
		telemetry.EventsDroppedTotal.WithLabelValues("malformed").Inc()
		return
	}
	telemetry.EventsIngestedTotal.WithLabelValues(c.identitiesTopic).Inc()

	err = c.identities.Upsert(ctx, identity.UpsertParams{
		OrganizationID: p.OrganizationID,
		IdentityARN:    p.IdentityARN,
		Name:           p.Name,
		Type:           p.Type,
		MFAEnabled:     p.MFAEnabled,
		DiscoveredAt:   p.CreatedAt,
	})
	if err != nil {
		c.logger.Error("bus: identity upsert failed", "organization_id", p.OrganizationID, "identity_arn", p.IdentityARN, "error", err)
	}
}

// Close releases the underlying client.
func (c *Consumer) Close() {
	c.client.Close()
}
