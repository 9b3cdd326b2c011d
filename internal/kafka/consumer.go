package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Shopify/sarama"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

// RequestHandler handles one decoded forecast request message
type RequestHandler func(ctx context.Context, in models.ForecastInput) error

// Consumer reads forecast requests from Kafka
type Consumer struct {
	id       string
	config   config.KafkaConfig
	consumer sarama.ConsumerGroup
	handler  RequestHandler
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(id string, cfg config.KafkaConfig, handler RequestHandler) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = "kvah-forecaster-" + id
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaConfig.Consumer.MaxWaitTime = 250 * time.Millisecond

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		id:       id,
		config:   cfg,
		consumer: client,
		handler:  handler,
	}, nil
}

// Consume starts consuming messages from Kafka until ctx is cancelled
func (c *Consumer) Consume(ctx context.Context) error {
	go func() {
		for err := range c.consumer.Errors() {
			logger.Error("kafka consumer error", "consumer", c.id, "error", err)
		}
	}()

	handler := &consumerGroupHandler{consumer: c, ctx: ctx}
	for {
		if err := c.consumer.Consume(ctx, []string{c.config.RequestTopic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close closes the consumer group
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// handleMessage decodes a request message and passes it on. Undecodable messages are logged
// and skipped so that a poison message cannot stall the partition.
func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var in models.ForecastInput
	if err := json.Unmarshal(message.Value, &in); err != nil {
		logger.Warn("skipping undecodable forecast request",
			"consumer", c.id, "partition", message.Partition, "offset", message.Offset, "error", err)
		return
	}
	if in.RequestID == "" && len(message.Key) > 0 {
		in.RequestID = string(message.Key)
	}

	if err := c.handler(ctx, in); err != nil {
		logger.Warn("forecast request rejected", "consumer", c.id, "request_id", in.RequestID, "error", err)
	}
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ctx      context.Context
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if h.ctx.Err() != nil {
			return h.ctx.Err()
		}

		h.consumer.handleMessage(h.ctx, message)
		session.MarkMessage(message, "")
	}
	return nil
}
