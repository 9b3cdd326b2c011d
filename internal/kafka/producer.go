package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ResultMessage is the envelope published for every queued request.
type ResultMessage struct {
	RequestID string                 `json:"request_id"`
	Status    string                 `json:"status"`
	Report    *models.ForecastReport `json:"report,omitempty"`
	Error     *ErrorBody             `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Producer publishes forecast outcomes to Kafka
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer creates a synchronous producer for the result topic
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = "kvah-forecaster-producer"
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}
	return NewProducerWith(producer, cfg.ResultTopic), nil
}

// NewProducerWith wraps an existing sarama producer.
func NewProducerWith(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

// Publish sends the report, or the error when runErr is set, keyed by request ID.
func (p *Producer) Publish(_ context.Context, requestID string, report *models.ForecastReport, runErr error) error {
	msg := ResultMessage{RequestID: requestID, Status: StatusOK, Report: report}
	if runErr != nil {
		msg.Status = StatusError
		msg.Report = nil
		msg.Error = &ErrorBody{Kind: apperr.KindOf(runErr), Message: apperr.Message(runErr)}
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding result %s: %w", requestID, err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(requestID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("publishing result %s: %w", requestID, err)
	}
	metrics.ResultsPublished.Inc()
	return nil
}

// Close closes the underlying producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
