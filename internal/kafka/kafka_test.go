package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

func TestPublishReport(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg ResultMessage
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg.Status != StatusOK || msg.Report == nil || msg.Report.RequestID != "req-1" || msg.Error != nil {
			return errors.New("unexpected result message")
		}
		return nil
	})

	p := NewProducerWith(sp, "results")
	report := &models.ForecastReport{RequestID: "req-1"}
	require.NoError(t, p.Publish(context.Background(), "req-1", report, nil))
	require.NoError(t, p.Close())
}

func TestPublishError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg ResultMessage
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg.Status != StatusError || msg.Report != nil {
			return errors.New("expected error envelope")
		}
		if msg.Error.Kind != apperr.InsufficientData || msg.Error.Message != "no readings in range" {
			return errors.New("unexpected error body")
		}
		return nil
	})

	p := NewProducerWith(sp, "results")
	runErr := apperr.Newf(apperr.InsufficientData, "aggregate", "no readings in range")
	require.NoError(t, p.Publish(context.Background(), "req-2", nil, runErr))
	require.NoError(t, p.Close())
}

func TestPublishSendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWith(sp, "results")
	err := p.Publish(context.Background(), "req-3", &models.ForecastReport{RequestID: "req-3"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestHandleMessage(t *testing.T) {
	var got []models.ForecastInput
	c := &Consumer{id: "test", handler: func(_ context.Context, in models.ForecastInput) error {
		got = append(got, in)
		return nil
	}}

	c.handleMessage(context.Background(), &sarama.ConsumerMessage{
		Key:   []byte("from-key"),
		Value: []byte(`{"start_date": "2024-01-01", "end_date": "2024-01-07", "forecast_hours": 48}`),
	})
	c.handleMessage(context.Background(), &sarama.ConsumerMessage{
		Value: []byte(`{"request_id": "explicit", "forecast_hours": 12}`),
	})
	c.handleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte(`not json`)})

	require.Len(t, got, 2)
	assert.Equal(t, "from-key", got[0].RequestID)
	assert.Equal(t, "2024-01-01", got[0].StartDate)
	require.NotNil(t, got[0].ForecastHours)
	assert.Equal(t, 48, *got[0].ForecastHours)
	assert.Equal(t, "explicit", got[1].RequestID)
}
