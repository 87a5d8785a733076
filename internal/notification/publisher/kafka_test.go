package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/smallbiznis/meterbill/internal/notification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishMasksMetadataAndKeysByTarget(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	var captured []byte
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "meterbill.notifications", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "customer:42", string(key))
		captured, err = msg.Value.Encode()
		return err
	})

	targetID := "42"
	pub := NewKafkaPublisher(producer, "meterbill.notifications")
	err := pub.Publish(context.Background(), domain.Notification{
		EventID:    "01J0000000000000000000000A",
		Type:       domain.TypeCreate,
		Title:      "Customer added",
		Message:    "Customer Jane was added",
		TargetType: domain.TargetCustomer,
		TargetID:   &targetID,
		Metadata:   map[string]any{"accountNumber": "ACC-123456", "name": "Jane"},
		CreatedAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	var got map[string]any
	require.NoError(t, json.Unmarshal(captured, &got))
	assert.Equal(t, "01J0000000000000000000000A", got["event_id"])
	assert.Equal(t, "42", got["target_id"])
	meta := got["metadata"].(map[string]any)
	assert.Equal(t, "****3456", meta["accountNumber"])
	assert.Equal(t, "Jane", meta["name"])
}

func TestParseRequiredAcks(t *testing.T) {
	acks, err := parseRequiredAcks("leader")
	require.NoError(t, err)
	assert.Equal(t, sarama.WaitForLocal, acks)

	acks, err = parseRequiredAcks("")
	require.NoError(t, err)
	assert.Equal(t, sarama.WaitForAll, acks)

	_, err = parseRequiredAcks("sometimes")
	assert.Error(t, err)
}
