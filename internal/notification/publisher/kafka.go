package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/notification/domain"
	"github.com/smallbiznis/meterbill/internal/notification/masking"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// KafkaPublisher writes notifications to a topic keyed by target id so events
// about one record stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// message is the wire shape published to Kafka. Sensitive metadata is masked.
type message struct {
	EventID    string         `json:"event_id"`
	Type       domain.Type    `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

func (p *KafkaPublisher) Publish(ctx context.Context, n domain.Notification) error {
	msg := message{
		EventID:    n.EventID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		TargetType: n.TargetType,
		Metadata:   masking.MaskMetadata(n.Metadata),
		CreatedAt:  n.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	key := n.TargetType
	if n.TargetID != nil {
		msg.TargetID = *n.TargetID
		key = n.TargetType + ":" + *n.TargetID
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(n.EventID)},
			{Key: []byte("type"), Value: []byte(n.Type)},
		},
	})
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Provide builds the publisher when brokers and a topic are configured.
func Provide(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (domain.Publisher, error) {
	if !cfg.Kafka.Enabled() {
		return nil, nil
	}

	acks, err := parseRequiredAcks(cfg.Kafka.RequiredAcks)
	if err != nil {
		return nil, err
	}
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = cfg.Kafka.ClientID
	saramaCfg.Producer.RequiredAcks = acks
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	pub := NewKafkaPublisher(producer, cfg.Kafka.Topic)
	lc.Append(fx.StopHook(pub.Close))
	log.Info("notification publisher enabled",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)
	return pub, nil
}

func parseRequiredAcks(v string) (sarama.RequiredAcks, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none", "0":
		return sarama.NoResponse, nil
	case "leader", "local", "1":
		return sarama.WaitForLocal, nil
	case "", "all", "-1":
		return sarama.WaitForAll, nil
	default:
		return sarama.WaitForAll, fmt.Errorf("invalid kafka required acks: %s", v)
	}
}
