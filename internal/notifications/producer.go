package notifications

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"eventhub/pkg/logger"

	"github.com/IBM/sarama"
)

// KafkaProducerConfig contains configuration for the Kafka transition producer
type KafkaProducerConfig struct {
	Brokers          []string
	TransitionTopic  string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		TransitionTopic:  "booking-transitions",
		RetryMax:         3,
		TimeoutMs:        10000,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

// KafkaTransitionProducer publishes attempt transitions to Kafka
type KafkaTransitionProducer struct {
	producer sarama.SyncProducer
	config   *KafkaProducerConfig
}

// NewKafkaTransitionProducer connects a sync producer to the brokers
func NewKafkaTransitionProducer(config *KafkaProducerConfig) (*KafkaTransitionProducer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites
	saramaConfig.Producer.MaxMessageBytes = config.MaxMessageBytes

	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Keyed by attempt id so one attempt's transitions stay ordered
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.GetDefault().Info("Kafka transition producer initialized",
		"brokers", config.Brokers, "topic", config.TransitionTopic)

	return NewKafkaTransitionProducerWithClient(producer, config), nil
}

// NewKafkaTransitionProducerWithClient wraps an existing sync producer
func NewKafkaTransitionProducerWithClient(producer sarama.SyncProducer, config *KafkaProducerConfig) *KafkaTransitionProducer {
	if config == nil {
		config = DefaultKafkaProducerConfig()
	}
	return &KafkaTransitionProducer{producer: producer, config: config}
}

// Publish sends one transition and waits for the broker ack
func (p *KafkaTransitionProducer) Publish(ctx context.Context, event *TransitionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:   p.config.TransitionTopic,
		Key:     sarama.StringEncoder(event.AttemptID),
		Value:   sarama.ByteEncoder(payload),
		Headers: p.createHeaders(event),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send transition to Kafka: %w", err)
	}

	logger.GetDefault().DebugWithContext(ctx, "Transition published", map[string]interface{}{
		"attempt_id": event.AttemptID,
		"to":         event.To,
		"partition":  partition,
		"offset":     offset,
	})
	return nil
}

func (p *KafkaTransitionProducer) createHeaders(event *TransitionEvent) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		{Key: []byte("event_id"), Value: []byte(event.ID.String())},
		{Key: []byte("attempt_id"), Value: []byte(event.AttemptID)},
		{Key: []byte("from_state"), Value: []byte(event.From)},
		{Key: []byte("to_state"), Value: []byte(event.To)},
		{Key: []byte("occurred_at"), Value: []byte(strconv.FormatInt(event.OccurredAt.Unix(), 10))},
	}
	if event.ErrorKind != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte("error_kind"), Value: []byte(event.ErrorKind)})
	}
	return headers
}

// Close closes the Kafka producer
func (p *KafkaTransitionProducer) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}
