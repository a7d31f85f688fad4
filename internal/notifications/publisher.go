package notifications

import (
	"context"
	"fmt"

	"eventhub/internal/shared/config"
)

// Publisher delivers attempt transitions to a broker. Delivery is best
// effort: callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, event *TransitionEvent) error
	Close() error
}

type noopPublisher struct{}

// NewNoopPublisher returns a publisher that drops every event
func NewNoopPublisher() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, *TransitionEvent) error { return nil }
func (noopPublisher) Close() error                                    { return nil }

// NewPublisher builds the publisher selected by NOTIFY_BACKEND
func NewPublisher(cfg config.NotifyConfig) (Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return NewNoopPublisher(), nil
	case "kafka":
		kc := DefaultKafkaProducerConfig()
		kc.Brokers = cfg.KafkaBrokers
		kc.TransitionTopic = cfg.KafkaTopic
		return NewKafkaTransitionProducer(kc)
	case "rabbitmq":
		return NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
}
