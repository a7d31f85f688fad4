package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eventhub/pkg/logger"

	"github.com/IBM/sarama"
)

// TransitionHandler receives every decoded transition
type TransitionHandler func(ctx context.Context, event *TransitionEvent) error

type ConsumerConfig struct {
	Brokers           []string
	GroupID           string
	Topics            []string
	SessionTimeoutMs  int
	HeartbeatMs       int
	RetryBackoffMs    int
	MaxProcessingTime time.Duration
	OffsetOldest      bool
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "eventhub-transition-watchers",
		Topics:            []string{"booking-transitions"},
		SessionTimeoutMs:  30000,
		HeartbeatMs:       3000,
		RetryBackoffMs:    100,
		MaxProcessingTime: time.Minute,
		OffsetOldest:      false,
	}
}

// TransitionWatcher consumes the transition topic with a consumer group
type TransitionWatcher struct {
	consumerGroup sarama.ConsumerGroup
	config        *ConsumerConfig
	handler       TransitionHandler
	logger        *slog.Logger
}

func NewTransitionWatcher(config *ConsumerConfig, handler TransitionHandler) (*TransitionWatcher, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMs) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatMs) * time.Millisecond
	saramaConfig.Consumer.Retry.Backoff = time.Duration(config.RetryBackoffMs) * time.Millisecond
	saramaConfig.Consumer.MaxProcessingTime = config.MaxProcessingTime
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second

	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	group, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &TransitionWatcher{
		consumerGroup: group,
		config:        config,
		handler:       handler,
		logger:        logger.GetDefault().Logger,
	}, nil
}

// Run consumes until ctx is cancelled, then closes the group
func (w *TransitionWatcher) Run(ctx context.Context, numWorkers int) error {
	if numWorkers < 1 {
		numWorkers = 1
	}

	go w.handleErrors()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.runWorker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	if err := w.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	return nil
}

func (w *TransitionWatcher) runWorker(ctx context.Context, workerID int) {
	handler := &consumerGroupHandler{workerID: workerID, handler: w.handler, logger: w.logger}

	for {
		if ctx.Err() != nil {
			return
		}
		err := w.consumerGroup.Consume(ctx, w.config.Topics, handler)
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			w.logger.Warn("Consume failed", "worker", workerID, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *TransitionWatcher) handleErrors() {
	for err := range w.consumerGroup.Errors() {
		w.logger.Warn("Consumer group error", "error", err)
	}
}

type consumerGroupHandler struct {
	workerID int
	handler  TransitionHandler
	logger   *slog.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := h.processMessage(session.Context(), message); err != nil {
				h.logger.Warn("Skipping transition message",
					"worker", h.workerID,
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err,
				)
			}
			// Undecodable messages are marked too so they never block the partition
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *consumerGroupHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := TransitionEventFromJSON(message.Value)
	if err != nil {
		return fmt.Errorf("failed to unmarshal transition: %w", err)
	}
	return h.handler(ctx, event)
}
