package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"eventhub/internal/shared/config"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvent() *TransitionEvent {
	e := NewTransitionEvent("att-1", "Browsing", "ReservationRequested")
	e.UserID = 7
	e.EventID = 42
	return e
}

func TestKafkaProducer_PublishKeysByAttempt(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	event := newTestEvent()

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "att-1" {
			return errors.New("unexpected key " + string(key))
		}
		if msg.Topic != "booking-transitions" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		decoded, err := TransitionEventFromJSON(value)
		if err != nil {
			return err
		}
		if decoded.To != "ReservationRequested" {
			return errors.New("unexpected state " + decoded.To)
		}
		return nil
	})

	producer := NewKafkaTransitionProducerWithClient(mockProducer, nil)
	require.NoError(t, producer.Publish(context.Background(), event))
	require.NoError(t, producer.Close())
}

func TestKafkaProducer_PublishFailure(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	producer := NewKafkaTransitionProducerWithClient(mockProducer, nil)
	err := producer.Publish(context.Background(), newTestEvent())

	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	require.NoError(t, producer.Close())
}

func TestKafkaProducer_Headers(t *testing.T) {
	producer := NewKafkaTransitionProducerWithClient(nil, nil)
	event := newTestEvent()
	event.ErrorKind = "ReservationFailed"

	headers := map[string]string{}
	for _, h := range producer.createHeaders(event) {
		headers[string(h.Key)] = string(h.Value)
	}

	assert.Equal(t, "att-1", headers["attempt_id"])
	assert.Equal(t, "Browsing", headers["from_state"])
	assert.Equal(t, "ReservationRequested", headers["to_state"])
	assert.Equal(t, "ReservationFailed", headers["error_kind"])
	assert.Equal(t, event.ID.String(), headers["event_id"])
}

func TestNewPublisher_Selection(t *testing.T) {
	p, err := NewPublisher(config.NotifyConfig{Backend: "none"})
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), newTestEvent()))
	assert.NoError(t, p.Close())

	_, err = NewPublisher(config.NotifyConfig{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestTransitionEvent_Terminal(t *testing.T) {
	assert.False(t, newTestEvent().IsTerminal())
	assert.True(t, NewTransitionEvent("a", "CaptureRequested", "Paid").IsTerminal())
	assert.True(t, NewTransitionEvent("a", "IntentRequested", "Failed").IsTerminal())
}

type fakeChannel struct {
	published []string
	err       error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, key+":"+msg.Type)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestRabbitPublisher_PublishesToQueue(t *testing.T) {
	ch := &fakeChannel{}
	p := &RabbitPublisher{ch: ch, queue: "booking.transitions"}

	require.NoError(t, p.Publish(context.Background(), newTestEvent()))
	assert.Equal(t, []string{"booking.transitions:ReservationRequested"}, ch.published)

	ch.err = errors.New("channel closed")
	assert.Error(t, p.Publish(context.Background(), newTestEvent()))
	assert.NoError(t, p.Close())
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaim_DecodesAndMarks(t *testing.T) {
	payload, err := newTestEvent().ToJSON()
	require.NoError(t, err)

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: payload}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte("not json")}
	close(claim.messages)

	var seen []string
	h := &consumerGroupHandler{
		handler: func(_ context.Context, e *TransitionEvent) error {
			seen = append(seen, e.AttemptID+":"+e.To)
			return nil
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	session := &fakeSession{ctx: context.Background()}

	require.NoError(t, h.ConsumeClaim(session, claim))
	assert.Equal(t, []string{"att-1:ReservationRequested"}, seen)
	assert.Equal(t, []int64{1, 2}, session.marked)
}
