// Package queue carries ingestion jobs over a watermill pub/sub, Redis
// streams in production. Publisher implements ports.WorkflowTrigger and
// Consumer feeds the vectorization worker.
package queue

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// DefaultTopic is the stream ingestion jobs are published to.
const DefaultTopic = "docchat.ingest"

// Publisher publishes ingestion jobs instead of calling a webhook.
type Publisher struct {
	pub   message.Publisher
	topic string
}

// NewPublisher wraps pub. An empty topic means DefaultTopic.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{pub: pub, topic: topic}
}

// Trigger publishes {document_id, file_path}. A failed publish is a workflow
// trigger failure.
func (p *Publisher) Trigger(ctx context.Context, documentID int64, filePath string) error {
	payload, err := json.Marshal(entities.IngestJob{DocumentID: documentID, FilePath: filePath})
	if err != nil {
		return errors.Wrap(err, "marshaling ingest job")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return errs.WorkflowTrigger(err, "workflow trigger failed", err.Error())
	}
	log.Debug().Str("component", "queue").Str("topic", p.topic).Int64("document_id", documentID).Msg("ingest job published")
	return nil
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error { return p.pub.Close() }

// Handler processes one job. A returned error asks for redelivery.
type Handler func(ctx context.Context, job entities.IngestJob) error

// Consumer reads ingestion jobs from a subscriber.
type Consumer struct {
	sub     message.Subscriber
	topic   string
	handler Handler
}

// NewConsumer creates a consumer of topic. An empty topic means DefaultTopic.
func NewConsumer(sub message.Subscriber, topic string, handler Handler) *Consumer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Consumer{sub: sub, topic: topic, handler: handler}
}

// Run consumes jobs until ctx is done. Jobs are handled one at a time;
// malformed payloads are acked and dropped.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, c.topic)
	if err != nil {
		return errors.Wrapf(err, "subscribing to %s", c.topic)
	}
	logger := log.With().Str("component", "queue").Str("topic", c.topic).Logger()
	logger.Info().Msg("consuming ingest jobs")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(ctx, logger, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, logger zerolog.Logger, msg *message.Message) {
	var job entities.IngestJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil || job.DocumentID == 0 {
		logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed ingest job")
		msg.Ack()
		return
	}

	if err := c.handler(ctx, job); err != nil {
		logger.Warn().Err(err).Int64("document_id", job.DocumentID).Msg("ingest job failed; requesting redelivery")
		msg.Nack()
		return
	}
	msg.Ack()
}

// Close closes the underlying subscriber.
func (c *Consumer) Close() error { return c.sub.Close() }

// NewRedisPublisher builds a Redis streams publisher.
func NewRedisPublisher(client redis.UniversalClient) (message.Publisher, error) {
	return redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     client,
		Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, NewLogger(log.Logger))
}

// NewRedisSubscriber builds a Redis streams subscriber in consumer group group.
func NewRedisSubscriber(client redis.UniversalClient, group, consumer string) (message.Subscriber, error) {
	return redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: group,
		Consumer:      consumer,
	}, NewLogger(log.Logger))
}
