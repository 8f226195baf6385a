// Package events mirrors conversation updates onto a watermill topic.
//
// By default the topic lives in process (gochannel). With Redis enabled the
// topic is a Redis stream, so another terminal can follow a chat with
// `ravent events tail`.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/ravent/pkg/conversation"
)

const DefaultTopic = "ravent.conversation"

type Settings struct {
	Redis    bool
	Addr     string
	Topic    string
	Group    string
	Consumer string
}

// Update is one snapshot of a conversation after a mutation.
type Update struct {
	ConversationID string                 `json:"conversation_id"`
	Mode           conversation.Mode      `json:"mode"`
	At             time.Time              `json:"at"`
	Messages       []conversation.Message `json:"messages"`
}

// Latest returns the last message of the snapshot.
func (u Update) Latest() (conversation.Message, bool) {
	if len(u.Messages) == 0 {
		return conversation.Message{}, false
	}
	return u.Messages[len(u.Messages)-1], true
}

type Bus struct {
	topic  string
	pub    message.Publisher
	sub    message.Subscriber
	client *redis.Client
	logger zerolog.Logger
}

// NewBus builds an in-process bus, or a Redis Streams bus when s.Redis is set.
func NewBus(s Settings) (*Bus, error) {
	topic := s.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	logger := log.With().Str("component", "events").Str("topic", topic).Logger()
	wmLogger := NewWatermillLogger(logger)

	if !s.Redis {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		return &Bus{topic: topic, pub: ch, sub: ch, logger: logger}, nil
	}

	if s.Addr == "" {
		return nil, errors.New("events: redis address is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wmLogger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "events: redis publisher")
	}

	consumer := s.Consumer
	if consumer == "" {
		consumer = "ravent-" + uuid.NewString()[:8]
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      consumer,
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "events: redis subscriber")
	}

	return &Bus{topic: topic, pub: pub, sub: sub, client: client, logger: logger}, nil
}

func (b *Bus) Topic() string { return b.topic }

func (b *Bus) Publish(u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "marshal update")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("conversation_id", u.ConversationID)
	msg.Metadata.Set("mode", string(u.Mode))
	if err := b.pub.Publish(b.topic, msg); err != nil {
		return errors.Wrap(err, "publish update")
	}
	return nil
}

// Observer returns a conversation observer that publishes every snapshot
// under conversationID. Publish failures are logged and never block the chat.
func (b *Bus) Observer(conversationID string, mode conversation.Mode) conversation.Observer {
	return func(messages []conversation.Message) {
		u := Update{
			ConversationID: conversationID,
			Mode:           mode,
			At:             time.Now(),
			Messages:       messages,
		}
		if err := b.Publish(u); err != nil {
			b.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("could not mirror update")
		}
	}
}

// Subscribe streams decoded updates until ctx is done. Undecodable
// messages are acked and skipped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Update, error) {
	msgs, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}
	out := make(chan Update)
	go func() {
		defer close(out)
		for msg := range msgs {
			var u Update
			if err := json.Unmarshal(msg.Payload, &u); err != nil {
				b.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("skipping undecodable update")
				msg.Ack()
				continue
			}
			select {
			case out <- u:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// EnsureGroupAtTail creates the consumer group at the stream tail so a new
// follower does not replay the stream's history.
func (b *Bus) EnsureGroupAtTail(ctx context.Context, group string) error {
	if b.client == nil || group == "" {
		return nil
	}
	err := b.client.XGroupCreateMkStream(ctx, b.topic, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrap(err, "create consumer group")
	}
	b.logger.Info().Str("group", group).Msg("created redis consumer group at tail")
	return nil
}

func (b *Bus) Close() error {
	var firstErr error
	if err := b.pub.Close(); err != nil {
		firstErr = err
	}
	if b.sub != nil && any(b.sub) != any(b.pub) {
		if err := b.sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.client != nil {
		if err := b.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
