package view

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemtracker/internal/model"
)

// TopicViewUpdates carries a JSON encoded model.ViewState per message.
const TopicViewUpdates = "view.updates"

const subscriberBuffer = 64

// Bus fans view snapshots out to any number of subscribers over an
// in-process watermill pub/sub. Delivery order across messages is not
// guaranteed; subscribers should order by ViewState.Seq.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

// NewBus creates a Bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: subscriberBuffer},
			&zapAdapter{logger: logger.Named("watermill")},
		),
		logger: logger,
	}
}

// Publish sends a snapshot to all current subscribers. Snapshots published
// while nobody is subscribed are dropped.
func (b *Bus) Publish(state model.ViewState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode view state: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := b.pubsub.Publish(TopicViewUpdates, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", TopicViewUpdates, err)
	}

	return nil
}

// Subscribe returns a channel of snapshots that is closed when ctx is done
// or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan model.ViewState, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicViewUpdates)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", TopicViewUpdates, err)
	}

	out := make(chan model.ViewState, subscriberBuffer)
	go func() {
		defer close(out)

		for msg := range messages {
			var state model.ViewState
			if err := json.Unmarshal(msg.Payload, &state); err != nil {
				b.logger.Warn("dropping undecodable view update",
					zap.String("message_uuid", msg.UUID),
					zap.Error(err),
				)
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- state:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close stops the bus and closes all subscriber channels.
func (b *Bus) Close() error {
	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("close view bus: %w", err)
	}
	return nil
}

// zapAdapter bridges zap to watermill.LoggerAdapter.
type zapAdapter struct {
	logger *zap.Logger
}

func (a *zapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (a *zapAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(msg, zapFields(fields)...)
}

func (a *zapAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, zapFields(fields)...)
}

func (a *zapAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, zapFields(fields)...)
}

func (a *zapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zapAdapter{logger: a.logger.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
