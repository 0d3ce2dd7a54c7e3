package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "meeting:"
	publishTimeout = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

func channelFor(meetingID uuid.UUID) string {
	return channelPrefix + meetingID.String()
}

func encodePayload(event string, data []byte, at time.Time) ([]byte, error) {
	return json.Marshal(redisPayload{Event: event, Data: data, At: at.Unix()})
}

func decodePayload(raw string) (redisPayload, error) {
	var p redisPayload
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}

// RedisPubSub implements Broker with Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for meeting events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishMeetingEvent publishes an event to the meeting's channel.
func (r *RedisPubSub) PublishMeetingEvent(ctx context.Context, meetingID uuid.UUID, event string, payload []byte) error {
	body, err := encodePayload(event, payload, time.Now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channelFor(meetingID), body).Err()
}

// SubscribeMeeting subscribes to a meeting's channel and calls handler for each message.
func (r *RedisPubSub) SubscribeMeeting(meetingID uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channelFor(meetingID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				p, err := decodePayload(msg.Payload)
				if err != nil {
					r.logger.Warn("bad meeting event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancel, nil
}
