package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	libraryChannel = "voice-notes:library"
	eventTTL       = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance fan-out.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub implements Publisher and Subscriber using Redis pub/sub.
type RedisPubSub struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for library events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, channel: libraryChannel, logger: logger}
}

// PublishLibraryEvent publishes an event on the library channel.
func (r *RedisPubSub) PublishLibraryEvent(event string, payload []byte) error {
	body, err := encodeEvent(event, payload, time.Now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTTL)
	defer cancel()
	return r.client.Publish(ctx, r.channel, body).Err()
}

// SubscribeLibrary subscribes to the library channel and calls handler for each message.
// Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeLibrary(handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
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
				event, data, err := decodeEvent([]byte(msg.Payload))
				if err != nil {
					r.logger.Debug("skip malformed library event", zap.Error(err))
					continue
				}
				handler(event, data)
			}
		}
	}()
	return cancelCtx, nil
}

func encodeEvent(event string, payload []byte, at time.Time) ([]byte, error) {
	return json.Marshal(redisPayload{Event: event, Data: payload, At: at.Unix()})
}

func decodeEvent(body []byte) (string, []byte, error) {
	var p redisPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", nil, err
	}
	if p.Event == "" {
		return "", nil, fmt.Errorf("missing event")
	}
	return p.Event, p.Data, nil
}
