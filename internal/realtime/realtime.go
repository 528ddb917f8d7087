// Package realtime broadcasts job and call events over Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Channel is the Redis channel every event is published on.
const Channel = "crm:realtime"

// Event names.
const (
	EventBulkEmailProgress = "bulk_email_progress"
	EventBulkEmailComplete = "bulk_email_complete"
	EventBulkEmailError    = "bulk_email_error"
	EventVoiceCallStatus   = "voice_call_status"
)

// Message is the envelope written to the channel.
type Message struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notifier is what job code depends on.
type Notifier interface {
	Publish(ctx context.Context, event string, data interface{})
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Publish(ctx context.Context, event string, data interface{}) {}

// Publisher publishes and subscribes through a Redis client.
type Publisher struct {
	rdb redis.UniversalClient
}

func NewPublisher(rdb redis.UniversalClient) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish sends an event. Failures are logged and swallowed so a broken
// broadcast never fails the job that emitted it.
func (p *Publisher) Publish(ctx context.Context, event string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Warnf("Failed to encode realtime event %s: %v", event, err)
		return
	}
	payload, err := json.Marshal(Message{Event: event, Data: raw, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Warnf("Failed to encode realtime envelope %s: %v", event, err)
		return
	}
	if err := p.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		log.Warnf("Failed to publish realtime event %s: %v", event, err)
	}
}

// Subscribe delivers decoded messages until ctx is done. The returned channel
// is closed when the subscription ends.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan Message, error) {
	sub := p.rdb.Subscribe(ctx, Channel)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Debugf("Dropping malformed realtime message: %v", err)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ Notifier = (*Publisher)(nil)
