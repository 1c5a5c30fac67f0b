// Package feed adapts the store's row-change notifications into a typed
// per-conversation event stream. Redis pub/sub is the transport; reconnect
// handling lives in the client, not here. Consumers must tolerate duplicate
// and out-of-order delivery - the cache layer is idempotent for exactly that
// reason.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acyrxbrown/chat-app/internal/store"
)

type Kind string

const (
	KindInserted Kind = "inserted"
	KindUpdated  Kind = "updated"
	KindRemoved  Kind = "removed"
)

// Event is one de-noised change. Removed events carry only the message id.
type Event struct {
	Kind      Kind
	Message   store.Message
	MessageID string
}

// payload is the wire format published after each commit.
type payload struct {
	Op      string        `json:"op"` // insert | update
	Message store.Message `json:"message"`
}

// Dial connects a Redis client for the change feed transport.
func Dial(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func channelFor(chatID string) string {
	return "chat:events:" + chatID
}

// Adapter subscribes to a single conversation's change stream.
type Adapter struct {
	client *redis.Client
}

func NewAdapter(client *redis.Client) *Adapter {
	return &Adapter{client: client}
}

// Subscription is one conversation's event stream. Close it before
// subscribing to a different conversation; events for the old chat must
// never leak into the new view.
type Subscription struct {
	chatID    string
	pubsub    *redis.PubSub
	events    chan Event
	closeOnce sync.Once
}

// Subscribe registers for one conversation's events. The subscription is
// confirmed with the transport before Subscribe returns, so events published
// afterwards are not missed.
func (a *Adapter) Subscribe(ctx context.Context, chatID string) (*Subscription, error) {
	pubsub := a.client.Subscribe(ctx, channelFor(chatID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe chat %s: %w", chatID, err)
	}

	sub := &Subscription{
		chatID: chatID,
		pubsub: pubsub,
		events: make(chan Event, 64),
	}
	go sub.pump()
	return sub, nil
}

// Events yields the typed event stream. The channel closes after Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// ChatID returns the conversation this subscription is scoped to.
func (s *Subscription) ChatID() string {
	return s.chatID
}

// Close unregisters the subscription and closes the event channel.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		_ = s.pubsub.Close()
	})
}

func (s *Subscription) pump() {
	defer close(s.events)
	for raw := range s.pubsub.Channel() {
		event, ok := translate([]byte(raw.Payload))
		if !ok {
			continue
		}
		s.events <- event
	}
}

// translate maps a raw row-change payload onto the event taxonomy. An update
// whose deleted_at transitioned to non-null is folded into Removed; the soft
// delete is the only row mutation the rest of the system cares about.
func translate(raw []byte) (Event, bool) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("feed: dropping malformed event: %v", err)
		return Event{}, false
	}

	switch p.Op {
	case "insert":
		if p.Message.Deleted() {
			// a row born deleted never becomes visible
			return Event{}, false
		}
		return Event{Kind: KindInserted, Message: p.Message, MessageID: p.Message.ID}, true
	case "update":
		if p.Message.Deleted() {
			return Event{Kind: KindRemoved, MessageID: p.Message.ID}, true
		}
		return Event{Kind: KindUpdated, Message: p.Message, MessageID: p.Message.ID}, true
	default:
		log.Printf("feed: dropping event with unknown op %q", p.Op)
		return Event{}, false
	}
}
