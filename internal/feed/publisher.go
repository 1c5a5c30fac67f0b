package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/acyrxbrown/chat-app/internal/store"
)

// Publisher emits row-change notifications after commits. It stands in for
// the hosted store's change stream: publish only after the row is durable,
// never before.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) MessageInserted(ctx context.Context, msg store.Message) error {
	return p.publish(ctx, payload{Op: "insert", Message: msg})
}

func (p *Publisher) MessageUpdated(ctx context.Context, msg store.Message) error {
	return p.publish(ctx, payload{Op: "update", Message: msg})
}

func (p *Publisher) publish(ctx context.Context, pl payload) error {
	raw, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}
	if err := p.client.Publish(ctx, channelFor(pl.Message.ChatID), raw).Err(); err != nil {
		return fmt.Errorf("publish feed event: %w", err)
	}
	return nil
}
