// Package topics is the best-effort enrichment pipeline: classify each
// committed message into a small closed topic set and suggest a subchannel
// once a topic keeps coming up. Nothing here sits on the send path; every
// failure is a discarded classification, never a surfaced error.
package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/acyrxbrown/chat-app/internal/ai"
	"github.com/acyrxbrown/chat-app/internal/store"
)

const (
	TopicFootball = "football"
	TopicFood     = "food"
	TopicGaming   = "gaming"
	TopicEvent    = "event"
	// TopicRandom is the overflow bucket for everything else, including
	// model output naming a topic outside the closed set.
	TopicRandom = "random"
)

var closedTopics = map[string]bool{
	TopicFootball: true,
	TopicFood:     true,
	TopicGaming:   true,
	TopicEvent:    true,
}

// Classification is the structured output requested from the model.
type Classification struct {
	Topic       string `json:"topic"`
	IsPlan      bool   `json:"is_plan"`
	PlanSummary string `json:"plan_summary"`
}

type Completer interface {
	Complete(ctx context.Context, system string, history []ai.Turn, prompt string) (string, error)
}

type Store interface {
	InsertMessageTopic(ctx context.Context, topic store.MessageTopic) (bool, error)
	CountTopicMessages(ctx context.Context, chatID, topic string) (int, error)
	UpsertChannelSuggestion(ctx context.Context, suggestion store.ChannelSuggestion) error
}

type Pipeline struct {
	completer Completer
	store     Store
	threshold int
}

func NewPipeline(completer Completer, store Store, threshold int) *Pipeline {
	if threshold <= 0 {
		threshold = 5
	}
	return &Pipeline{completer: completer, store: store, threshold: threshold}
}

const classifyPrompt = `You are classifying a single chat message into a simple topic and optionally detecting if it contains a concrete future plan.

Allowed topics:
- football
- food
- gaming
- event
- random (anything else)

Return strict JSON ONLY in this shape:
{
  "topic": "football" | "food" | "gaming" | "event" | "random",
  "is_plan": boolean,
  "plan_summary": string | null
}

Message:
%q`

// Process classifies one committed message and advances the per-(chat,
// topic) aggregate. Safe to call twice for the same message: the topic
// insert is idempotent on message id, and a conflicted insert does not
// touch the count. The returned error is for the caller's log line only.
func (p *Pipeline) Process(ctx context.Context, msg store.Message) error {
	raw, err := p.completer.Complete(ctx, "", nil, fmt.Sprintf(classifyPrompt, msg.Content))
	if err != nil {
		return fmt.Errorf("classify message %s: %w", msg.ID, err)
	}

	classification, ok := ParseClassification(raw)
	if !ok {
		// Unparseable output means "no classification", not an error.
		return nil
	}

	inserted, err := p.store.InsertMessageTopic(ctx, store.MessageTopic{
		MessageID:   msg.ID,
		ChatID:      msg.ChatID,
		Topic:       classification.Topic,
		IsPlan:      classification.IsPlan,
		PlanSummary: classification.PlanSummary,
	})
	if err != nil {
		return fmt.Errorf("store topic for %s: %w", msg.ID, err)
	}
	if !inserted {
		// Already classified (retried job or duplicate delivery); the
		// count did not move, so the threshold check is moot.
		return nil
	}

	total, err := p.store.CountTopicMessages(ctx, msg.ChatID, classification.Topic)
	if err != nil {
		return fmt.Errorf("count topic %s in %s: %w", classification.Topic, msg.ChatID, err)
	}
	if total < p.threshold {
		return nil
	}

	suggestionType := "topic"
	if classification.IsPlan {
		suggestionType = "plan"
	}
	if err := p.store.UpsertChannelSuggestion(ctx, store.ChannelSuggestion{
		ChatID:       msg.ChatID,
		Topic:        classification.Topic,
		Type:         suggestionType,
		MessageCount: total,
	}); err != nil {
		return fmt.Errorf("upsert suggestion for %s/%s: %w", msg.ChatID, classification.Topic, err)
	}
	return nil
}

// ParseClassification defensively extracts the structured result from model
// output. Anything that does not parse into the expected shape is discarded;
// a topic outside the closed set collapses into the overflow bucket.
func ParseClassification(raw string) (Classification, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return Classification{}, false
	}

	var parsed struct {
		Topic       string  `json:"topic"`
		IsPlan      bool    `json:"is_plan"`
		PlanSummary *string `json:"plan_summary"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return Classification{}, false
	}

	c := Classification{Topic: parsed.Topic, IsPlan: parsed.IsPlan}
	if !closedTopics[c.Topic] {
		c.Topic = TopicRandom
	}
	if parsed.PlanSummary != nil {
		c.PlanSummary = *parsed.PlanSummary
	}
	return c, true
}
