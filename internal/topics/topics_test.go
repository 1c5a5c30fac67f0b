package topics

import (
	"context"
	"errors"
	"testing"

	"github.com/acyrxbrown/chat-app/internal/ai"
	"github.com/acyrxbrown/chat-app/internal/store"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, system string, history []ai.Turn, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeTopicStore struct {
	insertTopic func(store.MessageTopic) (bool, error)
	countTopic  func(chatID, topic string) (int, error)
	upsert      func(store.ChannelSuggestion) error

	upserts []store.ChannelSuggestion
}

func (f *fakeTopicStore) InsertMessageTopic(ctx context.Context, topic store.MessageTopic) (bool, error) {
	if f.insertTopic != nil {
		return f.insertTopic(topic)
	}
	return true, nil
}

func (f *fakeTopicStore) CountTopicMessages(ctx context.Context, chatID, topic string) (int, error) {
	if f.countTopic != nil {
		return f.countTopic(chatID, topic)
	}
	return 1, nil
}

func (f *fakeTopicStore) UpsertChannelSuggestion(ctx context.Context, suggestion store.ChannelSuggestion) error {
	f.upserts = append(f.upserts, suggestion)
	if f.upsert != nil {
		return f.upsert(suggestion)
	}
	return nil
}

func textMessage(id, content string) store.Message {
	return store.Message{ID: id, ChatID: "chat_1", SenderID: "user_1", Content: content, Type: store.MessageTypeText}
}

func TestProcessBelowThresholdDoesNotSuggest(t *testing.T) {
	st := &fakeTopicStore{
		countTopic: func(chatID, topic string) (int, error) { return 3, nil },
	}
	p := NewPipeline(&fakeCompleter{reply: `{"topic":"football","is_plan":false,"plan_summary":null}`}, st, 5)

	if err := p.Process(context.Background(), textMessage("m1", "did you watch the match")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(st.upserts) != 0 {
		t.Fatalf("upserts = %d, want 0 below threshold", len(st.upserts))
	}
}

func TestProcessAtThresholdUpserts(t *testing.T) {
	st := &fakeTopicStore{
		countTopic: func(chatID, topic string) (int, error) { return 5, nil },
	}
	p := NewPipeline(&fakeCompleter{reply: `{"topic":"food","is_plan":false,"plan_summary":null}`}, st, 5)

	if err := p.Process(context.Background(), textMessage("m1", "pizza tonight?")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(st.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(st.upserts))
	}
	got := st.upserts[0]
	if got.Topic != "food" || got.Type != "topic" || got.MessageCount != 5 {
		t.Fatalf("unexpected suggestion %+v", got)
	}
}

func TestProcessPlanUsesPlanSuggestionType(t *testing.T) {
	st := &fakeTopicStore{
		countTopic: func(chatID, topic string) (int, error) { return 7, nil },
	}
	p := NewPipeline(&fakeCompleter{reply: `{"topic":"event","is_plan":true,"plan_summary":"birthday saturday"}`}, st, 5)

	if err := p.Process(context.Background(), textMessage("m1", "party saturday, who's in")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if st.upserts[0].Type != "plan" {
		t.Fatalf("suggestion type = %s, want plan", st.upserts[0].Type)
	}
}

func TestProcessDuplicateClassificationSkipsCount(t *testing.T) {
	counted := false
	st := &fakeTopicStore{
		insertTopic: func(store.MessageTopic) (bool, error) { return false, nil },
		countTopic: func(chatID, topic string) (int, error) {
			counted = true
			return 100, nil
		},
	}
	p := NewPipeline(&fakeCompleter{reply: `{"topic":"gaming","is_plan":false,"plan_summary":null}`}, st, 5)

	if err := p.Process(context.Background(), textMessage("m1", "new patch dropped")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if counted {
		t.Fatal("conflicted insert must not advance the aggregate")
	}
	if len(st.upserts) != 0 {
		t.Fatalf("upserts = %d, want 0", len(st.upserts))
	}
}

func TestProcessDiscardsMalformedOutput(t *testing.T) {
	st := &fakeTopicStore{
		insertTopic: func(store.MessageTopic) (bool, error) {
			t.Fatal("nothing should be stored for unparseable output")
			return false, nil
		},
	}
	p := NewPipeline(&fakeCompleter{reply: "I think this message is about sports."}, st, 5)

	if err := p.Process(context.Background(), textMessage("m1", "hello")); err != nil {
		t.Fatalf("process: %v", err)
	}
}

func TestProcessReturnsCompleterError(t *testing.T) {
	p := NewPipeline(&fakeCompleter{err: errors.New("quota")}, &fakeTopicStore{}, 5)
	if err := p.Process(context.Background(), textMessage("m1", "hello")); err == nil {
		t.Fatal("expected error from completer")
	}
}

func TestParseClassification(t *testing.T) {
	c, ok := ParseClassification("Sure! Here is the JSON:\n{\"topic\":\"football\",\"is_plan\":false,\"plan_summary\":null}\nHope that helps.")
	if !ok || c.Topic != "football" {
		t.Fatalf("parse wrapped JSON: %+v ok=%v", c, ok)
	}

	c, ok = ParseClassification(`{"topic":"quantum-physics","is_plan":false,"plan_summary":null}`)
	if !ok || c.Topic != TopicRandom {
		t.Fatalf("unknown topic should collapse to random, got %+v", c)
	}

	if _, ok := ParseClassification("no braces here"); ok {
		t.Fatal("output without JSON should not parse")
	}
}
