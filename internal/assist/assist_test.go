package assist

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/acyrxbrown/chat-app/internal/ai"
	"github.com/acyrxbrown/chat-app/internal/store"
)

const assistantID = "prf_assistant"

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
	turns   [][]ai.Turn
}

func (f *fakeCompleter) Complete(ctx context.Context, system string, history []ai.Turn, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.turns = append(f.turns, history)
	return f.reply, f.err
}

type fakeCommitter struct {
	mu        sync.Mutex
	err       error
	committed []store.Message
}

func (f *fakeCommitter) CommitMessage(ctx context.Context, msg store.Message) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return store.Message{}, f.err
	}
	msg.ID = "msg_committed"
	f.committed = append(f.committed, msg)
	return msg, nil
}

func userMessage(id, content string) store.Message {
	return store.Message{ID: id, ChatID: "chat_1", SenderID: "prf_user", Content: content, Type: store.MessageTypeText}
}

func TestHandleInjectsReply(t *testing.T) {
	completer := &fakeCompleter{reply: "Happy to help!"}
	committer := &fakeCommitter{}
	h := NewHandler(completer, committer, assistantID, 10)

	state := h.Handle(context.Background(), userMessage("m1", "@assistant what time is it?"), nil, true)
	if state != StateInjected {
		t.Fatalf("state = %s, want injected", state)
	}
	if len(committer.committed) != 1 {
		t.Fatalf("committed = %d, want 1", len(committer.committed))
	}
	reply := committer.committed[0]
	if reply.SenderID != assistantID || reply.Content != "Happy to help!" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if completer.prompts[0] != "what time is it?" {
		t.Fatalf("prompt = %q, want tag stripped", completer.prompts[0])
	}
}

func TestHandleSkipsUntaggedSelfAndDisabled(t *testing.T) {
	completer := &fakeCompleter{reply: "x"}
	h := NewHandler(completer, &fakeCommitter{}, assistantID, 10)
	ctx := context.Background()

	if state := h.Handle(ctx, userMessage("m1", "just chatting"), nil, true); state != "" {
		t.Fatalf("untagged message produced state %s", state)
	}
	if state := h.Handle(ctx, userMessage("m2", "@assistant hi"), nil, false); state != "" {
		t.Fatalf("disabled conversation produced state %s", state)
	}
	self := userMessage("m3", "@assistant hi")
	self.SenderID = assistantID
	if state := h.Handle(ctx, self, nil, true); state != "" {
		t.Fatalf("self message produced state %s", state)
	}
	if completer.calls != 0 {
		t.Fatalf("completer called %d times, want 0", completer.calls)
	}
}

func TestHandleSingleInvocationPerMessage(t *testing.T) {
	completer := &fakeCompleter{reply: "once"}
	committer := &fakeCommitter{}
	h := NewHandler(completer, committer, assistantID, 10)
	msg := userMessage("m1", "@assistant hello")

	first := h.Handle(context.Background(), msg, nil, true)
	second := h.Handle(context.Background(), msg, nil, true)

	if first != StateInjected || second != StateInjected {
		t.Fatalf("states = %s, %s", first, second)
	}
	if completer.calls != 1 {
		t.Fatalf("completer called %d times, want 1", completer.calls)
	}
	if len(committer.committed) != 1 {
		t.Fatalf("committed = %d, want 1", len(committer.committed))
	}
}

func TestHandleCompletionFailureSuppresses(t *testing.T) {
	committer := &fakeCommitter{}
	h := NewHandler(&fakeCompleter{err: errors.New("over quota")}, committer, assistantID, 10)

	state := h.Handle(context.Background(), userMessage("m1", "@assistant hi"), nil, true)
	if state != StateSuppressed {
		t.Fatalf("state = %s, want suppressed", state)
	}
	if len(committer.committed) != 0 {
		t.Fatal("no reply should be committed on completion failure")
	}
}

func TestHandleCommitFailureSuppresses(t *testing.T) {
	h := NewHandler(&fakeCompleter{reply: "x"}, &fakeCommitter{err: errors.New("db down")}, assistantID, 10)

	state := h.Handle(context.Background(), userMessage("m1", "@assistant hi"), nil, true)
	if state != StateSuppressed {
		t.Fatalf("state = %s, want suppressed", state)
	}
}

func TestTurnsWindowAndRoles(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	h := NewHandler(completer, &fakeCommitter{}, assistantID, 2)

	assistantMsg := userMessage("h2", "earlier answer")
	assistantMsg.SenderID = assistantID
	history := []store.Message{
		userMessage("h1", "oldest, should fall outside window"),
		assistantMsg,
		userMessage("h3", "latest question"),
	}
	trigger := userMessage("m1", "@assistant follow-up")

	h.Handle(context.Background(), trigger, append(history, trigger), true)

	turns := completer.turns[0]
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want window of 2", len(turns))
	}
	if turns[0].Role != "model" || turns[0].Content != "earlier answer" {
		t.Fatalf("turn 0 = %+v", turns[0])
	}
	if turns[1].Role != "user" || turns[1].Content != "latest question" {
		t.Fatalf("turn 1 = %+v", turns[1])
	}
}
