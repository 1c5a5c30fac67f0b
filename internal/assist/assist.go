// Package assist injects generative replies into the timeline when a
// committed message tags the assistant. The injected reply is a first-class
// message from a synthetic sender, persisted through the normal commit path
// so every participant sees it.
package assist

import (
	"context"
	"log"
	"sync"

	"github.com/acyrxbrown/chat-app/internal/ai"
	"github.com/acyrxbrown/chat-app/internal/store"
)

// State tracks the per-triggering-message machine:
// Detected -> Requesting -> {Injected | Suppressed}.
type State string

const (
	StateDetected   State = "detected"
	StateRequesting State = "requesting"
	StateInjected   State = "injected"
	StateSuppressed State = "suppressed"
)

const systemPrompt = `You are a helpful AI assistant named Assistant. You are integrated into a chat application. Be concise, friendly, and helpful. When users tag you with @assistant, respond naturally to their questions. Keep responses conversational and appropriate for a chat context.`

// Completer is the generative-text capability the handler invokes.
type Completer interface {
	Complete(ctx context.Context, system string, history []ai.Turn, prompt string) (string, error)
}

// Committer writes the injected reply through the normal message commit path
// (store insert, activity bump, feed publish).
type Committer interface {
	CommitMessage(ctx context.Context, msg store.Message) (store.Message, error)
}

type Handler struct {
	completer   Completer
	committer   Committer
	assistantID string
	window      int

	mu      sync.Mutex
	handled map[string]State
}

func NewHandler(completer Completer, committer Committer, assistantID string, historyWindow int) *Handler {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &Handler{
		completer:   completer,
		committer:   committer,
		assistantID: assistantID,
		window:      historyWindow,
		handled:     make(map[string]State),
	}
}

// Handle runs the interjection machine for one committed message. Detection
// operates on the store-confirmed row (never the optimistic draft) and is
// keyed by store id, so duplicate feed delivery of the same commit cannot
// invoke the model twice. The triggering message is already durable; nothing
// here can block or undo it. aiEnabled is the conversation's explicit
// configuration, passed in rather than read from ambient state.
func (h *Handler) Handle(ctx context.Context, msg store.Message, history []store.Message, aiEnabled bool) State {
	if !aiEnabled || msg.SenderID == h.assistantID || !DetectTag(msg.Content) {
		return ""
	}

	if !h.claim(msg.ID) {
		return h.stateOf(msg.ID)
	}
	h.setState(msg.ID, StateRequesting)

	reply, err := h.completer.Complete(ctx, systemPrompt, h.turns(msg, history), ExtractPrompt(msg.Content))
	if err != nil {
		// The user's message stands regardless; no inline error, no retry.
		log.Printf("assist: completion for %s suppressed: %v", msg.ID, err)
		h.setState(msg.ID, StateSuppressed)
		return StateSuppressed
	}

	if _, err := h.committer.CommitMessage(ctx, store.Message{
		ChatID:   msg.ChatID,
		SenderID: h.assistantID,
		Content:  reply,
		Type:     store.MessageTypeText,
	}); err != nil {
		log.Printf("assist: commit reply for %s suppressed: %v", msg.ID, err)
		h.setState(msg.ID, StateSuppressed)
		return StateSuppressed
	}

	h.setState(msg.ID, StateInjected)
	return StateInjected
}

// turns maps the most recent visible messages, oldest first, onto completion
// context. The triggering message itself is excluded; it becomes the prompt.
func (h *Handler) turns(trigger store.Message, history []store.Message) []ai.Turn {
	visible := make([]store.Message, 0, len(history))
	for _, m := range history {
		if m.Deleted() || m.ID == trigger.ID {
			continue
		}
		visible = append(visible, m)
	}
	if len(visible) > h.window {
		visible = visible[len(visible)-h.window:]
	}

	turns := make([]ai.Turn, 0, len(visible))
	for _, m := range visible {
		role := "user"
		if m.SenderID == h.assistantID {
			role = "model"
		}
		turns = append(turns, ai.Turn{Role: role, Content: m.Content})
	}
	return turns
}

// claim records the message id; the second caller for the same id loses.
func (h *Handler) claim(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, seen := h.handled[id]; seen {
		return false
	}
	if len(h.handled) > 4096 {
		h.handled = make(map[string]State)
	}
	h.handled[id] = StateDetected
	return true
}

func (h *Handler) setState(id string, state State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled[id] = state
}

func (h *Handler) stateOf(id string) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handled[id]
}
