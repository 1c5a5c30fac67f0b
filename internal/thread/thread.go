// Package thread rebuilds reply trees from the flat reply-to pointer stored
// on each message. The tree is reconstructed on demand from the conversation
// window rather than maintained server-side; conversations are bounded by
// the fetch window, so the O(n) rebuild is cheap.
package thread

import (
	"sort"

	"github.com/acyrxbrown/chat-app/internal/store"
)

// Node is one emitted message with its indentation depth; the root is 0.
type Node struct {
	Message store.Message `json:"message"`
	Depth   int           `json:"depth"`
}

// Reconstruct walks the reply tree under rootID depth-first, children in
// ascending creation order, and returns (message, depth) pairs for an
// indented thread view.
//
// messages must be the conversation's full set including soft-deleted rows:
// a deleted message is excluded from the emitted sequence but still acts as
// a branch point, so its descendants keep the depth they would have had.
// A visited set guards against reply-to cycles, which legitimate clients
// never produce but a corrupt row must not turn into infinite recursion.
func Reconstruct(messages []store.Message, rootID string) []Node {
	byID := make(map[string]store.Message, len(messages))
	children := make(map[string][]store.Message)
	for _, msg := range messages {
		byID[msg.ID] = msg
		if msg.ReplyTo != "" {
			children[msg.ReplyTo] = append(children[msg.ReplyTo], msg)
		}
	}
	for parent := range children {
		kids := children[parent]
		sort.SliceStable(kids, func(i, j int) bool {
			return kids[i].CreatedAt.Before(kids[j].CreatedAt)
		})
	}

	root, ok := byID[rootID]
	if !ok {
		return nil
	}

	var out []Node
	visited := make(map[string]bool)

	var walk func(msg store.Message, depth int)
	walk = func(msg store.Message, depth int) {
		if visited[msg.ID] {
			return
		}
		visited[msg.ID] = true
		if !msg.Deleted() {
			out = append(out, Node{Message: msg, Depth: depth})
		}
		for _, child := range children[msg.ID] {
			walk(child, depth+1)
		}
	}
	walk(root, 0)
	return out
}

// ReplyCounts maps parent message id to the number of direct replies, for
// deciding whether to show thread affordances at all. Soft-deleted replies
// do not count; a deleted parent keeps its entry because dangling reply-to
// pointers stay valid.
func ReplyCounts(messages []store.Message) map[string]int {
	counts := make(map[string]int)
	for _, msg := range messages {
		if msg.ReplyTo == "" || msg.Deleted() {
			continue
		}
		counts[msg.ReplyTo]++
	}
	return counts
}
