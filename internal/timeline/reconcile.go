package timeline

import (
	"sync"
	"time"

	"github.com/acyrxbrown/chat-app/internal/feed"
	"github.com/acyrxbrown/chat-app/internal/store"
)

// pendingSend tracks one optimistic entry awaiting its store-confirmed
// counterpart. Discarded once matched, failed, or expired.
type pendingSend struct {
	id       string
	chatID   string
	senderID string
	content  string
	queuedAt time.Time
}

// Reconciler merges locally-issued writes and remotely-delivered events into
// the cache. Two outcomes race for every send: the write call's own result
// and the change feed's echoed insert. Whichever lands first replaces the
// optimistic entry; the loser is a no-op because the cache is idempotent on
// id.
type Reconciler struct {
	mu      sync.Mutex
	cache   *Cache
	pending []pendingSend
}

func NewReconciler() *Reconciler {
	return &Reconciler{cache: NewCache()}
}

// Hydrate seeds the cache with the store's fetch window on conversation open.
func (r *Reconciler) Hydrate(messages []store.Message) {
	for _, msg := range messages {
		if msg.Deleted() {
			continue
		}
		r.cache.Append(Entry{Message: msg, State: StateConfirmed})
	}
}

// AppendLocal records an optimistic send before the store write is issued.
// The message carries a client-minted id and the local clock's estimate of
// created_at; both are provisional until reconciliation.
func (r *Reconciler) AppendLocal(msg store.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Append(Entry{Message: msg, State: StatePending})
	r.pending = append(r.pending, pendingSend{
		id:       msg.ID,
		chatID:   msg.ChatID,
		senderID: msg.SenderID,
		content:  msg.Content,
		queuedAt: time.Now(),
	})
}

// ConfirmSend resolves the write-call branch of the race: the store returned
// the committed row for a specific optimistic entry.
func (r *Reconciler) ConfirmSend(optimisticID string, confirmed store.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropPending(optimisticID)
	r.cache.Replace(optimisticID, Entry{Message: confirmed, State: StateConfirmed})
}

// FailSend marks an optimistic entry failed. It stays visible; resending is
// an explicit new attempt, never an automatic retry.
func (r *Reconciler) FailSend(optimisticID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropPending(optimisticID)
	r.cache.SetState(optimisticID, StateFailed)
}

// Apply folds one change-feed event into the cache. Inserted events are first
// checked against pending optimistic entries: a match on conversation,
// sender and verbatim content is this send's confirmation arriving via the
// feed branch of the race. Ambiguous matches resolve FIFO.
func (r *Reconciler) Apply(event feed.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Kind {
	case feed.KindInserted:
		if optimisticID, ok := r.matchPending(event.Message); ok {
			r.cache.Replace(optimisticID, Entry{Message: event.Message, State: StateConfirmed})
			return
		}
		r.cache.Append(Entry{Message: event.Message, State: StateConfirmed})
	case feed.KindUpdated:
		r.cache.Update(event.Message)
	case feed.KindRemoved:
		r.cache.Remove(event.MessageID)
	}
}

// ExpirePending marks optimistic entries older than maxAge as failed and
// returns their ids. Bounds the wait for a confirmation that never comes.
func (r *Reconciler) ExpirePending(maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var expired []string
	kept := r.pending[:0]
	for _, p := range r.pending {
		if p.queuedAt.Before(cutoff) {
			expired = append(expired, p.id)
			r.cache.SetState(p.id, StateFailed)
			continue
		}
		kept = append(kept, p)
	}
	r.pending = kept
	return expired
}

// Snapshot returns the ordered visible entries.
func (r *Reconciler) Snapshot() []Entry {
	return r.cache.Snapshot()
}

// PendingCount reports how many sends still await confirmation.
func (r *Reconciler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}

// matchPending must be called with r.mu held.
func (r *Reconciler) matchPending(msg store.Message) (string, bool) {
	for i, p := range r.pending {
		if p.chatID == msg.ChatID && p.senderID == msg.SenderID && p.content == msg.Content {
			id := p.id
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return id, true
		}
	}
	return "", false
}

// dropPending must be called with r.mu held.
func (r *Reconciler) dropPending(id string) {
	for i, p := range r.pending {
		if p.id == id {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}
