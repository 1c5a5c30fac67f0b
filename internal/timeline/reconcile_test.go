package timeline

import (
	"testing"
	"time"

	"github.com/acyrxbrown/chat-app/internal/feed"
	"github.com/acyrxbrown/chat-app/internal/store"
)

func TestHydrateSkipsDeleted(t *testing.T) {
	base := time.Now().UTC()
	deletedAt := base.Add(time.Minute)

	deleted := msgAt("gone", base.Add(time.Second))
	deleted.DeletedAt = &deletedAt

	rec := NewReconciler()
	rec.Hydrate([]store.Message{msgAt("a", base), deleted, msgAt("b", base.Add(2*time.Second))})

	if got := len(rec.Snapshot()); got != 2 {
		t.Fatalf("visible = %d, want 2", got)
	}
}

func TestEchoAfterConfirmYieldsSingleMessage(t *testing.T) {
	base := time.Now().UTC()
	rec := NewReconciler()

	local := msgAt("tmp-uuid", base)
	rec.AppendLocal(local)

	confirmed := msgAt("msg_abc", base.Add(time.Second))
	rec.ConfirmSend("tmp-uuid", confirmed)

	// the feed echoes the same committed row afterwards
	rec.Apply(feed.Event{Kind: feed.KindInserted, Message: confirmed})

	snapshot := rec.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("visible = %d, want 1", len(snapshot))
	}
	if snapshot[0].ID != "msg_abc" || snapshot[0].State != StateConfirmed {
		t.Fatalf("unexpected entry %+v", snapshot[0])
	}
	if rec.PendingCount() != 0 {
		t.Fatalf("pending = %d, want 0", rec.PendingCount())
	}
}

func TestFeedEchoBeforeConfirmMatchesPending(t *testing.T) {
	base := time.Now().UTC()
	rec := NewReconciler()

	local := msgAt("tmp-uuid", base)
	rec.AppendLocal(local)

	echoed := msgAt("msg_abc", base.Add(time.Second))
	rec.Apply(feed.Event{Kind: feed.KindInserted, Message: echoed})

	// the write call's own confirmation lands second and must not duplicate
	rec.ConfirmSend("tmp-uuid", echoed)

	snapshot := rec.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("visible = %d, want 1", len(snapshot))
	}
	if snapshot[0].ID != "msg_abc" {
		t.Fatalf("id = %s, want msg_abc", snapshot[0].ID)
	}
}

func TestAmbiguousPendingMatchesResolveFIFO(t *testing.T) {
	base := time.Now().UTC()
	rec := NewReconciler()

	first := msgAt("tmp-1", base)
	second := msgAt("tmp-2", base.Add(time.Second))
	second.Content = first.Content // identical sends
	rec.AppendLocal(first)
	rec.AppendLocal(second)

	echoed := msgAt("msg_1", base)
	echoed.Content = first.Content
	rec.Apply(feed.Event{Kind: feed.KindInserted, Message: echoed})

	snapshot := rec.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("visible = %d, want 2", len(snapshot))
	}
	// the older pending entry was consumed; tmp-2 still awaits its echo
	for _, entry := range snapshot {
		if entry.ID == "tmp-1" {
			t.Fatal("oldest pending entry should have been replaced")
		}
	}
	if rec.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", rec.PendingCount())
	}
}

func TestFailSendKeepsEntryVisible(t *testing.T) {
	base := time.Now().UTC()
	rec := NewReconciler()

	rec.AppendLocal(msgAt("tmp-uuid", base))
	rec.FailSend("tmp-uuid")

	snapshot := rec.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("visible = %d, want 1", len(snapshot))
	}
	if snapshot[0].State != StateFailed {
		t.Fatalf("state = %s, want failed", snapshot[0].State)
	}
	if rec.PendingCount() != 0 {
		t.Fatalf("pending = %d, want 0", rec.PendingCount())
	}
}

func TestRemovedEventDropsMessage(t *testing.T) {
	base := time.Now().UTC()
	rec := NewReconciler()
	rec.Hydrate([]store.Message{msgAt("a", base)})

	rec.Apply(feed.Event{Kind: feed.KindRemoved, MessageID: "a"})

	if got := len(rec.Snapshot()); got != 0 {
		t.Fatalf("visible = %d, want 0", got)
	}

	// duplicate removal is absorbed
	rec.Apply(feed.Event{Kind: feed.KindRemoved, MessageID: "a"})
}

func TestExpirePending(t *testing.T) {
	base := time.Now().UTC()
	rec := NewReconciler()
	rec.AppendLocal(msgAt("tmp-old", base))

	// backdate the queued entry
	rec.mu.Lock()
	rec.pending[0].queuedAt = time.Now().Add(-time.Minute)
	rec.mu.Unlock()

	rec.AppendLocal(msgAt("tmp-new", base.Add(time.Second)))

	expired := rec.ExpirePending(30 * time.Second)
	if len(expired) != 1 || expired[0] != "tmp-old" {
		t.Fatalf("expired = %v, want [tmp-old]", expired)
	}
	if rec.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", rec.PendingCount())
	}

	for _, entry := range rec.Snapshot() {
		if entry.ID == "tmp-old" && entry.State != StateFailed {
			t.Fatalf("expired entry state = %s, want failed", entry.State)
		}
	}
}
