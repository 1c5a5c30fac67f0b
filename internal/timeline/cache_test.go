package timeline

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/acyrxbrown/chat-app/internal/store"
)

func msgAt(id string, at time.Time) store.Message {
	return store.Message{
		ID:        id,
		ChatID:    "chat_1",
		SenderID:  "user_1",
		Content:   "content of " + id,
		Type:      store.MessageTypeText,
		CreatedAt: at,
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestAppendKeepsTimestampOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache()

	cache.Append(Entry{Message: msgAt("b", base.Add(2*time.Second)), State: StateConfirmed})
	cache.Append(Entry{Message: msgAt("a", base), State: StateConfirmed})
	cache.Append(Entry{Message: msgAt("c", base.Add(4*time.Second)), State: StateConfirmed})

	got := ids(cache.Snapshot())
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestAppendDuplicateIDIsNoOp(t *testing.T) {
	base := time.Now().UTC()
	cache := NewCache()

	if !cache.Append(Entry{Message: msgAt("a", base), State: StateConfirmed}) {
		t.Fatal("first append should succeed")
	}
	if cache.Append(Entry{Message: msgAt("a", base.Add(time.Hour)), State: StateConfirmed}) {
		t.Fatal("duplicate id should be rejected")
	}
	if cache.Len() != 1 {
		t.Fatalf("len = %d, want 1", cache.Len())
	}
}

func TestOrderAndDedupUnderShuffledDuplicatedAppends(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var all []Entry
	for i := 0; i < 50; i++ {
		entry := Entry{
			Message: msgAt(fmt.Sprintf("msg_%03d", i), base.Add(time.Duration(i)*time.Second)),
			State:   StateConfirmed,
		}
		// every entry delivered at least twice
		all = append(all, entry, entry)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

		cache := NewCache()
		for _, entry := range all {
			cache.Append(entry)
		}

		snapshot := cache.Snapshot()
		if len(snapshot) != 50 {
			t.Fatalf("trial %d: len = %d, want 50", trial, len(snapshot))
		}
		for i := 1; i < len(snapshot); i++ {
			if snapshot[i].CreatedAt.Before(snapshot[i-1].CreatedAt) {
				t.Fatalf("trial %d: out of order at %d", trial, i)
			}
		}
	}
}

func TestReplaceKeepsPositionWithinTolerance(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache()
	cache.Append(Entry{Message: msgAt("a", base), State: StateConfirmed})
	cache.Append(Entry{Message: msgAt("tmp", base.Add(time.Second)), State: StatePending})
	cache.Append(Entry{Message: msgAt("c", base.Add(2*time.Second)), State: StateConfirmed})

	// confirmed timestamp drifts 3s forward, which would naively sort after c
	confirmed := msgAt("msg_real", base.Add(4*time.Second))
	cache.Replace("tmp", Entry{Message: confirmed, State: StateConfirmed})

	got := ids(cache.Snapshot())
	want := []string{"a", "msg_real", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestReplaceReordersBeyondTolerance(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache()
	cache.Append(Entry{Message: msgAt("tmp", base), State: StatePending})
	cache.Append(Entry{Message: msgAt("b", base.Add(time.Second)), State: StateConfirmed})

	confirmed := msgAt("msg_real", base.Add(time.Minute))
	cache.Replace("tmp", Entry{Message: confirmed, State: StateConfirmed})

	got := ids(cache.Snapshot())
	want := []string{"b", "msg_real"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestReplaceDropsLoserWhenConfirmedAlreadyCached(t *testing.T) {
	base := time.Now().UTC()
	cache := NewCache()
	cache.Append(Entry{Message: msgAt("tmp", base), State: StatePending})
	// feed branch of the race already delivered the confirmed row
	cache.Append(Entry{Message: msgAt("msg_real", base), State: StateConfirmed})

	cache.Replace("tmp", Entry{Message: msgAt("msg_real", base), State: StateConfirmed})

	if cache.Len() != 1 {
		t.Fatalf("len = %d, want 1", cache.Len())
	}
	if got := cache.Snapshot()[0].ID; got != "msg_real" {
		t.Fatalf("remaining id = %s, want msg_real", got)
	}
}

func TestUpdatePreservesStateAndIgnoresUnknown(t *testing.T) {
	base := time.Now().UTC()
	cache := NewCache()
	cache.Append(Entry{Message: msgAt("a", base), State: StatePending})

	changed := msgAt("a", base)
	changed.Content = "edited"
	cache.Update(changed)

	snapshot := cache.Snapshot()
	if snapshot[0].Content != "edited" {
		t.Fatalf("content = %q, want edited", snapshot[0].Content)
	}
	if snapshot[0].State != StatePending {
		t.Fatalf("state = %s, want pending", snapshot[0].State)
	}

	cache.Update(msgAt("ghost", base))
	if cache.Len() != 1 {
		t.Fatalf("len = %d after unknown update, want 1", cache.Len())
	}
}

func TestRemove(t *testing.T) {
	base := time.Now().UTC()
	cache := NewCache()
	cache.Append(Entry{Message: msgAt("a", base), State: StateConfirmed})

	if !cache.Remove("a") {
		t.Fatal("remove existing should return true")
	}
	if cache.Remove("a") {
		t.Fatal("second remove should return false")
	}
	if cache.Len() != 0 {
		t.Fatalf("len = %d, want 0", cache.Len())
	}
}
