package social

import (
	"context"
	"errors"
	"testing"

	"github.com/acyrxbrown/chat-app/internal/ai"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, system string, history []ai.Turn, prompt string) (string, error) {
	return f.reply, f.err
}

func TestSuggestRepliesParsesWrappedJSON(t *testing.T) {
	coach := NewCoach(&fakeCompleter{reply: "Here you go:\n[{\"suggestion\":\"Sounds great!\",\"tone\":\"friendly\",\"explanation\":\"positive\"}]\nDone."})
	got := coach.SuggestReplies(context.Background(), "want to grab lunch?", nil)
	if len(got) != 1 {
		t.Fatalf("suggestions = %d, want 1", len(got))
	}
	if got[0].Suggestion != "Sounds great!" || got[0].Tone != "friendly" {
		t.Fatalf("unexpected suggestion %+v", got[0])
	}
}

func TestSuggestRepliesFallsBackOnError(t *testing.T) {
	coach := NewCoach(&fakeCompleter{err: errors.New("boom")})
	got := coach.SuggestReplies(context.Background(), "hi", nil)
	if len(got) == 0 {
		t.Fatal("expected canned suggestions on failure")
	}
}

func TestSuggestRepliesCapsAtFive(t *testing.T) {
	reply := `[{"suggestion":"a","tone":"casual"},{"suggestion":"b","tone":"casual"},{"suggestion":"c","tone":"casual"},{"suggestion":"d","tone":"casual"},{"suggestion":"e","tone":"casual"},{"suggestion":"f","tone":"casual"}]`
	coach := NewCoach(&fakeCompleter{reply: reply})
	got := coach.SuggestReplies(context.Background(), "hi", nil)
	if len(got) != 5 {
		t.Fatalf("suggestions = %d, want 5", len(got))
	}
}

func TestAnalyzeTone(t *testing.T) {
	coach := NewCoach(&fakeCompleter{reply: `{"tone":"direct","sentiment":"negative","issues":["sounds curt"],"suggestions":["soften the opening"],"confidence":80}`})
	got := coach.AnalyzeTone(context.Background(), "fix it now")
	if got.Tone != "direct" || got.Sentiment != "negative" || got.Confidence != 80 {
		t.Fatalf("unexpected analysis %+v", got)
	}
}

func TestAnalyzeToneNeutralFallback(t *testing.T) {
	for _, reply := range []string{"not json at all", ""} {
		coach := NewCoach(&fakeCompleter{reply: reply})
		got := coach.AnalyzeTone(context.Background(), "hello")
		if got.Tone != "neutral" || got.Sentiment != "neutral" || got.Confidence != 0 {
			t.Fatalf("reply %q: expected neutral fallback, got %+v", reply, got)
		}
	}
}

func TestConversationStartersFallback(t *testing.T) {
	coach := NewCoach(&fakeCompleter{err: errors.New("rate limited")})
	got := coach.ConversationStarters(context.Background(), "Sam")
	if len(got) != 3 {
		t.Fatalf("starters = %d, want 3 canned", len(got))
	}
}
