package assist

import "testing"

func TestDetectTag(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"@assistant what's up", true},
		{"hey @Assistant, help", true},
		{"@ASSISTANT", true},
		{"email me at bob@assistants.io", false},
		{"no tag here", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := DetectTag(tc.content); got != tc.want {
			t.Errorf("DetectTag(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestExtractPrompt(t *testing.T) {
	cases := []struct {
		content string
		want    string
	}{
		{"@assistant what's the weather?", "what's the weather?"},
		{"@assistant: summarize this", "summarize this"},
		{"please @assistant, explain", "please explain"},
		{"@assistant", ""},
	}
	for _, tc := range cases {
		if got := ExtractPrompt(tc.content); got != tc.want {
			t.Errorf("ExtractPrompt(%q) = %q, want %q", tc.content, got, tc.want)
		}
	}
}

func TestParseDiffusion(t *testing.T) {
	kind, prompt, ok := ParseDiffusion("@diffussion-photo a cat on a skateboard")
	if !ok || kind != DiffusionPhoto || prompt != "a cat on a skateboard" {
		t.Fatalf("photo tag: kind=%s prompt=%q ok=%v", kind, prompt, ok)
	}

	kind, prompt, ok = ParseDiffusion("make this move @diffussion-video")
	if !ok || kind != DiffusionVideo || prompt != "make this move" {
		t.Fatalf("video tag: kind=%s prompt=%q ok=%v", kind, prompt, ok)
	}

	// photo wins when both tags appear
	kind, _, ok = ParseDiffusion("@diffussion-video @diffussion-photo sunset")
	if !ok || kind != DiffusionPhoto {
		t.Fatalf("both tags: kind=%s, want photo", kind)
	}

	// bare tag still generates something
	_, prompt, ok = ParseDiffusion("@diffussion-photo")
	if !ok || prompt != "Create an image" {
		t.Fatalf("bare tag prompt = %q", prompt)
	}

	if _, _, ok := ParseDiffusion("just words"); ok {
		t.Fatal("plain message should not parse as diffusion")
	}
}
