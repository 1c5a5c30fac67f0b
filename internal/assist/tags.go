package assist

import (
	"regexp"
	"strings"
)

var (
	assistantTag      = regexp.MustCompile(`(?i)@assistant\b`)
	assistantTagStrip = regexp.MustCompile(`(?i)@assistant\b[:;,]?\s*`)
)

// DetectTag reports whether content carries the in-band assistant directive.
func DetectTag(content string) bool {
	return assistantTag.MatchString(content)
}

// ExtractPrompt strips the assistant tag and returns what the user actually
// asked.
func ExtractPrompt(content string) string {
	return strings.TrimSpace(assistantTagStrip.ReplaceAllString(content, ""))
}

// Generation tags, spelled the way shipped clients already send them.
const (
	TagDiffusionPhoto = "@diffussion-photo"
	TagDiffusionVideo = "@diffussion-video"
)

type DiffusionKind string

const (
	DiffusionPhoto DiffusionKind = "photo"
	DiffusionVideo DiffusionKind = "video"
)

var diffusionTagStrip = regexp.MustCompile(`(?i)\s*@diffussion-(photo|video)\s*`)

// ParseDiffusion detects an image/video generation directive. Photo takes
// precedence when both tags are present. The prompt is the message with the
// tags removed; a bare tag falls back to a generic prompt so generation
// still has something to work with.
func ParseDiffusion(content string) (DiffusionKind, string, bool) {
	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)
	hasPhoto := strings.Contains(lower, TagDiffusionPhoto)
	hasVideo := strings.Contains(lower, TagDiffusionVideo)
	if !hasPhoto && !hasVideo {
		return "", "", false
	}

	kind := DiffusionVideo
	if hasPhoto {
		kind = DiffusionPhoto
	}

	prompt := strings.TrimSpace(diffusionTagStrip.ReplaceAllString(trimmed, " "))
	if prompt == "" {
		prompt = "Create an image"
	}
	return kind, prompt, true
}
