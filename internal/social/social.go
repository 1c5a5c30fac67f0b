// Package social is the communication-coaching layer: AI-drafted reply
// suggestions, tone analysis for unsent drafts, and conversation starters.
// Strictly out-of-band; the send path never waits on it, and every failure
// degrades to a canned fallback instead of an error.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/acyrxbrown/chat-app/internal/ai"
)

type ReplySuggestion struct {
	Suggestion  string `json:"suggestion"`
	Tone        string `json:"tone"` // friendly | professional | casual | empathetic | playful
	Explanation string `json:"explanation,omitempty"`
}

type ToneAnalysis struct {
	Tone        string   `json:"tone"`
	Sentiment   string   `json:"sentiment"` // positive | neutral | negative
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Confidence  int      `json:"confidence"`
}

type Completer interface {
	Complete(ctx context.Context, system string, history []ai.Turn, prompt string) (string, error)
}

type Coach struct {
	completer Completer
}

func NewCoach(completer Completer) *Coach {
	return &Coach{completer: completer}
}

const suggestPrompt = `You are a helpful AI assistant that helps people communicate better and reduce social anxiety.

The other person just sent this message:
%q

Recent conversation context:
%s

Generate 3-5 thoughtful reply suggestions that:
1. Are appropriate for the context
2. Show engagement and interest
3. Are natural and conversational
4. Help reduce social anxiety by being friendly and approachable

Return your response as a JSON array of objects with this exact format:
[
  {
    "suggestion": "the suggested reply text",
    "tone": "friendly|professional|casual|empathetic|playful",
    "explanation": "brief explanation of why this reply works well"
  }
]

Only return the JSON array, no other text.`

// SuggestReplies drafts replies to the given incoming message. The last few
// history turns ground the suggestions; on any failure a small canned set is
// returned so the UI always has something to offer.
func (c *Coach) SuggestReplies(ctx context.Context, message string, history []ai.Turn) []ReplySuggestion {
	prompt := fmt.Sprintf(suggestPrompt, message, renderHistory(history, 5))

	raw, err := c.completer.Complete(ctx, "", nil, prompt)
	if err != nil {
		log.Printf("social: reply suggestions unavailable: %v", err)
		return fallbackSuggestions()
	}

	var suggestions []ReplySuggestion
	if !parseJSONArray(raw, &suggestions) || len(suggestions) == 0 {
		return fallbackSuggestions()
	}
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}

const tonePrompt = `You are a helpful AI assistant that analyzes message tone to help people communicate better.

Analyze this message the user is about to send:
%q

Analyze:
1. The overall tone (e.g., friendly, formal, casual, sarcastic, direct, etc.)
2. The sentiment (positive, neutral, or negative)
3. Any potential issues (e.g., sounds rude, too formal, unclear, etc.)
4. Suggestions for improvement if needed
5. Confidence level (0-100) in your analysis

Return your response as a JSON object with this exact format:
{
  "tone": "description of the tone",
  "sentiment": "positive|neutral|negative",
  "issues": ["issue1", "issue2"],
  "suggestions": ["suggestion1", "suggestion2"],
  "confidence": 85
}

Only return the JSON object, no other text.`

// AnalyzeTone examines an unsent draft. Failures collapse to a neutral
// zero-confidence analysis rather than an error.
func (c *Coach) AnalyzeTone(ctx context.Context, message string) ToneAnalysis {
	raw, err := c.completer.Complete(ctx, "", nil, fmt.Sprintf(tonePrompt, message))
	if err != nil {
		log.Printf("social: tone analysis unavailable: %v", err)
		return neutralTone()
	}

	var analysis ToneAnalysis
	if !parseJSONObject(raw, &analysis) || analysis.Tone == "" {
		return neutralTone()
	}
	return analysis
}

const startersPrompt = `You are a helpful AI assistant that helps people start conversations and reduce social anxiety.

Recipient: %s

Generate 5-7 natural, friendly conversation starters that:
1. Are appropriate for the context
2. Are easy to respond to
3. Show genuine interest
4. Help reduce social anxiety
5. Are not too generic or cliché

Return your response as a JSON array of strings:
["starter1", "starter2", "starter3"]

Only return the JSON array, no other text.`

// ConversationStarters proposes openers for a conversation with the named
// recipient.
func (c *Coach) ConversationStarters(ctx context.Context, recipientName string) []string {
	if recipientName == "" {
		recipientName = "someone"
	}
	raw, err := c.completer.Complete(ctx, "", nil, fmt.Sprintf(startersPrompt, recipientName))
	if err != nil {
		log.Printf("social: conversation starters unavailable: %v", err)
		return fallbackStarters()
	}

	var starters []string
	if !parseJSONArray(raw, &starters) || len(starters) == 0 {
		return fallbackStarters()
	}
	return starters
}

func renderHistory(history []ai.Turn, max int) string {
	if len(history) > max {
		history = history[len(history)-max:]
	}
	var b strings.Builder
	for _, turn := range history {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func parseJSONArray(raw string, out any) bool {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return false
	}
	return json.Unmarshal([]byte(raw[start:end+1]), out) == nil
}

func parseJSONObject(raw string, out any) bool {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return false
	}
	return json.Unmarshal([]byte(raw[start:end+1]), out) == nil
}

func fallbackSuggestions() []ReplySuggestion {
	return []ReplySuggestion{
		{
			Suggestion:  "Thanks for your message!",
			Tone:        "friendly",
			Explanation: "A simple, friendly acknowledgment",
		},
		{
			Suggestion:  "That sounds interesting! Tell me more.",
			Tone:        "casual",
			Explanation: "Shows interest and encourages conversation",
		},
	}
}

func neutralTone() ToneAnalysis {
	return ToneAnalysis{
		Tone:        "neutral",
		Sentiment:   "neutral",
		Issues:      []string{},
		Suggestions: []string{},
		Confidence:  0,
	}
}

func fallbackStarters() []string {
	return []string{
		"Hey! How are you doing?",
		"Hope you're having a good day!",
		"What have you been up to?",
	}
}
