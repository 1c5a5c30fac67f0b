// Package search indexes chat messages for full-text lookup. Meilisearch is
// the primary backend with PostgreSQL FTS as the fallback, so history search
// keeps working when the index server is down.
package search

import "time"

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId"`
	Snippet     string    `json:"snippet"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Query describes a search request. Results are always confined to chats
// the caller belongs to: either the single chat in FilterChatID (membership
// checked by the service) or the caller's chat set in ScopeChatIDs.
type Query struct {
	Text         string
	FilterChatID string
	FilterSender string
	ScopeChatIDs []string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over messages.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push message records into a search index.
type Indexer interface {
	IndexMessage(rec MessageRecord) error
	DeleteMessage(id string) error
}

// MessageRecord is the data we index for a message. Soft-deleted messages are
// never indexed; deletion removes them from the index instead.
type MessageRecord struct {
	ID          string `json:"id"`
	ChatID      string `json:"chatId"`
	SenderID    string `json:"senderId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	CreatedAt   int64  `json:"createdAt"` // unix seconds, sortable
}
