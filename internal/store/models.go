package store

import "time"

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Type      string    `json:"type"` // direct | group
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatParticipant struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chat_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message is the row shape shared with the change feed. Store-assigned ids
// use the "msg_" prefix; optimistic client ids are UUIDs, so the two id
// spaces can never be confused before reconciliation.
type Message struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chat_id"`
	SenderID  string     `json:"sender_id"`
	Content   string     `json:"content"`
	Type      string     `json:"message_type"`
	FileURL   string     `json:"file_url,omitempty"`
	FileName  string     `json:"file_name,omitempty"`
	FileSize  int64      `json:"file_size,omitempty"`
	FileType  string     `json:"file_type,omitempty"`
	ReplyTo   string     `json:"reply_to,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Deleted reports whether the message has been soft-deleted.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

const (
	MessageTypeText     = "text"
	MessageTypeGIF      = "gif"
	MessageTypeSticker  = "sticker"
	MessageTypeFile     = "file"
	MessageTypeImage    = "image"
	MessageTypePoll     = "poll"
	MessageTypeTask     = "task"
	MessageTypeCalendar = "calendar_event"
	MessageTypeReminder = "reminder"
)

type MessageTopic struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	ChatID      string    `json:"chat_id"`
	Topic       string    `json:"topic"`
	IsPlan      bool      `json:"is_plan"`
	PlanSummary string    `json:"plan_summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type ChannelSuggestion struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chat_id"`
	Topic        string    `json:"topic"`
	Type         string    `json:"suggestion_type"` // topic | plan | subgroup
	MessageCount int       `json:"message_count"`
	Status       string    `json:"status"` // pending | accepted | ignored
	CreatedAt    time.Time `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Type      string    `json:"type"` // message | mention | reply
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
