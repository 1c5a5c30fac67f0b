package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acyrxbrown/chat-app/internal/util"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- profiles ----

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, COALESCE(avatar_url, ''), created_at, updated_at
		FROM profiles WHERE id=$1
	`, id).Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, COALESCE(avatar_url, ''), created_at, updated_at
		FROM profiles WHERE email=$1
	`, email).Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile by email: %w", err)
	}
	return p, nil
}

// EnsureProfileByEmail finds or creates a profile. Used at bootstrap for the
// assistant's synthetic identity.
func (s *PostgresStore) EnsureProfileByEmail(ctx context.Context, email, fullName string) (Profile, error) {
	profile, err := s.GetProfileByEmail(ctx, email)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}

	profile = Profile{ID: util.NewID("prof"), Email: email, FullName: fullName}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, email, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET full_name=EXCLUDED.full_name
		RETURNING id, created_at, updated_at
	`, profile.ID, profile.Email, profile.FullName).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return profile, nil
}

// ---- chats ----

func (s *PostgresStore) GetChat(ctx context.Context, id string) (Chat, error) {
	var c Chat
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name, ''), type, created_by, created_at, updated_at
		FROM chats WHERE id=$1
	`, id).Scan(&c.ID, &c.Name, &c.Type, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) InsertChat(ctx context.Context, chat Chat) (Chat, error) {
	if chat.ID == "" {
		chat.ID = util.NewID("chat")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chats (id, name, type, created_by)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		RETURNING created_at, updated_at
	`, chat.ID, chat.Name, chat.Type, chat.CreatedBy).Scan(&chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	return chat, nil
}

func (s *PostgresStore) AddParticipant(ctx context.Context, chatID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_participants (id, chat_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`, util.NewID("cp"), chatID, userID)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context, chatID string) ([]ChatParticipant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, user_id, joined_at
		FROM chat_participants WHERE chat_id=$1
		ORDER BY joined_at ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []ChatParticipant
	for rows.Next() {
		var p ChatParticipant
		if err := rows.Scan(&p.ID, &p.ChatID, &p.UserID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// ListChatIDs returns the ids of every chat the user participates in.
func (s *PostgresStore) ListChatIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id FROM chat_participants WHERE user_id=$1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TouchChat bumps the chat's last-activity timestamp. Called for every
// accepted message.
func (s *PostgresStore) TouchChat(ctx context.Context, chatID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chats SET updated_at=NOW() WHERE id=$1`, chatID)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

// ---- messages ----

// InsertMessage commits a message, assigning the store id and the canonical
// creation timestamp. The returned row is what the change feed will echo.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	msg.ID = util.NewID("msg")
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, content, message_type, file_url, file_name, file_size, file_type, reply_to)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, 0), NULLIF($9, ''), NULLIF($10, ''))
		RETURNING created_at
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.Type,
		msg.FileURL, msg.FileName, msg.FileSize, msg.FileType, msg.ReplyTo).Scan(&msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, sender_id, content, message_type,
		       COALESCE(file_url, ''), COALESCE(file_name, ''), COALESCE(file_size, 0), COALESCE(file_type, ''),
		       COALESCE(reply_to, ''), deleted_at, created_at
		FROM messages WHERE id=$1
	`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the newest `limit` visible messages of a chat in
// ascending creation order (fetch window, mirroring the client's view).
func (s *PostgresStore) ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, content, message_type,
		       COALESCE(file_url, ''), COALESCE(file_name, ''), COALESCE(file_size, 0), COALESCE(file_type, ''),
		       COALESCE(reply_to, ''), deleted_at, created_at
		FROM messages
		WHERE chat_id=$1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	// reverse into ascending order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListMessagesWithDeleted returns every message of a chat, soft-deleted rows
// included, in ascending creation order. Thread reconstruction needs deleted
// branch points to keep descendants at their true depth.
func (s *PostgresStore) ListMessagesWithDeleted(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, content, message_type,
		       COALESCE(file_url, ''), COALESCE(file_name, ''), COALESCE(file_size, 0), COALESCE(file_type, ''),
		       COALESCE(reply_to, ''), deleted_at, created_at
		FROM messages
		WHERE chat_id=$1
		ORDER BY created_at ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages with deleted: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SoftDeleteMessage marks the author's own message deleted. Content stays in
// place so dangling reply-to pointers remain resolvable.
func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, id, senderID string) (Message, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE messages SET deleted_at=NOW()
		WHERE id=$1 AND sender_id=$2 AND deleted_at IS NULL
		RETURNING id, chat_id, sender_id, content, message_type,
		          COALESCE(file_url, ''), COALESCE(file_name, ''), COALESCE(file_size, 0), COALESCE(file_type, ''),
		          COALESCE(reply_to, ''), deleted_at, created_at
	`, id, senderID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("soft delete message: %w", err)
	}
	return msg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var msg Message
	var deletedAt sql.NullTime
	err := row.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.Type,
		&msg.FileURL, &msg.FileName, &msg.FileSize, &msg.FileType,
		&msg.ReplyTo, &deletedAt, &msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}
	return msg, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ---- message topics / channel suggestions ----

// InsertMessageTopic records a classification. The unique index on message_id
// makes retried classifications a no-op; the returned bool reports whether a
// new row was written (and therefore whether the topic count moved).
func (s *PostgresStore) InsertMessageTopic(ctx context.Context, topic MessageTopic) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO message_topics (id, message_id, chat_id, topic, is_plan, plan_summary)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (message_id) DO NOTHING
	`, util.NewID("mt"), topic.MessageID, topic.ChatID, topic.Topic, topic.IsPlan, topic.PlanSummary)
	if err != nil {
		return false, fmt.Errorf("insert message topic: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert message topic rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CountTopicMessages(ctx context.Context, chatID, topic string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM message_topics WHERE chat_id=$1 AND topic=$2
	`, chatID, topic).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count topic messages: %w", err)
	}
	return count, nil
}

// UpsertChannelSuggestion creates or refreshes the per-(chat, topic)
// suggestion. The count only ever moves up, and a suggestion the user already
// acted on keeps its status.
func (s *PostgresStore) UpsertChannelSuggestion(ctx context.Context, suggestion ChannelSuggestion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_suggestions (id, chat_id, topic, suggestion_type, message_count, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (chat_id, topic) DO UPDATE SET
			message_count = GREATEST(channel_suggestions.message_count, EXCLUDED.message_count),
			suggestion_type = EXCLUDED.suggestion_type
	`, util.NewID("cs"), suggestion.ChatID, suggestion.Topic, suggestion.Type, suggestion.MessageCount)
	if err != nil {
		return fmt.Errorf("upsert channel suggestion: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChannelSuggestions(ctx context.Context, chatID string) ([]ChannelSuggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, topic, suggestion_type, message_count, status, created_at
		FROM channel_suggestions WHERE chat_id=$1
		ORDER BY message_count DESC, created_at ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list channel suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []ChannelSuggestion
	for rows.Next() {
		var cs ChannelSuggestion
		if err := rows.Scan(&cs.ID, &cs.ChatID, &cs.Topic, &cs.Type, &cs.MessageCount, &cs.Status, &cs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel suggestion: %w", err)
		}
		suggestions = append(suggestions, cs)
	}
	return suggestions, rows.Err()
}

func (s *PostgresStore) UpdateSuggestionStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE channel_suggestions SET status=$2 WHERE id=$1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update suggestion status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update suggestion status rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecountSuggestions reconciles suggestion counts against the topic table.
// The count is advisory and last-write-wins under concurrent classification,
// so a periodic recount keeps it honest without ever regressing it.
func (s *PostgresStore) RecountSuggestions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channel_suggestions cs SET message_count = GREATEST(cs.message_count, sub.total)
		FROM (
			SELECT chat_id, topic, COUNT(*) AS total
			FROM message_topics
			GROUP BY chat_id, topic
		) sub
		WHERE sub.chat_id = cs.chat_id AND sub.topic = cs.topic
	`)
	if err != nil {
		return fmt.Errorf("recount suggestions: %w", err)
	}
	return nil
}

// ---- notifications ----

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, chat_id, message_id, type, title, body)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, NULLIF($7, ''))
	`, util.NewID("ntf"), n.UserID, n.ChatID, n.MessageID, n.Type, n.Title, n.Body)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(chat_id, ''), COALESCE(message_id, ''), type, title, COALESCE(body, ''), read, created_at
		FROM notifications WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ChatID, &n.MessageID, &n.Type, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
