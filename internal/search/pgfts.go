package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over live (not soft-deleted) messages, ranked
// with ts_rank and snippeted with ts_headline.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	where, args := ftsWhere(q, tsQuery)

	countSQL := fmt.Sprintf("SELECT count(*) FROM messages m WHERE %s", where)

	dataSQL := fmt.Sprintf(`
		SELECT m.id, m.chat_id, m.sender_id,
			ts_headline('english', m.content, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			m.message_type, m.created_at
		FROM messages m
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', m.content), %s) DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.ChatID, &r.SenderID, &r.Snippet, &r.MessageType, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// ftsWhere builds the WHERE clause and its arguments: live rows matching the
// text query, confined to the explicit chat filter or the caller's chat set,
// optionally narrowed by sender.
func ftsWhere(q Query, tsQuery string) (string, []any) {
	args := []any{q.Text}
	argN := 2

	where := fmt.Sprintf("m.deleted_at IS NULL AND to_tsvector('english', m.content) @@ %s", tsQuery)
	switch {
	case q.FilterChatID != "":
		where += fmt.Sprintf(" AND m.chat_id = $%d", argN)
		args = append(args, q.FilterChatID)
		argN++
	case len(q.ScopeChatIDs) > 0:
		placeholders := make([]string, 0, len(q.ScopeChatIDs))
		for _, id := range q.ScopeChatIDs {
			placeholders = append(placeholders, fmt.Sprintf("$%d", argN))
			args = append(args, id)
			argN++
		}
		where += fmt.Sprintf(" AND m.chat_id IN (%s)", strings.Join(placeholders, ", "))
	}
	if q.FilterSender != "" {
		where += fmt.Sprintf(" AND m.sender_id = $%d", argN)
		args = append(args, q.FilterSender)
		argN++
	}
	return where, args
}

// LoadAllRecords returns all live messages for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]MessageRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, content, message_type, extract(epoch FROM created_at)::bigint
		FROM messages
		WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	records := make([]MessageRecord, 0)
	for rows.Next() {
		var rec MessageRecord
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.SenderID, &rec.Content, &rec.MessageType, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return records, nil
}
