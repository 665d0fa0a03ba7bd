// Package store persists chat sessions, messages, feedback and suggestions
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	role             TEXT NOT NULL,
	content          TEXT NOT NULL,
	model_used       TEXT NOT NULL DEFAULT '',
	complexity_score INTEGER NOT NULL DEFAULT 0,
	tokens_used      INTEGER NOT NULL DEFAULT 0,
	response_time    REAL NOT NULL DEFAULT 0,
	timestamp        TEXT NOT NULL,
	metadata         TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);

CREATE TABLE IF NOT EXISTS feedback (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	message_id  TEXT NOT NULL DEFAULT '',
	rating      INTEGER NOT NULL,
	comment     TEXT NOT NULL DEFAULT '',
	was_helpful INTEGER,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS suggestions (
	id              TEXT PRIMARY KEY,
	message_id      TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	suggestion_text TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	is_applied      INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL
);
`

// Session is a conversation container.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
}

// SessionSummary is a session plus listing aggregates.
type SessionSummary struct {
	Session
	MessageCount int    `json:"message_count"`
	LastMessage  string `json:"last_message,omitempty"`
}

// Message is a single turn in a session.
type Message struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"session_id"`
	Role            string         `json:"role"`
	Content         string         `json:"content"`
	ModelUsed       string         `json:"model_used,omitempty"`
	ComplexityScore int            `json:"complexity_score"`
	TokensUsed      int            `json:"tokens_used"`
	ResponseTime    float64        `json:"response_time"`
	Timestamp       time.Time      `json:"timestamp"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Feedback is a user rating for a session or message.
type Feedback struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	MessageID  string    `json:"message_id,omitempty"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	WasHelpful *bool     `json:"was_helpful,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// FeedbackStats aggregates all feedback rows.
type FeedbackStats struct {
	AverageRating float64 `json:"average_rating"`
	TotalFeedback int     `json:"total_feedback"`
	HelpfulCount  int     `json:"helpful_count"`
	HelpfulRatio  float64 `json:"helpful_ratio"`
}

// Suggestion is a follow-up prompt attached to an assistant message.
type Suggestion struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	Text      string    `json:"text"`
	Category  string    `json:"category,omitempty"`
	IsApplied bool      `json:"is_applied"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func now() time.Time { return time.Now().UTC() }

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateSession inserts a new session and returns it.
func (s *Store) CreateSession(ctx context.Context, userID, title string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now(),
		UpdatedAt: now(),
		IsActive:  true,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at, is_active)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		sess.ID, sess.UserID, sess.Title, encodeTime(sess.CreatedAt), encodeTime(sess.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session with the given id, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at, is_active
		 FROM chat_sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var created, updated string
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &created, &updated, &sess.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.CreatedAt = decodeTime(created)
	sess.UpdatedAt = decodeTime(updated)
	return &sess, nil
}

// ListSessions returns sessions newest-first with message counts and a
// preview of the most recent message.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.title, s.created_at, s.updated_at, s.is_active,
		        (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id),
		        COALESCE((SELECT m.content FROM messages m WHERE m.session_id = s.id
		                  ORDER BY m.timestamp DESC, m.rowid DESC LIMIT 1), '')
		 FROM chat_sessions s
		 ORDER BY s.updated_at DESC
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]SessionSummary, 0)
	for rows.Next() {
		var sum SessionSummary
		var created, updated, last string
		if err := rows.Scan(&sum.ID, &sum.UserID, &sum.Title, &created, &updated,
			&sum.IsActive, &sum.MessageCount, &last); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.CreatedAt = decodeTime(created)
		sum.UpdatedAt = decodeTime(updated)
		sum.LastMessage = preview(last, 100)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// UpdateSessionTitle renames a session and touches updated_at.
func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, encodeTime(now()), id)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}
	return requireRow(res)
}

// DeleteSession removes a session and, via cascade, its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage appends a message to a session and touches the session's
// updated_at in the same transaction. The message id and timestamp are
// assigned here.
func (s *Store) AddMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now()
	}
	meta := "{}"
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encode message metadata: %w", err)
		}
		meta = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, model_used,
		                       complexity_score, tokens_used, response_time, timestamp, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.ModelUsed,
		msg.ComplexityScore, msg.TokensUsed, msg.ResponseTime,
		encodeTime(msg.Timestamp), meta)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		encodeTime(now()), msg.SessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

// SessionMessages returns up to limit messages for a session, oldest first.
// A limit of 0 or less means no limit.
func (s *Store) SessionMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, model_used, complexity_score,
		        tokens_used, response_time, timestamp, metadata
		 FROM messages WHERE session_id = ?
		 ORDER BY timestamp ASC, rowid ASC
		 LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		var msg Message
		var ts, meta string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&msg.ModelUsed, &msg.ComplexityScore, &msg.TokensUsed,
			&msg.ResponseTime, &ts, &meta); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Timestamp = decodeTime(ts)
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// RecentMessages returns the last n messages of a session in chronological
// order, for building the model context window.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, n int) ([]Message, error) {
	msgs, err := s.SessionMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

// CountMessages returns the number of messages in a session.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// CreateFeedback records a rating. The referenced session must exist.
func (s *Store) CreateFeedback(ctx context.Context, fb *Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = now()
	}
	var helpful any
	if fb.WasHelpful != nil {
		helpful = *fb.WasHelpful
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, session_id, message_id, rating, comment, was_helpful, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.SessionID, fb.MessageID, fb.Rating, fb.Comment, helpful,
		encodeTime(fb.CreatedAt))
	if err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

// SessionFeedback returns feedback rows for a session, newest first.
func (s *Store) SessionFeedback(ctx context.Context, sessionID string) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, message_id, rating, comment, was_helpful, created_at
		 FROM feedback WHERE session_id = ?
		 ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	items := make([]Feedback, 0)
	for rows.Next() {
		var fb Feedback
		var created string
		var helpful sql.NullBool
		if err := rows.Scan(&fb.ID, &fb.SessionID, &fb.MessageID, &fb.Rating,
			&fb.Comment, &helpful, &created); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		if helpful.Valid {
			v := helpful.Bool
			fb.WasHelpful = &v
		}
		fb.CreatedAt = decodeTime(created)
		items = append(items, fb)
	}
	return items, rows.Err()
}

// Stats aggregates all feedback. With no rows every field is zero.
func (s *Store) Stats(ctx context.Context) (*FeedbackStats, error) {
	var stats FeedbackStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(rating), 0), COUNT(*),
		        COALESCE(SUM(CASE WHEN was_helpful = 1 THEN 1 ELSE 0 END), 0)
		 FROM feedback`).Scan(&avg, &stats.TotalFeedback, &stats.HelpfulCount)
	if err != nil {
		return nil, fmt.Errorf("feedback stats: %w", err)
	}
	stats.AverageRating = math.Round(avg.Float64*100) / 100
	if stats.TotalFeedback > 0 {
		stats.HelpfulRatio = math.Round(float64(stats.HelpfulCount)/float64(stats.TotalFeedback)*100) / 100
	}
	return &stats, nil
}

// SaveSuggestions stores follow-up suggestions for a message.
func (s *Store) SaveSuggestions(ctx context.Context, messageID string, suggestions []Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range suggestions {
		sg := &suggestions[i]
		if sg.ID == "" {
			sg.ID = uuid.NewString()
		}
		sg.MessageID = messageID
		if sg.CreatedAt.IsZero() {
			sg.CreatedAt = now()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO suggestions (id, message_id, suggestion_text, category, is_applied, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sg.ID, sg.MessageID, sg.Text, sg.Category, sg.IsApplied,
			encodeTime(sg.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert suggestion: %w", err)
		}
	}
	return tx.Commit()
}

// MessageSuggestions returns suggestions for a message in insertion order.
func (s *Store) MessageSuggestions(ctx context.Context, messageID string) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, suggestion_text, category, is_applied, created_at
		 FROM suggestions WHERE message_id = ?
		 ORDER BY rowid ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	items := make([]Suggestion, 0)
	for rows.Next() {
		var sg Suggestion
		var created string
		if err := rows.Scan(&sg.ID, &sg.MessageID, &sg.Text, &sg.Category,
			&sg.IsApplied, &created); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		sg.CreatedAt = decodeTime(created)
		items = append(items, sg)
	}
	return items, rows.Err()
}
