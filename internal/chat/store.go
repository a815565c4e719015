// Package chat persists conversation sessions and messages in Postgres.
//
// Sessions are owned by exactly one user. Lookups never reveal whether a
// session exists for another user: a missing session and a foreign session
// produce the same error.
package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/haasonsaas/corpus/internal/storage"
	"github.com/haasonsaas/corpus/pkg/models"
)

// ErrSessionAccess is returned when a session does not exist or belongs to
// another user. The two cases are deliberately indistinguishable.
var ErrSessionAccess = errors.New("session not found or access denied")

// DefaultHistoryLimit bounds History when no limit is given.
const DefaultHistoryLimit = 50

// Config holds the chat store configuration.
type Config struct {
	// DSN is the Postgres connection string. Ignored when DB is set.
	DSN string

	// DB is an existing database connection to use instead of opening one.
	DB *sql.DB

	// HistoryLimit caps the number of messages History returns by default.
	// Default: 50
	HistoryLimit int
}

// Store reads and writes chat sessions and messages.
type Store struct {
	db           *sql.DB
	historyLimit int
	ownsDB       bool
}

// New creates a chat store. When cfg.DB is nil a new connection pool is
// opened from cfg.DSN and owned by the store.
func New(cfg Config) (*Store, error) {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	s := &Store{historyLimit: cfg.HistoryLimit}

	if cfg.DB != nil {
		s.db = cfg.DB
		return s, nil
	}

	db, err := storage.Open(context.Background(), storage.Options{DSN: cfg.DSN})
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	s.db = db
	s.ownsDB = true
	return s, nil
}

// CreateOrAppend stores a user message. An empty sessionID creates a new
// session owned by userID; otherwise the session must already belong to
// userID. Session creation and the message insert commit together.
func (s *Store) CreateOrAppend(ctx context.Context, userID, sessionID, text string) (string, *models.Message, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("chat: user id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("chat: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if sessionID == "" {
		sessionID = uuid.New().String()
		metadata, err := json.Marshal(map[string]any{})
		if err != nil {
			return "", nil, fmt.Errorf("chat: marshal metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chat_sessions (id, user_id, metadata, created_at)
			VALUES ($1, $2, $3, $4)
		`, sessionID, userID, metadata, time.Now())
		if err != nil {
			return "", nil, fmt.Errorf("chat: create session: %w", err)
		}
	} else {
		if err := verifyOwner(ctx, tx, sessionID, userID); err != nil {
			return "", nil, err
		}
	}

	msg, err := appendMessage(ctx, tx, sessionID, models.SenderUser, text)
	if err != nil {
		return "", nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("chat: commit: %w", err)
	}
	return sessionID, msg, nil
}

// AppendAssistant stores a generated response in an existing session.
func (s *Store) AppendAssistant(ctx context.Context, sessionID, text string) (*models.Message, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrSessionAccess
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chat: begin transaction: %w", err)
	}
	defer tx.Rollback()

	msg, err := appendMessage(ctx, tx, sessionID, models.SenderAssistant, text)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("chat: commit: %w", err)
	}
	return msg, nil
}

// VerifyOwner checks that sessionID exists and belongs to userID.
// Returns ErrSessionAccess otherwise.
func (s *Store) VerifyOwner(ctx context.Context, sessionID, userID string) error {
	return verifyOwner(ctx, s.db, sessionID, userID)
}

// History returns up to limit messages of a session in chronological order.
// The newest messages win when the session is longer than the limit.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrSessionAccess
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender, message, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: query history: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var sender string
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		m.Sender = models.Sender(sender)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: history rows: %w", err)
	}

	// Query is newest first so the limit keeps recent messages; callers
	// want chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Session retrieves session details for an owner.
// Returns ErrSessionAccess when missing or foreign.
func (s *Store) Session(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrSessionAccess
	}

	sess := &models.Session{}
	var metadataJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, metadata, created_at
		FROM chat_sessions
		WHERE id = $1
	`, sessionID).Scan(&sess.ID, &sess.UserID, &metadataJSON, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionAccess
	}
	if err != nil {
		return nil, fmt.Errorf("chat: get session: %w", err)
	}
	if sess.UserID != userID {
		return nil, ErrSessionAccess
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("chat: unmarshal metadata: %w", err)
		}
	}
	return sess, nil
}

// Close releases the connection pool if this store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func verifyOwner(ctx context.Context, q querier, sessionID, userID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return ErrSessionAccess
	}

	var owner string
	err := q.QueryRowContext(ctx, `
		SELECT user_id FROM chat_sessions WHERE id = $1
	`, sessionID).Scan(&owner)
	if err == sql.ErrNoRows {
		return ErrSessionAccess
	}
	if err != nil {
		return fmt.Errorf("chat: check session owner: %w", err)
	}
	if owner != userID {
		return ErrSessionAccess
	}
	return nil
}

func appendMessage(ctx context.Context, tx *sql.Tx, sessionID string, sender models.Sender, text string) (*models.Message, error) {
	msg := &models.Message{
		SessionID: sessionID,
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now(),
	}

	err := tx.QueryRowContext(ctx, `
		INSERT INTO chat_messages (session_id, sender, message, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, sessionID, string(sender), text, msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return nil, fmt.Errorf("chat: append %s message: %w", sender, err)
	}
	return msg, nil
}
