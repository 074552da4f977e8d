package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/pkg/types"
)

// SQLiteStore implements GraphStore on an embedded SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens the database at dbPath and applies pending migrations
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema applies pending migrations
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if err := ApplyMigrations(ctx, s.db); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SaveMessages writes the subject, session, participation and messages in one transaction
func (s *SQLiteStore) SaveMessages(ctx context.Context, subjectID, sessionID string, msgs []types.StoredMessage) error {
	if subjectID == "" {
		return types.ErrEmptySubject
	}
	if sessionID == "" {
		return types.ErrEmptySession
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveMessagesWithQuerier(ctx, tx, subjectID, sessionID, msgs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}

	logger.GetLogger(ctx).Debugf("[SQLite] Saved %d messages to session %s", len(msgs), sessionID)
	return nil
}

func (s *SQLiteStore) saveMessagesWithQuerier(ctx context.Context, q querier, subjectID, sessionID string, msgs []types.StoredMessage) error {
	now := time.Now().UnixMilli()

	if _, err := q.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		subjectID, now); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	var owner string
	err := q.QueryRowContext(ctx, `SELECT subject_id FROM sessions WHERE id = ?`, sessionID).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read session: %w", err)
	case owner != subjectID:
		return fmt.Errorf("%w: session %s", ErrSubjectMismatch, sessionID)
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO sessions (id, subject_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, subjectID, now, now); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO participations (user_id, session_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		subjectID, sessionID); err != nil {
		return fmt.Errorf("failed to record participation: %w", err)
	}

	query := `
		INSERT INTO messages (id, vector_id, session_id, author_id, content, role, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vector_id = excluded.vector_id,
			content = excluded.content,
			role = excluded.role,
			timestamp = excluded.timestamp,
			metadata = excluded.metadata,
			author_id = excluded.author_id
	`
	for _, m := range msgs {
		var author sql.NullString
		if m.Role == types.RoleUser {
			author = sql.NullString{String: subjectID, Valid: true}
		}
		var meta sql.NullString
		if m.Metadata != "" {
			meta = sql.NullString{String: m.Metadata, Valid: true}
		}
		if _, err := q.ExecContext(ctx, query,
			m.ID, m.VectorID, sessionID, author, m.Content, m.Role, m.Timestamp, meta); err != nil {
			return fmt.Errorf("failed to upsert message %s: %w", m.ID, err)
		}
	}
	return nil
}

// ExpandSessions returns every session that owns one of vectorIDs, with all its messages
func (s *SQLiteStore) ExpandSessions(ctx context.Context, vectorIDs []string) ([]types.SessionRecord, error) {
	if len(vectorIDs) == 0 {
		return []types.SessionRecord{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(vectorIDs)), ",")
	query := fmt.Sprintf(`
		SELECT s.id, s.subject_id, m.id, m.vector_id, m.content, m.role, m.timestamp, COALESCE(m.metadata, '')
		FROM messages m
		JOIN sessions s ON s.id = m.session_id
		WHERE m.session_id IN (
			SELECT DISTINCT session_id FROM messages WHERE vector_id IN (%s)
		)
		ORDER BY s.id, m.timestamp, m.rowid
	`, placeholders)

	args := make([]interface{}, len(vectorIDs))
	for i, id := range vectorIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to expand sessions: %w", err)
	}
	defer rows.Close()

	records, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	logger.GetLogger(ctx).Debugf("[SQLite] Expanded %d vector IDs into %d sessions", len(vectorIDs), len(records))
	return records, nil
}

// scanSessions groups rows ordered by session into session records
func scanSessions(rows *sql.Rows) ([]types.SessionRecord, error) {
	records := []types.SessionRecord{}
	for rows.Next() {
		var sessionID, subjectID string
		var m types.StoredMessage
		if err := rows.Scan(&sessionID, &subjectID, &m.ID, &m.VectorID, &m.Content, &m.Role, &m.Timestamp, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SessionID = sessionID

		if n := len(records); n == 0 || records[n-1].SessionID != sessionID {
			records = append(records, types.SessionRecord{SessionID: sessionID, SubjectID: subjectID})
		}
		last := &records[len(records)-1]
		last.Messages = append(last.Messages, m)
	}
	return records, rows.Err()
}

// GetSession returns a session with its messages in timestamp order
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*types.SessionRecord, error) {
	var subjectID string
	err := s.db.QueryRowContext(ctx, `SELECT subject_id FROM sessions WHERE id = ?`, sessionID).Scan(&subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.subject_id, m.id, m.vector_id, m.content, m.role, m.timestamp, COALESCE(m.metadata, '')
		FROM messages m
		JOIN sessions s ON s.id = m.session_id
		WHERE m.session_id = ?
		ORDER BY m.timestamp, m.rowid
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session messages: %w", err)
	}
	defer rows.Close()

	records, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &types.SessionRecord{SessionID: sessionID, SubjectID: subjectID, Messages: []types.StoredMessage{}}, nil
	}
	return &records[0], nil
}

// ListSessions returns the subject's sessions, most recently updated first
func (s *SQLiteStore) ListSessions(ctx context.Context, subjectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id
		FROM participations p
		JOIN sessions s ON s.id = p.session_id
		WHERE p.user_id = ?
		ORDER BY s.updated_at DESC, s.id
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
