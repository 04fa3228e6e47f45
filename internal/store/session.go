package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/pointledger/internal/model"
)

// DefaultSessionTTL is how long a bearer token stays valid.
const DefaultSessionTTL = 24 * time.Hour

// SessionStore issues and resolves opaque bearer tokens.
type SessionStore struct {
	db  *sqlx.DB
	ttl time.Duration
}

func NewSessionStore(db *sqlx.DB, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{db: db, ttl: ttl}
}

const sessionCols = `id, token, account_id, expires_at, created_at`

// now is second-truncated UTC so stored and compared values share one format.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Create generates a new session with a crypto-random token.
func (s *SessionStore) Create(ctx context.Context, accountID int64) (*model.Session, error) {
	return s.CreateWith(ctx, s.db, accountID)
}

// CreateWith is Create running on q, so a session can be issued inside the
// transaction that creates its account.
func (s *SessionStore) CreateWith(ctx context.Context, q sqlx.ExtContext, accountID int64) (*model.Session, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)
	expiresAt := now().Add(s.ttl)

	var id int64
	err := sqlx.GetContext(ctx, q, &id, q.Rebind(
		`INSERT INTO sessions (token, account_id, expires_at) VALUES (?, ?, ?) RETURNING id`),
		token, accountID, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	var sess model.Session
	err = sqlx.GetContext(ctx, q, &sess, q.Rebind(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// GetByToken returns the session for the given token, or nil if expired or not found.
func (s *SessionStore) GetByToken(ctx context.Context, token string) (*model.Session, error) {
	var sess model.Session
	err := s.db.GetContext(ctx, &sess, s.db.Rebind(
		`SELECT `+sessionCols+` FROM sessions WHERE token = ? AND expires_at > ?`),
		token, now(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by token: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func (s *SessionStore) DeleteByAccountID(ctx context.Context, accountID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE account_id = ?`), accountID)
	if err != nil {
		return fmt.Errorf("delete sessions by account: %w", err)
	}
	return nil
}
