package store

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/pointledger/internal/database"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createAccount(t *testing.T, db *sqlx.DB, email string) int64 {
	t.Helper()
	var id int64
	if err := db.Get(&id, `INSERT INTO accounts (email) VALUES (?) RETURNING id`, email); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return id
}

func TestSessionCreate(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, 0)
	accountID := createAccount(t, db, "alice@example.com")

	before := time.Now().UTC()
	sess, err := ss.Create(context.Background(), accountID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(sess.Token) != 64 { // 32 bytes hex-encoded
		t.Errorf("token length = %d, want 64", len(sess.Token))
	}
	if sess.AccountID != accountID {
		t.Errorf("account_id = %d, want %d", sess.AccountID, accountID)
	}
	ttl := sess.ExpiresAt.Sub(before)
	if ttl < DefaultSessionTTL-2*time.Second || ttl > DefaultSessionTTL+time.Second {
		t.Errorf("expires in %v, want about %v", ttl, DefaultSessionTTL)
	}
}

func TestSessionGetByToken(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, time.Hour)
	accountID := createAccount(t, db, "alice@example.com")
	ctx := context.Background()

	created, _ := ss.Create(ctx, accountID)

	sess, err := ss.GetByToken(ctx, created.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.ID != created.ID {
		t.Errorf("id = %d, want %d", sess.ID, created.ID)
	}
}

func TestSessionGetByTokenNotFound(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, time.Hour)

	sess, err := ss.GetByToken(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for nonexistent token")
	}
}

func TestSessionExpired(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, time.Hour)
	accountID := createAccount(t, db, "alice@example.com")
	ctx := context.Background()

	created, _ := ss.Create(ctx, accountID)
	past := now().Add(-time.Minute)
	if _, err := db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`, past, created.ID); err != nil {
		t.Fatalf("expire session: %v", err)
	}

	sess, err := ss.GetByToken(ctx, created.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for expired session")
	}

	n, err := ss.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
}

func TestSessionDelete(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, time.Hour)
	accountID := createAccount(t, db, "alice@example.com")
	ctx := context.Background()

	created, _ := ss.Create(ctx, accountID)
	if err := ss.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	sess, err := ss.GetByToken(ctx, created.Token)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if sess != nil {
		t.Error("expected nil after delete")
	}
}

func TestSessionDeleteByAccountID(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, time.Hour)
	accountID := createAccount(t, db, "alice@example.com")
	ctx := context.Background()

	ss.Create(ctx, accountID)
	ss.Create(ctx, accountID)

	if err := ss.DeleteByAccountID(ctx, accountID); err != nil {
		t.Fatalf("delete by account id: %v", err)
	}

	var count int
	db.Get(&count, `SELECT COUNT(*) FROM sessions WHERE account_id = ?`, accountID)
	if count != 0 {
		t.Errorf("expected 0 sessions, got %d", count)
	}
}
