package store

import (
	"testing"
	"time"
)

const defaultTestTTL = time.Hour

func TestSessionCreateAndGetByToken(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	s := NewSessionStore(db, defaultTestTTL)

	created, plain, err := s.Create(u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if plain == "" {
		t.Fatal("expected a plaintext token")
	}
	if created.TokenHash == plain {
		t.Error("plaintext token must not be stored as-is")
	}

	sess, err := s.GetByToken(plain)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess == nil || sess.ID != created.ID {
		t.Fatalf("got %+v, want session %d", sess, created.ID)
	}
	if sess.UserID != u.ID {
		t.Errorf("user_id = %d, want %d", sess.UserID, u.ID)
	}
}

func TestSessionGetByTokenUnknown(t *testing.T) {
	db := setupTestDB(t)
	s := NewSessionStore(db, defaultTestTTL)

	sess, err := s.GetByToken("nope")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil for unknown token, got %+v", sess)
	}
}

func TestSessionExpired(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	s := NewSessionStore(db, -time.Hour)

	_, plain, err := s.Create(u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	sess, err := s.GetByToken(plain)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for expired session")
	}
}

func TestSessionDeleteForUser(t *testing.T) {
	db := setupTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	s := NewSessionStore(db, defaultTestTTL)

	s.Create(alice.ID)
	s.Create(alice.ID)
	_, bobToken, _ := s.Create(bob.ID)

	count, err := s.DeleteForUser(alice.ID)
	if err != nil {
		t.Fatalf("delete for user: %v", err)
	}
	if count != 2 {
		t.Errorf("deleted %d sessions, want 2", count)
	}

	sess, err := s.GetByToken(bobToken)
	if err != nil {
		t.Fatalf("get bob session: %v", err)
	}
	if sess == nil {
		t.Error("bob's session should survive alice's logout-everywhere")
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "alice@example.com")

	expired := NewSessionStore(db, -time.Hour)
	live := NewSessionStore(db, defaultTestTTL)
	expired.Create(u.ID)
	_, liveToken, _ := live.Create(u.ID)

	count, err := live.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if count != 1 {
		t.Errorf("deleted %d, want 1", count)
	}

	sess, _ := live.GetByToken(liveToken)
	if sess == nil {
		t.Error("live session should survive the sweep")
	}
}
