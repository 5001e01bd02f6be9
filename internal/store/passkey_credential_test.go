package store

import (
	"testing"

	"github.com/larderhq/larder/internal/model"
)

func testCredential(userID int64, credentialID string) *model.PasskeyCredential {
	return &model.PasskeyCredential{
		CredentialID:    credentialID,
		UserID:          userID,
		PublicKey:       []byte{0x01, 0x02, 0x03},
		AttestationType: "none",
		SignCount:       5,
		DeviceType:      "multi-device",
		BackedUp:        true,
		Transports:      []string{"internal", "hybrid"},
	}
}

func TestPasskeyCredentialCreate(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	s := NewPasskeyCredentialStore(db)

	pc, err := s.Create(testCredential(u.ID, "cred-1"))
	if err != nil {
		t.Fatalf("create credential: %v", err)
	}
	if pc.SignCount != 5 {
		t.Errorf("sign_count = %d, want 5", pc.SignCount)
	}
	if !pc.BackedUp {
		t.Error("backed_up did not round-trip")
	}
	if len(pc.Transports) != 2 || pc.Transports[0] != "internal" {
		t.Errorf("transports = %v", pc.Transports)
	}
	if pc.LastUsedAt != nil {
		t.Error("new credential must have no last_used_at")
	}
}

func TestPasskeyCredentialGetByCredentialID(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	s := NewPasskeyCredentialStore(db)

	s.Create(testCredential(u.ID, "cred-1"))

	pc, err := s.GetByCredentialID("cred-1")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if pc == nil || pc.UserID != u.ID {
		t.Fatalf("got %+v", pc)
	}

	missing, err := s.GetByCredentialID("nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown credential")
	}
}

func TestPasskeyCredentialListByUser(t *testing.T) {
	db := setupTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	s := NewPasskeyCredentialStore(db)

	s.Create(testCredential(alice.ID, "cred-1"))
	s.Create(testCredential(alice.ID, "cred-2"))
	s.Create(testCredential(bob.ID, "cred-3"))

	creds, err := s.ListByUser(alice.ID)
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if len(creds) != 2 {
		t.Errorf("got %d credentials, want 2", len(creds))
	}
}

func TestPasskeyCredentialUpdateSignCount(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	s := NewPasskeyCredentialStore(db)

	s.Create(testCredential(u.ID, "cred-1"))

	if err := s.UpdateSignCount("cred-1", 9); err != nil {
		t.Fatalf("update sign count: %v", err)
	}

	pc, _ := s.GetByCredentialID("cred-1")
	if pc.SignCount != 9 {
		t.Errorf("sign_count = %d, want 9", pc.SignCount)
	}
	if pc.LastUsedAt == nil {
		t.Error("expected last_used_at to be set")
	}
}
