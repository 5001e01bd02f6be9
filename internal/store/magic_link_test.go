package store

import (
	"sync"
	"testing"
	"time"
)

func TestMagicLinkConsumeOnce(t *testing.T) {
	db := setupTestDB(t)
	s := NewMagicLinkStore(db, 15*time.Minute)

	ml, err := s.Create("alice@example.com")
	if err != nil {
		t.Fatalf("create magic link: %v", err)
	}

	first, err := s.Consume(ml.Token)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if first == nil {
		t.Fatal("expected first consume to succeed")
	}
	if first.Email != "alice@example.com" {
		t.Errorf("email = %q", first.Email)
	}
	if first.UsedAt == nil {
		t.Error("expected used_at to be set")
	}

	second, err := s.Consume(ml.Token)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if second != nil {
		t.Error("second consume must fail")
	}
}

func TestMagicLinkConsumeUnknown(t *testing.T) {
	db := setupTestDB(t)
	s := NewMagicLinkStore(db, 15*time.Minute)

	ml, err := s.Consume("no-such-token")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if ml != nil {
		t.Error("expected nil for unknown token")
	}
}

func TestMagicLinkConsumeExpired(t *testing.T) {
	db := setupTestDB(t)
	s := NewMagicLinkStore(db, -time.Minute)

	ml, err := s.Create("alice@example.com")
	if err != nil {
		t.Fatalf("create magic link: %v", err)
	}

	got, err := s.Consume(ml.Token)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got != nil {
		t.Error("expected nil for expired token")
	}
}

func TestMagicLinkCreateInvalidatesPrevious(t *testing.T) {
	db := setupTestDB(t)
	s := NewMagicLinkStore(db, 15*time.Minute)

	first, _ := s.Create("alice@example.com")
	second, _ := s.Create("alice@example.com")

	if got, _ := s.Consume(first.Token); got != nil {
		t.Error("superseded token must not redeem")
	}
	if got, _ := s.Consume(second.Token); got == nil {
		t.Error("latest token should redeem")
	}
}

func TestMagicLinkCreateLeavesOtherEmailsAlone(t *testing.T) {
	db := setupTestDB(t)
	s := NewMagicLinkStore(db, 15*time.Minute)

	alice, _ := s.Create("alice@example.com")
	s.Create("bob@example.com")

	if got, _ := s.Consume(alice.Token); got == nil {
		t.Error("alice's token should survive bob's request")
	}
}

func TestMagicLinkConcurrentConsume(t *testing.T) {
	db := setupTestDB(t)
	s := NewMagicLinkStore(db, 15*time.Minute)

	ml, err := s.Create("alice@example.com")
	if err != nil {
		t.Fatalf("create magic link: %v", err)
	}

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Consume(ml.Token)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			results <- got != nil
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("token redeemed %d times, want exactly 1", wins)
	}
}
