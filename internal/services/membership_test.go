package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"squadup-backend/internal/models"
)

func formTestSquad(t *testing.T, db *memDB, checkID string, maxSize int, members ...string) *models.Squad {
	t.Helper()
	seedCheck(db, checkID, "alice", "test plan", maxSize, nil)
	svc := NewFormationService(db.squadStore(), db.checkStore(), db.eventStore(), &memNotifier{})
	squad, err := svc.FormSquad(context.Background(), "alice", FormSquadInput{
		CheckID:   &checkID,
		MemberIDs: members,
	})
	if err != nil {
		t.Fatalf("forming fixture squad: %v", err)
	}
	return squad
}

func TestJoinIsIdempotent(t *testing.T) {
	db := newMemDB()
	squad := formTestSquad(t, db, "check-1", 5)

	svc := NewMembershipService(db.squadStore(), db.checkStore())

	if err := svc.Join(context.Background(), squad.ID, "bob"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := svc.Join(context.Background(), squad.ID, "bob"); err != nil {
		t.Fatalf("second join should succeed silently: %v", err)
	}
	if got := db.memberCount(squad.ID); got != 2 {
		t.Errorf("member count = %d, want 2 (alice + bob once)", got)
	}
}

func TestJoinEnforcesCapacity(t *testing.T) {
	db := newMemDB()
	squad := formTestSquad(t, db, "check-1", 3, "bob")

	svc := NewMembershipService(db.squadStore(), db.checkStore())

	// Third seat is the last one.
	if err := svc.Join(context.Background(), squad.ID, "carol"); err != nil {
		t.Fatalf("join at capacity boundary: %v", err)
	}
	err := svc.Join(context.Background(), squad.ID, "dave")
	if !errors.Is(err, models.ErrSquadFull) {
		t.Fatalf("err = %v, want ErrSquadFull", err)
	}
	if got := db.memberCount(squad.ID); got != 3 {
		t.Errorf("member count = %d, want 3", got)
	}
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	db := newMemDB()
	squad := formTestSquad(t, db, "check-1", 4)

	svc := NewMembershipService(db.squadStore(), db.checkStore())

	users := []string{"b", "c", "d", "e", "f", "g", "h", "i"}
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			err := svc.Join(context.Background(), squad.ID, u)
			if err != nil && !errors.Is(err, models.ErrSquadFull) {
				t.Errorf("join %s: %v", u, err)
			}
		}(u)
	}
	wg.Wait()

	if got := db.memberCount(squad.ID); got != 4 {
		t.Errorf("member count = %d, want exactly the capacity 4", got)
	}
}

func TestJoinUnknownSquad(t *testing.T) {
	db := newMemDB()
	svc := NewMembershipService(db.squadStore(), db.checkStore())

	if err := svc.Join(context.Background(), "nope", "bob"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLeaveKeepsEmptySquadAlive(t *testing.T) {
	db := newMemDB()
	squad := formTestSquad(t, db, "check-1", 5)

	svc := NewMembershipService(db.squadStore(), db.checkStore())

	if err := svc.Leave(context.Background(), squad.ID, "alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := db.memberCount(squad.ID); got != 0 {
		t.Errorf("member count = %d, want 0", got)
	}
	if _, ok := db.squadSnapshot(squad.ID); !ok {
		t.Error("empty squad was deleted; only the sweep may delete squads")
	}

	// Leaving twice is an error: the membership edge is gone.
	if err := svc.Leave(context.Background(), squad.ID, "alice"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second leave err = %v, want ErrNotFound", err)
	}
}

func TestPostMessageMemberOnly(t *testing.T) {
	db := newMemDB()
	squad := formTestSquad(t, db, "check-1", 5, "bob")

	svc := NewMembershipService(db.squadStore(), db.checkStore())

	msg, err := svc.PostMessage(context.Background(), squad.ID, "bob", "what time?")
	if err != nil {
		t.Fatalf("member post: %v", err)
	}
	if msg.SenderID == nil || *msg.SenderID != "bob" {
		t.Errorf("sender = %v, want bob", msg.SenderID)
	}
	if msg.IsSystem {
		t.Error("user message flagged as system")
	}

	if _, err := svc.PostMessage(context.Background(), squad.ID, "mallory", "hi"); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-member post err = %v, want ErrForbidden", err)
	}
}

func TestListMessagesMemberOnly(t *testing.T) {
	db := newMemDB()
	squad := formTestSquad(t, db, "check-1", 5, "bob")

	svc := NewMembershipService(db.squadStore(), db.checkStore())

	msgs, err := svc.ListMessages(context.Background(), squad.ID, "bob", 0)
	if err != nil {
		t.Fatalf("member list: %v", err)
	}
	// Formation left the two opening system messages.
	if len(msgs) != 2 {
		t.Errorf("got %d messages, want 2", len(msgs))
	}

	if _, err := svc.ListMessages(context.Background(), squad.ID, "mallory", 0); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-member list err = %v, want ErrForbidden", err)
	}
}
