package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"squadup-backend/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedCheck(db *memDB, id, authorID, text string, maxSize int, expiresAt *time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.checks[id] = &models.InterestCheck{
		ID:           id,
		AuthorID:     authorID,
		Text:         text,
		MaxSquadSize: maxSize,
		ExpiresAt:    expiresAt,
	}
}

func seedUser(db *memDB, id, handle string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[id] = &models.User{ID: id, Handle: handle}
}

func strPtr(s string) *string { return &s }

func TestFormSquadFromCheck(t *testing.T) {
	db := newMemDB()
	notifier := &memNotifier{}
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	seedCheck(db, "check-1", "alice", "bouldering saturday?", 5, nil)

	svc := NewFormationService(db.squadStore(), db.checkStore(), db.eventStore(), notifier)
	svc.now = fixedClock(now)

	squad, err := svc.FormSquad(context.Background(), "alice", FormSquadInput{
		CheckID:   strPtr("check-1"),
		MemberIDs: []string{"bob", "carol"},
	})
	if err != nil {
		t.Fatalf("FormSquad: %v", err)
	}

	if squad.Name != "bouldering saturday?" {
		t.Errorf("squad name = %q, want check text", squad.Name)
	}
	if squad.ExpiresAt == nil || !squad.ExpiresAt.Equal(now.Add(7*24*time.Hour)) {
		t.Errorf("expires_at = %v, want now + 7 days", squad.ExpiresAt)
	}
	if got := db.memberCount(squad.ID); got != 3 {
		t.Errorf("member count = %d, want 3 (initiator + 2 selected)", got)
	}

	texts := db.messageTexts(squad.ID)
	if len(texts) != 2 {
		t.Fatalf("got %d opening messages, want 2: %v", len(texts), texts)
	}
	if texts[0] != `Squad formed for "bouldering saturday?"` {
		t.Errorf("first message = %q", texts[0])
	}
	if texts[1] != openerMessage {
		t.Errorf("second message = %q, want opener", texts[1])
	}

	invites := notifier.byKind(NotifySquadInvite)
	if len(invites) != 2 {
		t.Fatalf("got %d invites, want 2 (initiator not invited)", len(invites))
	}
	for _, inv := range invites {
		if inv.UserID == "alice" {
			t.Errorf("initiator received an invite")
		}
		if inv.Payload["squad_id"] != squad.ID {
			t.Errorf("invite payload squad_id = %q, want %q", inv.Payload["squad_id"], squad.ID)
		}
	}
}

func TestFormSquadDedupesMembers(t *testing.T) {
	db := newMemDB()
	notifier := &memNotifier{}
	seedCheck(db, "check-1", "alice", "pizza?", 5, nil)

	svc := NewFormationService(db.squadStore(), db.checkStore(), db.eventStore(), notifier)

	squad, err := svc.FormSquad(context.Background(), "alice", FormSquadInput{
		CheckID:   strPtr("check-1"),
		MemberIDs: []string{"bob", "bob", "alice", "", "carol"},
	})
	if err != nil {
		t.Fatalf("FormSquad: %v", err)
	}
	if got := db.memberCount(squad.ID); got != 3 {
		t.Errorf("member count = %d, want 3 after dedupe", got)
	}
}

func TestFormSquadCapacityExceeded(t *testing.T) {
	db := newMemDB()
	seedCheck(db, "check-1", "alice", "movie night", 3, nil)

	svc := NewFormationService(db.squadStore(), db.checkStore(), db.eventStore(), &memNotifier{})

	// Capacity 3 leaves room for 2 selected members beside the initiator.
	_, err := svc.FormSquad(context.Background(), "alice", FormSquadInput{
		CheckID:   strPtr("check-1"),
		MemberIDs: []string{"bob", "carol", "dave"},
	})
	if !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	if db.squadCount() != 0 {
		t.Errorf("squad was created despite capacity error")
	}
}

func TestFormSquadUnknownCheck(t *testing.T) {
	db := newMemDB()
	svc := NewFormationService(db.squadStore(), db.checkStore(), db.eventStore(), &memNotifier{})

	_, err := svc.FormSquad(context.Background(), "alice", FormSquadInput{CheckID: strPtr("nope")})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFormSquadRequiresSource(t *testing.T) {
	db := newMemDB()
	svc := NewFormationService(db.squadStore(), db.checkStore(), db.eventStore(), &memNotifier{})

	if _, err := svc.FormSquad(context.Background(), "alice", FormSquadInput{}); err == nil {
		t.Fatal("expected error when neither check nor event is given")
	}
}

func TestFormSquadExactlyOncePerCheck(t *testing.T) {
	db := newMemDB()
	seedCheck(db, "check-1", "alice", "караоке", 8, nil)

	svc := NewFormationService(db.squadStore(), db.checkStore(), db.eventStore(), &memNotifier{})

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			squad, err := svc.FormSquad(context.Background(), "alice", FormSquadInput{
				CheckID:   strPtr("check-1"),
				MemberIDs: []string{"bob"},
			})
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = squad.ID
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got squad %s, caller 0 got %s; want one canonical squad", i, ids[i], ids[0])
		}
	}
	if db.squadCount() != 1 {
		t.Fatalf("squad count = %d, want exactly 1", db.squadCount())
	}
}

func TestFormSquadFromDatedEvent(t *testing.T) {
	db := newMemDB()
	db.mu.Lock()
	db.events["event-1"] = &models.Event{
		ID:        "event-1",
		Title:     "Warehouse rave",
		EventDate: strPtr("2026-03-14"),
	}
	db.mu.Unlock()

	svc := NewFormationService(db.squadStore(), db.checkStore(), db.eventStore(), &memNotifier{})

	squad, err := svc.FormSquad(context.Background(), "alice", FormSquadInput{
		EventID:   strPtr("event-1"),
		MemberIDs: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("FormSquad: %v", err)
	}

	if squad.Name != "Warehouse rave" {
		t.Errorf("squad name = %q, want event title", squad.Name)
	}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if squad.ExpiresAt == nil || !squad.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want event date + 24h (%v)", squad.ExpiresAt, want)
	}
	if squad.LockedDate == nil || *squad.LockedDate != "2026-03-14" {
		t.Errorf("locked_date = %v, want event date", squad.LockedDate)
	}
}

func TestFormSquadFromUndatedEvent(t *testing.T) {
	db := newMemDB()
	db.mu.Lock()
	db.events["event-1"] = &models.Event{ID: "event-1", Title: "Sometime gig"}
	db.mu.Unlock()

	svc := NewFormationService(db.squadStore(), db.checkStore(), db.eventStore(), &memNotifier{})

	squad, err := svc.FormSquad(context.Background(), "alice", FormSquadInput{EventID: strPtr("event-1")})
	if err != nil {
		t.Fatalf("FormSquad: %v", err)
	}
	if squad.ExpiresAt != nil {
		t.Errorf("expires_at = %v, want nil for an undated event squad", squad.ExpiresAt)
	}
}
