package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"squadup-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// defaultSquadTTL is the timer a freshly formed check-linked squad starts
// with, the same unit extendSquad works in.
const defaultSquadTTL = 7 * 24 * time.Hour

const openerMessage = "Say hey and start planning 👋"

// FormationService turns a check (or an event) plus a selection of
// responders into a squad, exactly once per check. Two concurrent calls for
// the same check collapse onto one squad: the loser of the insert race
// fetches and returns the winner's squad instead of failing.
type FormationService struct {
	squadRepo SquadStore
	checkRepo CheckStore
	eventRepo EventStore
	notifier  Notifier
	now       func() time.Time
}

// NewFormationService creates a new formation service
func NewFormationService(squadRepo SquadStore, checkRepo CheckStore, eventRepo EventStore, notifier Notifier) *FormationService {
	return &FormationService{
		squadRepo: squadRepo,
		checkRepo: checkRepo,
		eventRepo: eventRepo,
		notifier:  notifier,
		now:       time.Now,
	}
}

// FormSquadInput selects what a squad is formed from and who joins at
// formation. Exactly one of CheckID and EventID should normally be set; when
// both are, the check governs capacity and uniqueness.
type FormSquadInput struct {
	CheckID   *string
	EventID   *string
	MemberIDs []string
}

// FormSquad creates the squad, its initial membership and its opening system
// messages atomically, then fires invites. Always returns the single
// canonical squad for a check-linked formation, whether this caller created
// it or lost the race.
func (s *FormationService) FormSquad(ctx context.Context, initiatorID string, in FormSquadInput) (*models.Squad, error) {
	if in.CheckID == nil && in.EventID == nil {
		return nil, fmt.Errorf("either check_id or event_id is required")
	}

	now := s.now()
	members := dedupeMembers(in.MemberIDs, initiatorID)

	squad := &models.Squad{
		ID:        uuid.New().String(),
		CheckID:   in.CheckID,
		EventID:   in.EventID,
		CreatedAt: now,
	}

	var formedFor string
	if in.CheckID != nil {
		check, err := s.checkRepo.GetByID(ctx, *in.CheckID)
		if err != nil {
			return nil, err
		}
		if len(members) > check.MaxSquadSize-1 {
			return nil, fmt.Errorf("%d members selected, capacity is %d: %w",
				len(members), check.MaxSquadSize-1, models.ErrCapacityExceeded)
		}
		formedFor = check.Text
		squad.Name = check.Text
		expiresAt := now.Add(defaultSquadTTL)
		squad.ExpiresAt = &expiresAt
	} else {
		event, err := s.eventRepo.GetByID(ctx, *in.EventID)
		if err != nil {
			return nil, err
		}
		formedFor = event.Title
		squad.Name = event.Title
		if event.EventDate != nil {
			if day, err := time.Parse("2006-01-02", *event.EventDate); err == nil {
				expiresAt := day.Add(24 * time.Hour)
				squad.ExpiresAt = &expiresAt
				squad.LockedDate = event.EventDate
			}
		}
	}

	memberIDs := append([]string{initiatorID}, members...)
	msgs := []*models.Message{
		systemMessage(squad.ID, fmt.Sprintf("Squad formed for %q", formedFor), now),
		systemMessage(squad.ID, openerMessage, now),
	}

	if err := s.squadRepo.Create(ctx, squad, memberIDs, msgs); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) && in.CheckID != nil {
			// Lost the formation race; the winner's squad is the canonical one.
			existing, fetchErr := s.squadRepo.GetByCheckID(ctx, *in.CheckID)
			if fetchErr != nil {
				return nil, fmt.Errorf("failed to fetch existing squad: %w", fetchErr)
			}
			return existing, nil
		}
		return nil, err
	}

	for _, memberID := range members {
		s.notifier.Notify(ctx, memberID, NotifySquadInvite, map[string]string{
			"squad_id":   squad.ID,
			"squad_name": squad.Name,
			"invited_by": initiatorID,
		})
	}

	log.Info().
		Str("squad_id", squad.ID).
		Str("initiator_id", initiatorID).
		Int("members", len(memberIDs)).
		Msg("Squad formed")

	return squad, nil
}

// dedupeMembers drops duplicates and the initiator, who always occupies a
// slot of their own.
func dedupeMembers(memberIDs []string, initiatorID string) []string {
	seen := map[string]bool{initiatorID: true}
	var out []string
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func systemMessage(squadID, text string, now time.Time) *models.Message {
	return &models.Message{
		ID:        uuid.New().String(),
		SquadID:   squadID,
		Text:      text,
		IsSystem:  true,
		CreatedAt: now,
	}
}
