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

// MembershipService handles joining and leaving squads. Join is idempotent
// (double-clicks and duplicate realtime-triggered requests are expected) and
// capacity is enforced atomically at the store.
type MembershipService struct {
	squadRepo SquadStore
	checkRepo CheckStore
	now       func() time.Time
}

// NewMembershipService creates a new membership service
func NewMembershipService(squadRepo SquadStore, checkRepo CheckStore) *MembershipService {
	return &MembershipService{
		squadRepo: squadRepo,
		checkRepo: checkRepo,
		now:       time.Now,
	}
}

// Join adds the user to the squad. Joining a squad the user already belongs
// to succeeds silently. Returns ErrSquadFull when the squad is check-linked
// and at its max size.
func (s *MembershipService) Join(ctx context.Context, squadID, userID string) error {
	squad, err := s.squadRepo.GetByID(ctx, squadID)
	if err != nil {
		return err
	}

	limit := 0
	if squad.CheckID != nil {
		check, err := s.checkRepo.GetByID(ctx, *squad.CheckID)
		if err != nil {
			return fmt.Errorf("failed to load capacity: %w", err)
		}
		limit = check.MaxSquadSize
	}

	err = s.squadRepo.AddMember(ctx, squadID, userID, limit, s.now())
	if errors.Is(err, models.ErrAlreadyExists) {
		// Already a member; the contract is idempotent success.
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().Str("squad_id", squadID).Str("user_id", userID).Msg("User joined squad")
	return nil
}

// Leave removes the user's membership. An empty squad stays alive; only the
// lifecycle sweep deletes squads.
func (s *MembershipService) Leave(ctx context.Context, squadID, userID string) error {
	if err := s.squadRepo.RemoveMember(ctx, squadID, userID); err != nil {
		return err
	}
	log.Info().Str("squad_id", squadID).Str("user_id", userID).Msg("User left squad")
	return nil
}

// Members returns the user ids of a squad's members.
func (s *MembershipService) Members(ctx context.Context, squadID string) ([]string, error) {
	if _, err := s.squadRepo.GetByID(ctx, squadID); err != nil {
		return nil, err
	}
	return s.squadRepo.ListMemberIDs(ctx, squadID)
}

// PostMessage appends an ordinary chat line. Member-only.
func (s *MembershipService) PostMessage(ctx context.Context, squadID, userID, text string) (*models.Message, error) {
	isMember, err := s.squadRepo.IsMember(ctx, squadID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, fmt.Errorf("user %s is not a member of squad %s: %w", userID, squadID, models.ErrForbidden)
	}
	msg := &models.Message{
		ID:        uuid.New().String(),
		SquadID:   squadID,
		SenderID:  &userID,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.squadRepo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a squad's chat history in send order. Member-only.
func (s *MembershipService) ListMessages(ctx context.Context, squadID, userID string, limit int) ([]*models.Message, error) {
	isMember, err := s.squadRepo.IsMember(ctx, squadID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, fmt.Errorf("user %s is not a member of squad %s: %w", userID, squadID, models.ErrForbidden)
	}
	return s.squadRepo.ListMessages(ctx, squadID, limit)
}
