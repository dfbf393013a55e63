package services

import (
	"context"
	"fmt"
	"time"

	"squadup-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	graceMessage = "Timer's up! Set a date to lock it in"
	warnMessage  = "This chat expires in 1 hour"

	defaultExtendDays = 7
)

// LifecycleService owns the time-driven squad state machine: the periodic
// reconciliation sweep and the synchronous date-lock operations that
// recompute a squad's timer. All transitions are gated by conditional writes
// in the store, so overlapping sweep runs and concurrent user actions stay
// safe without in-process locking.
type LifecycleService struct {
	squadRepo SquadStore
	checkRepo CheckStore
	userRepo  UserStore
	notifier  Notifier
	now       func() time.Time
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(squadRepo SquadStore, checkRepo CheckStore, userRepo UserStore, notifier Notifier) *LifecycleService {
	return &LifecycleService{
		squadRepo: squadRepo,
		checkRepo: checkRepo,
		userRepo:  userRepo,
		notifier:  notifier,
		now:       time.Now,
	}
}

// RunSweep advances every squad through the lifecycle in the fixed order
// grace, warn, expire. Each squad is processed independently: one squad's
// failure is logged and never aborts the pass. Safe to invoke repeatedly and
// from concurrent workers; a lost conditional write simply means another run
// already made the transition.
func (s *LifecycleService) RunSweep(ctx context.Context, now time.Time) error {
	if err := s.sweepGrace(ctx, now); err != nil {
		return err
	}
	if err := s.sweepWarn(ctx, now); err != nil {
		return err
	}
	return s.sweepExpire(ctx, now)
}

// sweepGrace flags check-linked squads whose originating check's timer ran
// out without a locked date. Advisory only: the squad keeps ticking toward
// its own expiry on the original timer.
func (s *LifecycleService) sweepGrace(ctx context.Context, now time.Time) error {
	candidates, err := s.squadRepo.ListGraceCandidates(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list grace candidates: %w", err)
	}
	for _, squad := range candidates {
		won, err := s.squadRepo.StartGrace(ctx, squad.ID, now)
		if err != nil {
			log.Error().Err(err).Str("squad_id", squad.ID).Msg("Grace transition failed")
			continue
		}
		if !won {
			continue
		}
		s.announce(ctx, squad.ID, graceMessage, now, NotifySquadGrace, nil)
		log.Info().Str("squad_id", squad.ID).Msg("Squad entered grace period")
	}
	return nil
}

// sweepWarn fires the one-time warning for squads within an hour of expiry.
func (s *LifecycleService) sweepWarn(ctx context.Context, now time.Time) error {
	candidates, err := s.squadRepo.ListWarnCandidates(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list warn candidates: %w", err)
	}
	for _, squad := range candidates {
		won, err := s.squadRepo.MarkWarned(ctx, squad.ID, now)
		if err != nil {
			log.Error().Err(err).Str("squad_id", squad.ID).Msg("Warn transition failed")
			continue
		}
		if !won {
			continue
		}
		s.announce(ctx, squad.ID, warnMessage, now, NotifySquadExpiring, nil)
		log.Info().Str("squad_id", squad.ID).Time("expires_at", *squad.ExpiresAt).Msg("Squad warned")
	}
	return nil
}

// sweepExpire deletes squads past their timer, cascading members and
// messages. No grace on this step: once expires_at has passed, deletion is
// unconditional. The conditional delete re-checks the timer so a concurrent
// date lock or extension wins.
func (s *LifecycleService) sweepExpire(ctx context.Context, now time.Time) error {
	expired, err := s.squadRepo.ListExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list expired squads: %w", err)
	}
	for _, squad := range expired {
		deleted, err := s.squadRepo.DeleteExpired(ctx, squad.ID, now)
		if err != nil {
			log.Error().Err(err).Str("squad_id", squad.ID).Msg("Expiry failed")
			continue
		}
		if deleted {
			log.Info().Str("squad_id", squad.ID).Msg("Squad expired and deleted")
		}
	}
	return nil
}

// SetDate locks a concrete date on the squad. The squad stays alive through
// the full locked day (expiry is date + 24h), grace is exited, and the warn
// marker is reset so the recomputed window can re-warn. The date is mirrored
// onto the linked check best-effort; the squad remains the system of record
// for when the chat dies.
func (s *LifecycleService) SetDate(ctx context.Context, squadID, userID, date string, eventTime *string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, models.ErrConflict)
	}
	now := s.now()
	expiresAt := day.Add(24 * time.Hour)
	if !expiresAt.After(now) {
		return time.Time{}, fmt.Errorf("date %s already passed: %w", date, models.ErrConflict)
	}

	squad, err := s.squadRepo.GetByID(ctx, squadID)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.requireMember(ctx, squadID, userID); err != nil {
		return time.Time{}, err
	}

	if err := s.squadRepo.SetDate(ctx, squadID, date, expiresAt); err != nil {
		return time.Time{}, err
	}

	if squad.CheckID != nil {
		if err := s.checkRepo.SetEventDate(ctx, *squad.CheckID, date, eventTime); err != nil {
			// Best-effort mirror; the squad's own timer is already committed.
			log.Warn().Err(err).Str("squad_id", squadID).Str("check_id", *squad.CheckID).
				Msg("Failed to mirror locked date onto check")
		}
	}

	text := fmt.Sprintf("%s locked in %s", s.actorName(ctx, userID), date)
	if eventTime != nil && *eventTime != "" {
		text += " at " + *eventTime
	}
	s.announce(ctx, squadID, text, now, NotifyDateLocked, map[string]string{
		"date":      date,
		"locked_by": userID,
	})

	log.Info().Str("squad_id", squadID).Str("date", date).Time("expires_at", expiresAt).Msg("Date locked")
	return expiresAt, nil
}

// ClearDate removes the locked date from the squad and its linked check.
// Stricter than SetDate: only the check's author may clear, since clearing
// removes information other members may be relying on. The squad keeps
// whatever timer it had.
func (s *LifecycleService) ClearDate(ctx context.Context, squadID, userID string) error {
	squad, err := s.squadRepo.GetByID(ctx, squadID)
	if err != nil {
		return err
	}
	if squad.CheckID == nil {
		return fmt.Errorf("squad has no linked check: %w", models.ErrConflict)
	}
	check, err := s.checkRepo.GetByID(ctx, *squad.CheckID)
	if err != nil {
		return err
	}
	if check.AuthorID != userID {
		return fmt.Errorf("only the check author may clear the date: %w", models.ErrForbidden)
	}

	if err := s.checkRepo.ClearEventDate(ctx, check.ID); err != nil {
		return err
	}
	if err := s.squadRepo.ClearDate(ctx, squadID); err != nil {
		return err
	}

	s.announce(ctx, squadID, fmt.Sprintf("%s cleared the date", s.actorName(ctx, userID)), s.now(), "", nil)
	log.Info().Str("squad_id", squadID).Msg("Date cleared")
	return nil
}

// Extend pushes the squad's expiry out by the given number of days from
// max(current expiry, now), clearing the warn marker so the new window can
// re-warn.
func (s *LifecycleService) Extend(ctx context.Context, squadID, userID string, days int) (time.Time, error) {
	if days <= 0 {
		days = defaultExtendDays
	}

	squad, err := s.squadRepo.GetByID(ctx, squadID)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.requireMember(ctx, squadID, userID); err != nil {
		return time.Time{}, err
	}

	now := s.now()
	base := now
	if squad.ExpiresAt != nil && squad.ExpiresAt.After(now) {
		base = *squad.ExpiresAt
	}
	expiresAt := base.Add(time.Duration(days) * 24 * time.Hour)

	if err := s.squadRepo.Extend(ctx, squadID, expiresAt); err != nil {
		return time.Time{}, err
	}

	s.announce(ctx, squadID, fmt.Sprintf("%s extended the squad by %d days", s.actorName(ctx, userID), days),
		now, NotifySquadExtended, map[string]string{"extended_by": userID})
	log.Info().Str("squad_id", squadID).Int("days", days).Time("expires_at", expiresAt).Msg("Squad extended")
	return expiresAt, nil
}

// StateOf reports the derived lifecycle state of a squad.
func (s *LifecycleService) StateOf(ctx context.Context, squadID string) (models.SquadState, *models.Squad, error) {
	squad, err := s.squadRepo.GetByID(ctx, squadID)
	if err != nil {
		return "", nil, err
	}
	return squad.State(s.now()), squad, nil
}

func (s *LifecycleService) requireMember(ctx context.Context, squadID, userID string) error {
	isMember, err := s.squadRepo.IsMember(ctx, squadID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("user %s is not a member of squad %s: %w", userID, squadID, models.ErrForbidden)
	}
	return nil
}

// announce appends a system message and, when kind is non-empty, notifies
// every current member. Both are best-effort: failures are logged and never
// fail the transition that triggered them.
func (s *LifecycleService) announce(ctx context.Context, squadID, text string, now time.Time, kind string, payload map[string]string) {
	if err := s.squadRepo.AppendMessage(ctx, systemMessage(squadID, text, now)); err != nil {
		log.Error().Err(err).Str("squad_id", squadID).Msg("Failed to append system message")
	}
	if kind == "" {
		return
	}
	memberIDs, err := s.squadRepo.ListMemberIDs(ctx, squadID)
	if err != nil {
		log.Error().Err(err).Str("squad_id", squadID).Msg("Failed to list members for notification")
		return
	}
	if payload == nil {
		payload = map[string]string{}
	}
	payload["squad_id"] = squadID
	for _, memberID := range memberIDs {
		s.notifier.Notify(ctx, memberID, kind, payload)
	}
}

func (s *LifecycleService) actorName(ctx context.Context, userID string) string {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || user.Handle == "" {
		return "A member"
	}
	return user.Handle
}
