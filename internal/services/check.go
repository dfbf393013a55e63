package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"squadup-backend/internal/models"

	"github.com/google/uuid"
)

const (
	maxCheckTextLen     = 280
	defaultMaxSquadSize = 5
)

// CheckService handles interest-check business logic: creation, responses,
// author edits and the viewer-facing active listing.
type CheckService struct {
	checkRepo CheckStore
	squadRepo SquadStore
	friends   FriendGraph
	now       func() time.Time
}

// NewCheckService creates a new check service
func NewCheckService(checkRepo CheckStore, squadRepo SquadStore, friends FriendGraph) *CheckService {
	return &CheckService{
		checkRepo: checkRepo,
		squadRepo: squadRepo,
		friends:   friends,
		now:       time.Now,
	}
}

// CreateCheckInput carries the caller-supplied fields for a new check.
type CreateCheckInput struct {
	Text           string
	ExpiresInHours *int
	MaxSquadSize   int
	EventDate      *string
	EventTime      *string
}

// CreateCheck creates a new interest check. ExpiresInHours nil means the
// check is open-ended and never auto-expires.
func (s *CheckService) CreateCheck(ctx context.Context, authorID string, in CreateCheckInput) (*models.InterestCheck, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("check text is required")
	}
	if len(text) > maxCheckTextLen {
		return nil, fmt.Errorf("check text exceeds %d characters", maxCheckTextLen)
	}

	size := in.MaxSquadSize
	if size == 0 {
		size = defaultMaxSquadSize
	}
	if size < 2 {
		return nil, fmt.Errorf("max squad size must be at least 2")
	}

	now := s.now()
	var expiresAt *time.Time
	if in.ExpiresInHours != nil {
		if *in.ExpiresInHours <= 0 {
			return nil, fmt.Errorf("expires_in_hours must be positive")
		}
		t := now.Add(time.Duration(*in.ExpiresInHours) * time.Hour)
		expiresAt = &t
	}

	check := &models.InterestCheck{
		ID:           uuid.New().String(),
		AuthorID:     authorID,
		Text:         text,
		MaxSquadSize: size,
		ExpiresAt:    expiresAt,
		EventDate:    in.EventDate,
		EventTime:    in.EventTime,
		CreatedAt:    now,
	}

	if err := s.checkRepo.Create(ctx, check); err != nil {
		return nil, fmt.Errorf("failed to create check: %w", err)
	}
	return check, nil
}

// Respond records or replaces a user's response to a check. Responding twice
// with different stances updates in place.
func (s *CheckService) Respond(ctx context.Context, checkID, userID string, kind models.ResponseKind) error {
	if kind != models.ResponseDown && kind != models.ResponseMaybe {
		return fmt.Errorf("invalid response %q", kind)
	}
	resp := &models.CheckResponse{
		CheckID:     checkID,
		UserID:      userID,
		Response:    kind,
		RespondedAt: s.now(),
	}
	if err := s.checkRepo.UpsertResponse(ctx, resp); err != nil {
		return fmt.Errorf("failed to respond: %w", err)
	}
	return nil
}

// WithdrawResponse removes a user's response. Absence means "no response".
func (s *CheckService) WithdrawResponse(ctx context.Context, checkID, userID string) error {
	if err := s.checkRepo.DeleteResponse(ctx, checkID, userID); err != nil {
		return fmt.Errorf("failed to withdraw response: %w", err)
	}
	return nil
}

// CheckPatch carries the author-editable fields. Nil fields are left alone.
type CheckPatch struct {
	Text         *string
	MaxSquadSize *int
	EventDate    *string
	EventTime    *string
}

// EditCheck applies a patch to a check. Only the author may edit.
func (s *CheckService) EditCheck(ctx context.Context, checkID, callerID string, patch CheckPatch) (*models.InterestCheck, error) {
	check, err := s.checkRepo.GetByID(ctx, checkID)
	if err != nil {
		return nil, err
	}
	if check.AuthorID != callerID {
		return nil, fmt.Errorf("only the author may edit a check: %w", models.ErrForbidden)
	}

	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text == "" || len(text) > maxCheckTextLen {
			return nil, fmt.Errorf("invalid check text")
		}
		check.Text = text
	}
	if patch.MaxSquadSize != nil {
		if *patch.MaxSquadSize < 2 {
			return nil, fmt.Errorf("max squad size must be at least 2")
		}
		check.MaxSquadSize = *patch.MaxSquadSize
	}
	if patch.EventDate != nil {
		check.EventDate = patch.EventDate
	}
	if patch.EventTime != nil {
		check.EventTime = patch.EventTime
	}

	if err := s.checkRepo.Update(ctx, check); err != nil {
		return nil, fmt.Errorf("failed to edit check: %w", err)
	}
	return check, nil
}

// DeleteCheck removes a check. Only the author may delete, and a check a
// squad was formed from cannot be deleted; the history stays intact.
func (s *CheckService) DeleteCheck(ctx context.Context, checkID, callerID string) error {
	check, err := s.checkRepo.GetByID(ctx, checkID)
	if err != nil {
		return err
	}
	if check.AuthorID != callerID {
		return fmt.Errorf("only the author may delete a check: %w", models.ErrForbidden)
	}
	if err := s.checkRepo.Delete(ctx, checkID); err != nil {
		return err
	}
	return nil
}

// CheckView is an active check as seen by a viewer: the check itself,
// aggregated response counts, the viewer's own stance, and the squad formed
// from it if one exists. ExpiresIn is a display bucket only.
type CheckView struct {
	Check          *models.InterestCheck `json:"check"`
	DownCount      int                   `json:"down_count"`
	MaybeCount     int                   `json:"maybe_count"`
	ViewerResponse *models.ResponseKind  `json:"viewer_response,omitempty"`
	SquadID        *string               `json:"squad_id,omitempty"`
	ExpiresIn      string                `json:"expires_in"`
}

// ListActive returns the non-expired checks visible to the viewer: their own
// and their social graph's, with responses aggregated.
func (s *CheckService) ListActive(ctx context.Context, viewerID string) ([]*CheckView, error) {
	friendIDs, err := s.friends.ListFriendIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve social graph: %w", err)
	}
	authorIDs := append(friendIDs, viewerID)

	now := s.now()
	checks, err := s.checkRepo.ListActiveByAuthors(ctx, authorIDs, now)
	if err != nil {
		return nil, err
	}

	checkIDs := make([]string, 0, len(checks))
	for _, c := range checks {
		checkIDs = append(checkIDs, c.ID)
	}
	squadIDs, err := s.squadRepo.SquadIDsByCheckIDs(ctx, checkIDs)
	if err != nil {
		return nil, err
	}

	views := make([]*CheckView, 0, len(checks))
	for _, check := range checks {
		view := &CheckView{
			Check:     check,
			ExpiresIn: models.ExpiresInLabel(check.ExpiresAt, now),
		}
		responses, err := s.checkRepo.ListResponses(ctx, check.ID)
		if err != nil {
			return nil, err
		}
		for _, resp := range responses {
			switch resp.Response {
			case models.ResponseDown:
				view.DownCount++
			case models.ResponseMaybe:
				view.MaybeCount++
			}
			if resp.UserID == viewerID {
				kind := resp.Response
				view.ViewerResponse = &kind
			}
		}
		if squadID, ok := squadIDs[check.ID]; ok {
			id := squadID
			view.SquadID = &id
		}
		views = append(views, view)
	}
	return views, nil
}
