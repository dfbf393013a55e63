package services

import (
	"context"
	"time"

	"squadup-backend/internal/models"
)

// Store contracts consumed by the services. The pgx repositories implement
// them; tests substitute in-memory versions. The contracts carry the
// conflict-resolution semantics the services rely on: a uniqueness violation
// surfaces as models.ErrAlreadyExists, an over-capacity join as
// models.ErrSquadFull, and the sweep transitions are conditional writes that
// report whether this caller won the transition.

// CheckStore persists interest checks and their responses.
type CheckStore interface {
	Create(ctx context.Context, check *models.InterestCheck) error
	GetByID(ctx context.Context, id string) (*models.InterestCheck, error)
	Update(ctx context.Context, check *models.InterestCheck) error
	Delete(ctx context.Context, id string) error
	ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]*models.InterestCheck, error)
	UpsertResponse(ctx context.Context, resp *models.CheckResponse) error
	DeleteResponse(ctx context.Context, checkID, userID string) error
	ListResponses(ctx context.Context, checkID string) ([]*models.CheckResponse, error)
	SetEventDate(ctx context.Context, checkID string, date string, eventTime *string) error
	ClearEventDate(ctx context.Context, checkID string) error
}

// SquadStore persists the squad aggregate: squads, members, messages.
type SquadStore interface {
	Create(ctx context.Context, squad *models.Squad, memberIDs []string, msgs []*models.Message) error
	GetByID(ctx context.Context, id string) (*models.Squad, error)
	GetByCheckID(ctx context.Context, checkID string) (*models.Squad, error)
	SquadIDsByCheckIDs(ctx context.Context, checkIDs []string) (map[string]string, error)

	AddMember(ctx context.Context, squadID, userID string, limit int, now time.Time) error
	RemoveMember(ctx context.Context, squadID, userID string) error
	IsMember(ctx context.Context, squadID, userID string) (bool, error)
	ListMemberIDs(ctx context.Context, squadID string) ([]string, error)

	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, squadID string, limit int) ([]*models.Message, error)

	ListGraceCandidates(ctx context.Context, now time.Time) ([]*models.Squad, error)
	ListWarnCandidates(ctx context.Context, now time.Time) ([]*models.Squad, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.Squad, error)
	StartGrace(ctx context.Context, squadID string, now time.Time) (bool, error)
	MarkWarned(ctx context.Context, squadID string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, squadID string, now time.Time) (bool, error)

	SetDate(ctx context.Context, squadID, lockedDate string, expiresAt time.Time) error
	ClearDate(ctx context.Context, squadID string) error
	Extend(ctx context.Context, squadID string, expiresAt time.Time) error
}

// EventStore persists imported events.
type EventStore interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
}

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

// FriendGraph answers "who is in this user's social graph". Read-only here;
// graph management is someone else's problem.
type FriendGraph interface {
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// Notifier delivers a notification to one user. Fire-and-forget: delivery
// failures are logged by the implementation and never propagate into the
// operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload map[string]string)
}

// Notification kinds emitted by the core.
const (
	NotifySquadInvite   = "squad_invite"
	NotifySquadGrace    = "squad_grace"
	NotifySquadExpiring = "squad_expiring"
	NotifyDateLocked    = "date_locked"
	NotifySquadExtended = "squad_extended"
)
