package models

import "time"

// User represents a user in the system
type User struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Handle    string    `json:"handle,omitempty"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ResponseKind is a user's stance on an interest check.
type ResponseKind string

const (
	ResponseDown  ResponseKind = "down"
	ResponseMaybe ResponseKind = "maybe"
)

// InterestCheck is a broadcast plan collecting yes/maybe responses.
// After creation only text, event date/time and max_squad_size are editable,
// and only by the author.
type InterestCheck struct {
	ID           string     `json:"id"`
	AuthorID     string     `json:"author_id"`
	Text         string     `json:"text"`
	MaxSquadSize int        `json:"max_squad_size"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	EventDate    *string    `json:"event_date,omitempty"`
	EventTime    *string    `json:"event_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CheckResponse is one user's live response to a check, identified by
// (check_id, user_id). Withdrawal deletes the row outright.
type CheckResponse struct {
	CheckID     string       `json:"check_id"`
	UserID      string       `json:"user_id"`
	Response    ResponseKind `json:"response"`
	RespondedAt time.Time    `json:"responded_at"`
}

// Squad is a time-boxed group chat formed around a check or an event.
// Its lifecycle state is derived entirely from the timestamp fields; there
// is no stored state column.
type Squad struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CheckID        *string    `json:"check_id,omitempty"`
	EventID        *string    `json:"event_id,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	WarnedAt       *time.Time `json:"warned_at,omitempty"`
	GraceStartedAt *time.Time `json:"grace_started_at,omitempty"`
	LockedDate     *string    `json:"locked_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SquadMember is a membership edge, identified by (squad_id, user_id).
type SquadMember struct {
	SquadID  string    `json:"squad_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message is a chat line. SenderID is nil for system messages, which form
// the audit trail of lifecycle transitions.
type Message struct {
	ID        string    `json:"id"`
	SquadID   string    `json:"squad_id"`
	SenderID  *string   `json:"sender_id,omitempty"`
	Text      string    `json:"text"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is an imported event descriptor a squad can be formed around.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Venue     *string   `json:"venue,omitempty"`
	SourceURL string    `json:"source_url"`
	ImageURL  *string   `json:"image_url,omitempty"`
	EventDate *string   `json:"event_date,omitempty"`
	EventTime *string   `json:"event_time,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
