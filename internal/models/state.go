package models

import (
	"fmt"
	"time"
)

// SquadState is the derived lifecycle state of a squad.
type SquadState string

const (
	StateActive  SquadState = "active"
	StateWarned  SquadState = "warned"
	StateGrace   SquadState = "grace"
	StateExpired SquadState = "expired"
)

// WarnWindow is how far ahead of expiry the one-hour warning fires.
const WarnWindow = time.Hour

// State derives the squad's lifecycle state from its timestamps. This is the
// single definition of "what state is this squad in": the sweep and any
// status-reporting code both go through it. Expired dominates, then grace,
// then warned (stored or imminent).
func (s *Squad) State(now time.Time) SquadState {
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return StateExpired
	}
	if s.GraceStartedAt != nil {
		return StateGrace
	}
	if s.WarnedAt != nil {
		return StateWarned
	}
	if s.ExpiresAt != nil && s.ExpiresAt.Sub(now) <= WarnWindow {
		return StateWarned
	}
	return StateActive
}

// ExpiresInLabel renders a display-only countdown bucket from expires_at.
// Never stored anywhere; the stored instant stays the single source of truth.
func ExpiresInLabel(expiresAt *time.Time, now time.Time) string {
	if expiresAt == nil {
		return "open"
	}
	d := expiresAt.Sub(now)
	if d <= 0 {
		return "expired"
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh left", int(d.Hours()))
	}
	mins := int(d.Minutes())
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("%dm left", mins)
}
