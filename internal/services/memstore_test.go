package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"squadup-backend/internal/models"
)

// memDB is shared in-memory state behind the store fakes. The fakes mirror
// the semantics the pgx repositories get from the database: uniqueness
// violations come back as models.ErrAlreadyExists, over-capacity joins as
// models.ErrSquadFull, and the sweep transitions are conditional writes
// under one lock, so the concurrency tests exercise the same contracts the
// services see in production.
type memDB struct {
	mu        sync.Mutex
	checks    map[string]*models.InterestCheck
	responses map[string]map[string]*models.CheckResponse
	squads    map[string]*models.Squad
	members   map[string][]string
	messages  map[string][]*models.Message
	events    map[string]*models.Event
	users     map[string]*models.User
	friends   map[string][]string
}

func newMemDB() *memDB {
	return &memDB{
		checks:    make(map[string]*models.InterestCheck),
		responses: make(map[string]map[string]*models.CheckResponse),
		squads:    make(map[string]*models.Squad),
		members:   make(map[string][]string),
		messages:  make(map[string][]*models.Message),
		events:    make(map[string]*models.Event),
		users:     make(map[string]*models.User),
		friends:   make(map[string][]string),
	}
}

func (db *memDB) checkStore() *memCheckStore   { return &memCheckStore{db} }
func (db *memDB) squadStore() *memSquadStore   { return &memSquadStore{db} }
func (db *memDB) eventStore() *memEventStore   { return &memEventStore{db} }
func (db *memDB) userStore() *memUserStore     { return &memUserStore{db} }
func (db *memDB) friendGraph() *memFriendGraph { return &memFriendGraph{db} }

// squadSnapshot returns a copy of the stored squad for assertions.
func (db *memDB) squadSnapshot(id string) (models.Squad, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	squad, ok := db.squads[id]
	if !ok {
		return models.Squad{}, false
	}
	return *squad, true
}

func (db *memDB) memberCount(squadID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.members[squadID])
}

func (db *memDB) messageTexts(squadID string) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []string
	for _, msg := range db.messages[squadID] {
		out = append(out, msg.Text)
	}
	return out
}

func (db *memDB) squadCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.squads)
}

// --- CheckStore ---

type memCheckStore struct{ db *memDB }

func (s *memCheckStore) Create(ctx context.Context, check *models.InterestCheck) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c := *check
	s.db.checks[check.ID] = &c
	return nil
}

func (s *memCheckStore) GetByID(ctx context.Context, id string) (*models.InterestCheck, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	check, ok := s.db.checks[id]
	if !ok {
		return nil, fmt.Errorf("check %s: %w", id, models.ErrNotFound)
	}
	c := *check
	return &c, nil
}

func (s *memCheckStore) Update(ctx context.Context, check *models.InterestCheck) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.checks[check.ID]; !ok {
		return fmt.Errorf("check %s: %w", check.ID, models.ErrNotFound)
	}
	c := *check
	s.db.checks[check.ID] = &c
	return nil
}

func (s *memCheckStore) Delete(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.checks[id]; !ok {
		return fmt.Errorf("check %s: %w", id, models.ErrNotFound)
	}
	for _, squad := range s.db.squads {
		if squad.CheckID != nil && *squad.CheckID == id {
			return fmt.Errorf("check %s has a squad: %w", id, models.ErrConflict)
		}
	}
	delete(s.db.checks, id)
	delete(s.db.responses, id)
	return nil
}

func (s *memCheckStore) ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]*models.InterestCheck, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	authors := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = true
	}
	var out []*models.InterestCheck
	for _, check := range s.db.checks {
		if !authors[check.AuthorID] {
			continue
		}
		if check.ExpiresAt != nil && !check.ExpiresAt.After(now) {
			continue
		}
		c := *check
		out = append(out, &c)
	}
	return out, nil
}

func (s *memCheckStore) UpsertResponse(ctx context.Context, resp *models.CheckResponse) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.checks[resp.CheckID]; !ok {
		return fmt.Errorf("check %s: %w", resp.CheckID, models.ErrNotFound)
	}
	if s.db.responses[resp.CheckID] == nil {
		s.db.responses[resp.CheckID] = make(map[string]*models.CheckResponse)
	}
	r := *resp
	s.db.responses[resp.CheckID][resp.UserID] = &r
	return nil
}

func (s *memCheckStore) DeleteResponse(ctx context.Context, checkID, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.responses[checkID], userID)
	return nil
}

func (s *memCheckStore) ListResponses(ctx context.Context, checkID string) ([]*models.CheckResponse, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.CheckResponse
	for _, resp := range s.db.responses[checkID] {
		r := *resp
		out = append(out, &r)
	}
	return out, nil
}

func (s *memCheckStore) SetEventDate(ctx context.Context, checkID string, date string, eventTime *string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	check, ok := s.db.checks[checkID]
	if !ok {
		return fmt.Errorf("check %s: %w", checkID, models.ErrNotFound)
	}
	d := date
	check.EventDate = &d
	check.EventTime = eventTime
	return nil
}

func (s *memCheckStore) ClearEventDate(ctx context.Context, checkID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	check, ok := s.db.checks[checkID]
	if !ok {
		return fmt.Errorf("check %s: %w", checkID, models.ErrNotFound)
	}
	check.EventDate = nil
	check.EventTime = nil
	return nil
}

// --- SquadStore ---

type memSquadStore struct{ db *memDB }

func (s *memSquadStore) Create(ctx context.Context, squad *models.Squad, memberIDs []string, msgs []*models.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if squad.CheckID != nil {
		for _, existing := range s.db.squads {
			if existing.CheckID != nil && *existing.CheckID == *squad.CheckID {
				return fmt.Errorf("squad for check: %w", models.ErrAlreadyExists)
			}
		}
	}
	sq := *squad
	s.db.squads[squad.ID] = &sq
	s.db.members[squad.ID] = append([]string{}, memberIDs...)
	for _, msg := range msgs {
		m := *msg
		s.db.messages[squad.ID] = append(s.db.messages[squad.ID], &m)
	}
	return nil
}

func (s *memSquadStore) GetByID(ctx context.Context, id string) (*models.Squad, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	squad, ok := s.db.squads[id]
	if !ok {
		return nil, fmt.Errorf("squad %s: %w", id, models.ErrNotFound)
	}
	sq := *squad
	return &sq, nil
}

func (s *memSquadStore) GetByCheckID(ctx context.Context, checkID string) (*models.Squad, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, squad := range s.db.squads {
		if squad.CheckID != nil && *squad.CheckID == checkID {
			sq := *squad
			return &sq, nil
		}
	}
	return nil, fmt.Errorf("squad for check %s: %w", checkID, models.ErrNotFound)
}

func (s *memSquadStore) SquadIDsByCheckIDs(ctx context.Context, checkIDs []string) (map[string]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	wanted := make(map[string]bool, len(checkIDs))
	for _, id := range checkIDs {
		wanted[id] = true
	}
	out := make(map[string]string)
	for _, squad := range s.db.squads {
		if squad.CheckID != nil && wanted[*squad.CheckID] {
			out[*squad.CheckID] = squad.ID
		}
	}
	return out, nil
}

func (s *memSquadStore) AddMember(ctx context.Context, squadID, userID string, limit int, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.squads[squadID]; !ok {
		return fmt.Errorf("squad %s: %w", squadID, models.ErrNotFound)
	}
	for _, id := range s.db.members[squadID] {
		if id == userID {
			return fmt.Errorf("member %s in squad %s: %w", userID, squadID, models.ErrAlreadyExists)
		}
	}
	if limit > 0 && len(s.db.members[squadID])+1 > limit {
		return fmt.Errorf("squad %s at capacity %d: %w", squadID, limit, models.ErrSquadFull)
	}
	s.db.members[squadID] = append(s.db.members[squadID], userID)
	return nil
}

func (s *memSquadStore) RemoveMember(ctx context.Context, squadID, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	members := s.db.members[squadID]
	for i, id := range members {
		if id == userID {
			s.db.members[squadID] = append(members[:i:i], members[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("member %s in squad %s: %w", userID, squadID, models.ErrNotFound)
}

func (s *memSquadStore) IsMember(ctx context.Context, squadID, userID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, id := range s.db.members[squadID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memSquadStore) ListMemberIDs(ctx context.Context, squadID string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return append([]string{}, s.db.members[squadID]...), nil
}

func (s *memSquadStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.squads[msg.SquadID]; !ok {
		return fmt.Errorf("squad %s: %w", msg.SquadID, models.ErrNotFound)
	}
	m := *msg
	s.db.messages[msg.SquadID] = append(s.db.messages[msg.SquadID], &m)
	return nil
}

func (s *memSquadStore) ListMessages(ctx context.Context, squadID string, limit int) ([]*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	msgs := s.db.messages[squadID]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	out := make([]*models.Message, 0, len(msgs))
	for _, msg := range msgs {
		m := *msg
		out = append(out, &m)
	}
	return out, nil
}

func (s *memSquadStore) ListGraceCandidates(ctx context.Context, now time.Time) ([]*models.Squad, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Squad
	for _, squad := range s.db.squads {
		if squad.CheckID == nil || squad.GraceStartedAt != nil || squad.LockedDate != nil || squad.ExpiresAt == nil {
			continue
		}
		check, ok := s.db.checks[*squad.CheckID]
		if !ok || check.ExpiresAt == nil || check.ExpiresAt.After(now) {
			continue
		}
		sq := *squad
		out = append(out, &sq)
	}
	return out, nil
}

func (s *memSquadStore) ListWarnCandidates(ctx context.Context, now time.Time) ([]*models.Squad, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Squad
	for _, squad := range s.db.squads {
		if squad.WarnedAt != nil || squad.ExpiresAt == nil {
			continue
		}
		if !squad.ExpiresAt.After(now) || squad.ExpiresAt.Sub(now) > models.WarnWindow {
			continue
		}
		sq := *squad
		out = append(out, &sq)
	}
	return out, nil
}

func (s *memSquadStore) ListExpired(ctx context.Context, now time.Time) ([]*models.Squad, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Squad
	for _, squad := range s.db.squads {
		if squad.ExpiresAt != nil && !squad.ExpiresAt.After(now) {
			sq := *squad
			out = append(out, &sq)
		}
	}
	return out, nil
}

func (s *memSquadStore) StartGrace(ctx context.Context, squadID string, now time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	squad, ok := s.db.squads[squadID]
	if !ok || squad.GraceStartedAt != nil || squad.ExpiresAt == nil {
		return false, nil
	}
	t := now
	squad.GraceStartedAt = &t
	return true, nil
}

func (s *memSquadStore) MarkWarned(ctx context.Context, squadID string, now time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	squad, ok := s.db.squads[squadID]
	if !ok || squad.WarnedAt != nil || squad.ExpiresAt == nil {
		return false, nil
	}
	t := now
	squad.WarnedAt = &t
	return true, nil
}

func (s *memSquadStore) DeleteExpired(ctx context.Context, squadID string, now time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	squad, ok := s.db.squads[squadID]
	if !ok || squad.ExpiresAt == nil || squad.ExpiresAt.After(now) {
		return false, nil
	}
	delete(s.db.squads, squadID)
	delete(s.db.members, squadID)
	delete(s.db.messages, squadID)
	return true, nil
}

func (s *memSquadStore) SetDate(ctx context.Context, squadID, lockedDate string, expiresAt time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	squad, ok := s.db.squads[squadID]
	if !ok {
		return fmt.Errorf("squad %s: %w", squadID, models.ErrNotFound)
	}
	d := lockedDate
	t := expiresAt
	squad.LockedDate = &d
	squad.ExpiresAt = &t
	squad.WarnedAt = nil
	squad.GraceStartedAt = nil
	return nil
}

func (s *memSquadStore) ClearDate(ctx context.Context, squadID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	squad, ok := s.db.squads[squadID]
	if !ok {
		return fmt.Errorf("squad %s: %w", squadID, models.ErrNotFound)
	}
	squad.LockedDate = nil
	return nil
}

func (s *memSquadStore) Extend(ctx context.Context, squadID string, expiresAt time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	squad, ok := s.db.squads[squadID]
	if !ok {
		return fmt.Errorf("squad %s: %w", squadID, models.ErrNotFound)
	}
	t := expiresAt
	squad.ExpiresAt = &t
	squad.WarnedAt = nil
	return nil
}

// --- EventStore ---

type memEventStore struct{ db *memDB }

func (s *memEventStore) Create(ctx context.Context, event *models.Event) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e := *event
	s.db.events[event.ID] = &e
	return nil
}

func (s *memEventStore) GetByID(ctx context.Context, id string) (*models.Event, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	event, ok := s.db.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
	}
	e := *event
	return &e, nil
}

// --- UserStore ---

type memUserStore struct{ db *memDB }

func (s *memUserStore) Create(ctx context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := *user
	s.db.users[user.ID] = &u
	return nil
}

func (s *memUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	user, ok := s.db.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	u := *user
	return &u, nil
}

func (s *memUserStore) CodeExists(ctx context.Context, code string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, user := range s.db.users {
		if user.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *memUserStore) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if user, ok := s.db.users[userID]; ok {
		user.PushToken = pushToken
	}
	return nil
}

// --- FriendGraph ---

type memFriendGraph struct{ db *memDB }

func (s *memFriendGraph) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return append([]string{}, s.db.friends[userID]...), nil
}

// --- Notifier ---

type notification struct {
	UserID  string
	Kind    string
	Payload map[string]string
}

type memNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *memNotifier) Notify(ctx context.Context, userID, kind string, payload map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pl := make(map[string]string, len(payload))
	for k, v := range payload {
		pl[k] = v
	}
	n.sent = append(n.sent, notification{UserID: userID, Kind: kind, Payload: pl})
}

func (n *memNotifier) byKind(kind string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, sent := range n.sent {
		if sent.Kind == kind {
			out = append(out, sent)
		}
	}
	return out
}
