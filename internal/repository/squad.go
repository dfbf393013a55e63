package repository

import (
	"context"
	"fmt"
	"time"

	"squadup-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SquadRepository handles database operations for the squad aggregate:
// squads, their members and their messages. All cross-request invariants
// (one squad per check, no duplicate membership, no over-admission, no
// re-fired warn/grace) are enforced here with unique constraints and
// conditional writes, never with in-process locks.
type SquadRepository struct {
	db *pgxpool.Pool
}

// NewSquadRepository creates a new squad repository
func NewSquadRepository(db *pgxpool.Pool) *SquadRepository {
	return &SquadRepository{db: db}
}

const squadColumns = `id, name, check_id, event_id, expires_at, warned_at,
	grace_started_at, to_char(locked_date, 'YYYY-MM-DD'), created_at`

func scanSquad(row pgx.Row) (*models.Squad, error) {
	var s models.Squad
	err := row.Scan(
		&s.ID, &s.Name, &s.CheckID, &s.EventID, &s.ExpiresAt, &s.WarnedAt,
		&s.GraceStartedAt, &s.LockedDate, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a squad together with its initial members and messages in
// one transaction. A second squad for the same check trips the partial
// unique index on check_id and comes back as ErrAlreadyExists, which the
// formation service resolves by fetching the winner.
func (r *SquadRepository) Create(ctx context.Context, squad *models.Squad, memberIDs []string, msgs []*models.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO squads (id, name, check_id, event_id, expires_at, locked_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, squad.ID, squad.Name, squad.CheckID, squad.EventID, squad.ExpiresAt, squad.LockedDate, squad.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "squads_check_id_key") {
			return fmt.Errorf("squad for check: %w", models.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create squad: %w", err)
	}

	for _, userID := range memberIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO squad_members (squad_id, user_id, joined_at)
			VALUES ($1, $2, $3)
		`, squad.ID, userID, squad.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert member %s: %w", userID, err)
		}
	}

	for _, msg := range msgs {
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, squad_id, sender_id, text, is_system, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, msg.ID, msg.SquadID, msg.SenderID, msg.Text, msg.IsSystem, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit squad creation: %w", err)
	}
	return nil
}

// GetByID retrieves a squad by ID
func (r *SquadRepository) GetByID(ctx context.Context, id string) (*models.Squad, error) {
	query := `SELECT ` + squadColumns + ` FROM squads WHERE id = $1`
	squad, err := scanSquad(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("squad %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get squad: %w", err)
	}
	return squad, nil
}

// GetByCheckID retrieves the canonical squad formed from a check.
func (r *SquadRepository) GetByCheckID(ctx context.Context, checkID string) (*models.Squad, error) {
	query := `SELECT ` + squadColumns + ` FROM squads WHERE check_id = $1`
	squad, err := scanSquad(r.db.QueryRow(ctx, query, checkID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("squad for check %s: %w", checkID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get squad by check: %w", err)
	}
	return squad, nil
}

// SquadIDsByCheckIDs maps check ids to the squad formed from each, for
// checks that have one.
func (r *SquadRepository) SquadIDsByCheckIDs(ctx context.Context, checkIDs []string) (map[string]string, error) {
	if len(checkIDs) == 0 {
		return map[string]string{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT check_id, id FROM squads WHERE check_id = ANY($1)`, checkIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to map checks to squads: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var checkID, squadID string
		if err := rows.Scan(&checkID, &squadID); err != nil {
			return nil, fmt.Errorf("failed to scan squad mapping: %w", err)
		}
		out[checkID] = squadID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read squad mapping: %w", err)
	}
	return out, nil
}

// AddMember inserts a membership row, enforcing the capacity limit
// atomically. The squad row is locked for the duration of the transaction so
// concurrent joins serialize; the count check therefore sees every committed
// and in-flight admission. limit <= 0 means unlimited (squad not
// check-linked). Returns ErrAlreadyExists for an existing membership and
// ErrSquadFull when the insert would exceed the limit.
func (r *SquadRepository) AddMember(ctx context.Context, squadID, userID string, limit int, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM squads WHERE id = $1 FOR UPDATE`, squadID).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("squad %s: %w", squadID, models.ErrNotFound)
		}
		return fmt.Errorf("failed to lock squad: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO squad_members (squad_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (squad_id, user_id) DO NOTHING
	`, squadID, userID, now)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("member %s in squad %s: %w", userID, squadID, models.ErrAlreadyExists)
	}

	if limit > 0 {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM squad_members WHERE squad_id = $1`, squadID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count members: %w", err)
		}
		if count > limit {
			return fmt.Errorf("squad %s at capacity %d: %w", squadID, limit, models.ErrSquadFull)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit join: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership row. The squad stays in place even when
// this was the last member; only the lifecycle sweep deletes squads.
func (r *SquadRepository) RemoveMember(ctx context.Context, squadID, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM squad_members WHERE squad_id = $1 AND user_id = $2`, squadID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("member %s in squad %s: %w", userID, squadID, models.ErrNotFound)
	}
	return nil
}

// IsMember checks whether a user belongs to a squad.
func (r *SquadRepository) IsMember(ctx context.Context, squadID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM squad_members WHERE squad_id = $1 AND user_id = $2)`,
		squadID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// ListMemberIDs returns the user ids of a squad's members.
func (r *SquadRepository) ListMemberIDs(ctx context.Context, squadID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM squad_members WHERE squad_id = $1 ORDER BY joined_at`, squadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}
	return ids, nil
}

// AppendMessage appends a chat or system message to a squad.
func (r *SquadRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO messages (id, squad_id, sender_id, text, is_system, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.SquadID, msg.SenderID, msg.Text, msg.IsSystem, msg.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("squad %s: %w", msg.SquadID, models.ErrNotFound)
		}
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListMessages returns a squad's messages in send order.
func (r *SquadRepository) ListMessages(ctx context.Context, squadID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, squad_id, sender_id, text, is_system, created_at
		FROM messages
		WHERE squad_id = $1
		ORDER BY seq
		LIMIT $2
	`, squadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SquadID, &m.SenderID, &m.Text, &m.IsSystem, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return msgs, nil
}

// ListGraceCandidates returns check-linked squads without a locked date that
// have not entered grace yet but whose originating check's timer has run out.
func (r *SquadRepository) ListGraceCandidates(ctx context.Context, now time.Time) ([]*models.Squad, error) {
	query := `
		SELECT s.id, s.name, s.check_id, s.event_id, s.expires_at, s.warned_at,
			s.grace_started_at, to_char(s.locked_date, 'YYYY-MM-DD'), s.created_at
		FROM squads s
		JOIN checks c ON c.id = s.check_id
		WHERE s.grace_started_at IS NULL
		  AND s.locked_date IS NULL
		  AND s.expires_at IS NOT NULL
		  AND c.expires_at IS NOT NULL
		  AND c.expires_at <= $1
	`
	return r.listSquads(ctx, query, now)
}

// ListWarnCandidates returns squads due a one-hour warning: not yet warned,
// timer set, expiry within the window but not already past.
func (r *SquadRepository) ListWarnCandidates(ctx context.Context, now time.Time) ([]*models.Squad, error) {
	query := `
		SELECT ` + squadColumns + `
		FROM squads
		WHERE warned_at IS NULL
		  AND expires_at IS NOT NULL
		  AND expires_at > $1
		  AND expires_at <= $2
	`
	return r.listSquads(ctx, query, now, now.Add(models.WarnWindow))
}

// ListExpired returns squads whose timer has run out.
func (r *SquadRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.Squad, error) {
	query := `
		SELECT ` + squadColumns + `
		FROM squads
		WHERE expires_at IS NOT NULL AND expires_at <= $1
	`
	return r.listSquads(ctx, query, now)
}

func (r *SquadRepository) listSquads(ctx context.Context, query string, args ...any) ([]*models.Squad, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list squads: %w", err)
	}
	defer rows.Close()

	var squads []*models.Squad
	for rows.Next() {
		squad, err := scanSquad(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan squad: %w", err)
		}
		squads = append(squads, squad)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read squads: %w", err)
	}
	return squads, nil
}

// StartGrace sets grace_started_at if and only if it is still unset. The
// single conditional UPDATE is the gate that keeps overlapping sweep runs
// from re-firing the transition.
func (r *SquadRepository) StartGrace(ctx context.Context, squadID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE squads SET grace_started_at = $2
		WHERE id = $1 AND grace_started_at IS NULL AND expires_at IS NOT NULL
	`, squadID, now)
	if err != nil {
		return false, fmt.Errorf("failed to start grace: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkWarned sets warned_at if and only if it is still unset.
func (r *SquadRepository) MarkWarned(ctx context.Context, squadID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE squads SET warned_at = $2
		WHERE id = $1 AND warned_at IS NULL AND expires_at IS NOT NULL
	`, squadID, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark warned: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteExpired deletes a squad whose timer has actually run out, cascading
// members and messages. The expiry recheck inside the DELETE makes the
// operation safe against a concurrent date lock or extension that pushed the
// timer back out.
func (r *SquadRepository) DeleteExpired(ctx context.Context, squadID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM squads
		WHERE id = $1 AND expires_at IS NOT NULL AND expires_at <= $2
	`, squadID, now)
	if err != nil {
		return false, fmt.Errorf("failed to delete expired squad: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetDate locks a date on the squad: new expiry, locked_date recorded,
// warn and grace markers reset so the fresh window can fire again.
func (r *SquadRepository) SetDate(ctx context.Context, squadID, lockedDate string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE squads
		SET locked_date = $2, expires_at = $3, warned_at = NULL, grace_started_at = NULL
		WHERE id = $1
	`, squadID, lockedDate, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("squad %s: %w", squadID, models.ErrNotFound)
	}
	return nil
}

// ClearDate removes the locked date. The expiry timer is left untouched.
func (r *SquadRepository) ClearDate(ctx context.Context, squadID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE squads SET locked_date = NULL WHERE id = $1`, squadID)
	if err != nil {
		return fmt.Errorf("failed to clear date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("squad %s: %w", squadID, models.ErrNotFound)
	}
	return nil
}

// Extend pushes the expiry out and clears the warn marker so the new window
// re-warns when it closes in.
func (r *SquadRepository) Extend(ctx context.Context, squadID string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE squads SET expires_at = $2, warned_at = NULL WHERE id = $1
	`, squadID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to extend squad: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("squad %s: %w", squadID, models.ErrNotFound)
	}
	return nil
}
