package repository

import (
	"context"
	"fmt"
	"time"

	"squadup-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckRepository handles database operations for interest checks and their
// responses.
type CheckRepository struct {
	db *pgxpool.Pool
}

// NewCheckRepository creates a new check repository
func NewCheckRepository(db *pgxpool.Pool) *CheckRepository {
	return &CheckRepository{db: db}
}

const checkColumns = `id, author_id, text, max_squad_size, expires_at,
	to_char(event_date, 'YYYY-MM-DD'), event_time, created_at`

func scanCheck(row pgx.Row) (*models.InterestCheck, error) {
	var c models.InterestCheck
	err := row.Scan(
		&c.ID, &c.AuthorID, &c.Text, &c.MaxSquadSize, &c.ExpiresAt,
		&c.EventDate, &c.EventTime, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create creates a new interest check
func (r *CheckRepository) Create(ctx context.Context, check *models.InterestCheck) error {
	query := `
		INSERT INTO checks (id, author_id, text, max_squad_size, expires_at, event_date, event_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		check.ID, check.AuthorID, check.Text, check.MaxSquadSize,
		check.ExpiresAt, check.EventDate, check.EventTime, check.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create check: %w", err)
	}
	return nil
}

// GetByID retrieves a check by ID
func (r *CheckRepository) GetByID(ctx context.Context, id string) (*models.InterestCheck, error) {
	query := `SELECT ` + checkColumns + ` FROM checks WHERE id = $1`
	check, err := scanCheck(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("check %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get check: %w", err)
	}
	return check, nil
}

// Update persists the author-editable fields of a check.
func (r *CheckRepository) Update(ctx context.Context, check *models.InterestCheck) error {
	query := `
		UPDATE checks
		SET text = $2, max_squad_size = $3, event_date = $4, event_time = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		check.ID, check.Text, check.MaxSquadSize, check.EventDate, check.EventTime,
	)
	if err != nil {
		return fmt.Errorf("failed to update check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("check %s: %w", check.ID, models.ErrNotFound)
	}
	return nil
}

// SetEventDate mirrors a locked date onto the check.
func (r *CheckRepository) SetEventDate(ctx context.Context, checkID string, date string, eventTime *string) error {
	query := `UPDATE checks SET event_date = $2, event_time = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, checkID, date, eventTime)
	if err != nil {
		return fmt.Errorf("failed to set event date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("check %s: %w", checkID, models.ErrNotFound)
	}
	return nil
}

// ClearEventDate removes the event date and time from the check.
func (r *CheckRepository) ClearEventDate(ctx context.Context, checkID string) error {
	query := `UPDATE checks SET event_date = NULL, event_time = NULL WHERE id = $1`
	_, err := r.db.Exec(ctx, query, checkID)
	if err != nil {
		return fmt.Errorf("failed to clear event date: %w", err)
	}
	return nil
}

// Delete removes a check. A squad still referencing it blocks the delete at
// the foreign key, surfaced as ErrConflict.
func (r *CheckRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM checks WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("check %s has a squad: %w", id, models.ErrConflict)
		}
		return fmt.Errorf("failed to delete check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("check %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListActiveByAuthors returns non-expired checks authored by any of the
// given users, newest first.
func (r *CheckRepository) ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]*models.InterestCheck, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + checkColumns + `
		FROM checks
		WHERE author_id = ANY($1) AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, authorIDs, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	defer rows.Close()

	var checks []*models.InterestCheck
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		checks = append(checks, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checks: %w", err)
	}
	return checks, nil
}

// UpsertResponse records or updates a user's response to a check. A user has
// at most one live response per check.
func (r *CheckRepository) UpsertResponse(ctx context.Context, resp *models.CheckResponse) error {
	query := `
		INSERT INTO check_responses (check_id, user_id, response, responded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (check_id, user_id)
		DO UPDATE SET response = excluded.response, responded_at = excluded.responded_at
	`
	_, err := r.db.Exec(ctx, query, resp.CheckID, resp.UserID, resp.Response, resp.RespondedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("check %s: %w", resp.CheckID, models.ErrNotFound)
		}
		return fmt.Errorf("failed to upsert response: %w", err)
	}
	return nil
}

// DeleteResponse withdraws a user's response. Absence means "no response",
// so deleting a response that does not exist is not an error.
func (r *CheckRepository) DeleteResponse(ctx context.Context, checkID, userID string) error {
	query := `DELETE FROM check_responses WHERE check_id = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, checkID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete response: %w", err)
	}
	return nil
}

// ListResponses returns all live responses to a check.
func (r *CheckRepository) ListResponses(ctx context.Context, checkID string) ([]*models.CheckResponse, error) {
	query := `
		SELECT check_id, user_id, response, responded_at
		FROM check_responses
		WHERE check_id = $1
		ORDER BY responded_at
	`
	rows, err := r.db.Query(ctx, query, checkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	var responses []*models.CheckResponse
	for rows.Next() {
		var resp models.CheckResponse
		if err := rows.Scan(&resp.CheckID, &resp.UserID, &resp.Response, &resp.RespondedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		responses = append(responses, &resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read responses: %w", err)
	}
	return responses, nil
}
