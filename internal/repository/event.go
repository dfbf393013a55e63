package repository

import (
	"context"
	"fmt"

	"squadup-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository handles database operations for imported events
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create creates a new event
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (id, title, venue, source_url, image_url, event_date, event_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		event.ID, event.Title, event.Venue, event.SourceURL, event.ImageURL,
		event.EventDate, event.EventTime, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by ID
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := `
		SELECT id, title, venue, source_url, image_url,
			to_char(event_date, 'YYYY-MM-DD'), event_time, created_at
		FROM events
		WHERE id = $1
	`
	var e models.Event
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Title, &e.Venue, &e.SourceURL, &e.ImageURL,
		&e.EventDate, &e.EventTime, &e.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}
