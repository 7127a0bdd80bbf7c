package recordings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voice-notes-ai/backend/internal/models"
)

// ErrNotFound is returned when no recording matches the id.
var ErrNotFound = errors.New("recording not found")

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `SELECT id, audio_key, duration, timestamp, transcription FROM recordings`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	if err := row.Scan(&rec.ID, &rec.AudioKey, &rec.Duration, &rec.Timestamp, &rec.Transcription); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Create inserts a recording after its audio object was uploaded.
func (r *Repository) Create(ctx context.Context, audioKey, duration string) (*models.Recording, error) {
	const q = `INSERT INTO recordings (audio_key, duration) VALUES ($1, $2)
		RETURNING id, audio_key, duration, timestamp, transcription`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, audioKey, duration))
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}
	return rec, nil
}

// GetByID returns a recording by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	return scanRecording(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
}

// List returns all recordings, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Recording, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` ORDER BY timestamp DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Recording{}
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// UpdateTranscription attaches a transcription and returns the updated row.
func (r *Repository) UpdateTranscription(ctx context.Context, id uuid.UUID, transcription string) (*models.Recording, error) {
	const q = `UPDATE recordings SET transcription = $1 WHERE id = $2
		RETURNING id, audio_key, duration, timestamp, transcription`
	return scanRecording(r.pool.QueryRow(ctx, q, transcription, id))
}
