package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voice-notes-ai/backend/internal/models"
)

const pgForeignKeyViolation = "23503"

// Repository handles chat message persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a message and fills its generated id.
func (r *Repository) Create(ctx context.Context, msg *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (recording_id, role, content, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id, timestamp`
	err := r.pool.QueryRow(ctx, q, msg.RecordingID, msg.Role, msg.Content, msg.Timestamp).Scan(&msg.ID, &msg.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrRecordingNotFound
		}
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// ListByRecording returns messages for a recording, oldest first.
func (r *Repository) ListByRecording(ctx context.Context, recordingID uuid.UUID) ([]models.ChatMessage, error) {
	const q = `SELECT id, recording_id, role, content, timestamp
		FROM chat_messages WHERE recording_id = $1 ORDER BY timestamp ASC, id ASC`
	rows, err := r.pool.Query(ctx, q, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.RecordingID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
