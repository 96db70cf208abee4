package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Turn is one message in a conversation, spoken or typed, by either
// the user or the assistant.
type Turn struct {
	ID              int64
	UserID          int64
	Direction       string
	Content         string
	VoiceURL        string
	Flagged         bool
	ModerationNotes string
	Sentiment       string
	CreatedAt       time.Time
}

// AppendTurn inserts a turn for the given user. The existence check and
// insert run in one transaction so a turn can never be attached to a
// user deleted concurrently.
func (s *Store) AppendTurn(ctx context.Context, userID int64, direction, content, voiceURL string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: append turn: %w", err)
	}
	defer rollback(tx)

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: id %d", ErrUnknownUser, userID)
		}
		return 0, fmt.Errorf("store: append turn: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO turns (user_id, direction, content, voice_url, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, direction, content, voiceURL, now())
	if err != nil {
		return 0, fmt.Errorf("store: append turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: append turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: append turn: %w", err)
	}
	return id, nil
}

// TurnByID fetches one turn.
func (s *Store) TurnByID(ctx context.Context, id int64) (*Turn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, direction, content, voice_url, flagged,
		        moderation_notes, sentiment, created_at
		 FROM turns WHERE id = ?`, id)
	return scanTurn(row)
}

// ListTurns returns a user's conversation in chronological order,
// capped at limit (0 means no cap).
func (s *Store) ListTurns(ctx context.Context, userID int64, limit int) ([]*Turn, error) {
	query := `SELECT id, user_id, direction, content, voice_url, flagged,
	                 moderation_notes, sentiment, created_at
	          FROM turns WHERE user_id = ? ORDER BY created_at, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ModerateTurn records a moderation decision on a turn.
func (s *Store) ModerateTurn(ctx context.Context, id int64, flagged bool, notes, sentiment string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE turns SET flagged = ?, moderation_notes = ?, sentiment = ? WHERE id = ?`,
		flagged, notes, sentiment, id)
	if err != nil {
		return fmt.Errorf("store: moderate turn: %w", err)
	}
	return requireRow(res)
}

func scanTurn(row interface{ Scan(...any) error }) (*Turn, error) {
	var t Turn
	err := row.Scan(&t.ID, &t.UserID, &t.Direction, &t.Content, &t.VoiceURL,
		&t.Flagged, &t.ModerationNotes, &t.Sentiment, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan turn: %w", err)
	}
	return &t, nil
}
