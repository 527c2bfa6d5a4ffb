package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

var _ repository.ScoreRepository = (*DB)(nil)

func (db *DB) InsertScore(ctx context.Context, score *model.Score) error {
	if score.ID == "" {
		score.ID = xid.New().String()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO scores (id, user_id, day, tomatoes, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		score.ID,
		nullableID(score.UserID),
		score.Day,
		score.Tomatoes,
		score.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting score %s: %w", score.ID, err)
	}
	return nil
}

func (db *DB) ListScoresByDay(ctx context.Context, day string) ([]model.Score, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, day, tomatoes, created_at FROM scores
		 WHERE day = ? ORDER BY tomatoes DESC, user_id`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing scores for day %s: %w", day, err)
	}
	defer rows.Close()

	scores := []model.Score{}
	for rows.Next() {
		var sc model.Score
		// user_id is NULL once the owning account was deleted.
		var userID sql.NullString
		if err := rows.Scan(&sc.ID, &userID, &sc.Day, &sc.Tomatoes, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning score row: %w", err)
		}
		sc.UserID = userID.String
		scores = append(scores, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating scores: %w", err)
	}
	return scores, nil
}

func (db *DB) DetachScoresFromUser(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE scores SET user_id = NULL WHERE user_id = ?`, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: detaching scores from user %s: %w", userID, err)
	}
	return nil
}
