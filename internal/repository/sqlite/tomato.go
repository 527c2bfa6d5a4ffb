package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

var _ repository.TomatoRepository = (*DB)(nil)

func (db *DB) InsertTomato(ctx context.Context, tomato *model.Tomato) error {
	if tomato.ID == "" {
		tomato.ID = xid.New().String()
	}
	if tomato.CreatedAt.IsZero() {
		tomato.CreatedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tomatoes (id, user_id, completed_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		tomato.ID,
		nullableID(tomato.UserID),
		tomato.CompletedAt.UnixNano(),
		tomato.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting tomato %s: %w", tomato.ID, err)
	}
	return nil
}

func (db *DB) CountTomatoesByUser(ctx context.Context, userIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, COUNT(*) FROM tomatoes
		 WHERE user_id IN (`+placeholders+`)
		 GROUP BY user_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting tomatoes per user: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var n int64
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tomato count: %w", err)
		}
		counts[userID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tomato counts: %w", err)
	}
	return counts, nil
}

func (db *DB) CountTomatoesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tomatoes WHERE user_id = ? AND completed_at >= ?`,
		userID, since.UnixNano(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting tomatoes since %s: %w", since, err)
	}
	return n, nil
}

func (db *DB) CountTomatoesBetween(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tomatoes
		 WHERE user_id = ? AND completed_at >= ? AND completed_at < ?`,
		userID, from.UnixNano(), to.UnixNano(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting tomatoes between %s and %s: %w", from, to, err)
	}
	return n, nil
}

func (db *DB) DetachTomatoesFromUser(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE tomatoes SET user_id = NULL WHERE user_id = ?`, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: detaching tomatoes from user %s: %w", userID, err)
	}
	return nil
}

// nullableID maps the empty string onto SQL NULL so detached rows never
// accidentally equal an empty-string user ID.
func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}
