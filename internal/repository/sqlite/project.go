package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

var _ repository.ProjectRepository = (*DB)(nil)

func (db *DB) InsertProject(ctx context.Context, project *model.Project) error {
	if project.ID == "" {
		project.ID = xid.New().String()
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		project.ID,
		nullableID(project.UserID),
		project.Name,
		project.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting project %s: %w", project.ID, err)
	}
	return nil
}

func (db *DB) ListProjectsByUser(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, created_at FROM projects
		 WHERE user_id = ? ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects for user %s: %w", userID, err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p := model.Project{UserID: userID}
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating projects: %w", err)
	}
	return projects, nil
}

func (db *DB) DetachProjectsFromUser(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE projects SET user_id = NULL WHERE user_id = ?`, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: detaching projects from user %s: %w", userID, err)
	}
	return nil
}
