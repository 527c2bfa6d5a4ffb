package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

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

	if _, err := db.projects.InsertOne(ctx, project); err != nil {
		return fmt.Errorf("mongodb: inserting project %s: %w", project.ID, err)
	}
	return nil
}

func (db *DB) ListProjectsByUser(ctx context.Context, userID string) ([]model.Project, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := db.projects.Find(ctx, bson.M{"user_id": userID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing projects for user %s: %w", userID, err)
	}

	projects := []model.Project{}
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("mongodb: decoding projects: %w", err)
	}
	return projects, nil
}

func (db *DB) DetachProjectsFromUser(ctx context.Context, userID string) error {
	_, err := db.projects.UpdateMany(ctx,
		bson.M{"user_id": userID},
		bson.M{"$unset": bson.M{"user_id": ""}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: detaching projects from user %s: %w", userID, err)
	}
	return nil
}
