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

var _ repository.ScoreRepository = (*DB)(nil)

func (db *DB) InsertScore(ctx context.Context, score *model.Score) error {
	if score.ID == "" {
		score.ID = xid.New().String()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now()
	}

	if _, err := db.scores.InsertOne(ctx, score); err != nil {
		return fmt.Errorf("mongodb: inserting score %s: %w", score.ID, err)
	}
	return nil
}

func (db *DB) ListScoresByDay(ctx context.Context, day string) ([]model.Score, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "tomatoes", Value: -1}, {Key: "user_id", Value: 1}})
	cursor, err := db.scores.Find(ctx, bson.M{"day": day}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing scores for day %s: %w", day, err)
	}

	scores := []model.Score{}
	if err := cursor.All(ctx, &scores); err != nil {
		return nil, fmt.Errorf("mongodb: decoding scores: %w", err)
	}
	return scores, nil
}

func (db *DB) DetachScoresFromUser(ctx context.Context, userID string) error {
	_, err := db.scores.UpdateMany(ctx,
		bson.M{"user_id": userID},
		bson.M{"$unset": bson.M{"user_id": ""}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: detaching scores from user %s: %w", userID, err)
	}
	return nil
}
