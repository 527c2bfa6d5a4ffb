package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

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

	if _, err := db.tomatoes.InsertOne(ctx, tomato); err != nil {
		return fmt.Errorf("mongodb: inserting tomato %s: %w", tomato.ID, err)
	}
	return nil
}

func (db *DB) CountTomatoesByUser(ctx context.Context, userIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "user_id", Value: bson.D{{Key: "$in", Value: userIDs}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$user_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := db.tomatoes.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb: counting tomatoes per user: %w", err)
	}

	var rows []struct {
		UserID string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongodb: decoding tomato counts: %w", err)
	}

	for _, row := range rows {
		counts[row.UserID] = row.Count
	}
	return counts, nil
}

func (db *DB) CountTomatoesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	n, err := db.tomatoes.CountDocuments(ctx, bson.M{
		"user_id":      userID,
		"completed_at": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("mongodb: counting tomatoes since %s: %w", since, err)
	}
	return n, nil
}

func (db *DB) CountTomatoesBetween(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	n, err := db.tomatoes.CountDocuments(ctx, bson.M{
		"user_id":      userID,
		"completed_at": bson.M{"$gte": from, "$lt": to},
	})
	if err != nil {
		return 0, fmt.Errorf("mongodb: counting tomatoes between %s and %s: %w", from, to, err)
	}
	return n, nil
}

// DetachTomatoesFromUser unsets the back reference instead of writing
// null, so reads keep decoding into a plain string field.
func (db *DB) DetachTomatoesFromUser(ctx context.Context, userID string) error {
	_, err := db.tomatoes.UpdateMany(ctx,
		bson.M{"user_id": userID},
		bson.M{"$unset": bson.M{"user_id": ""}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: detaching tomatoes from user %s: %w", userID, err)
	}
	return nil
}
