// Package mongodb implements the repository interfaces on MongoDB, the
// primary production store. Users live in one collection as documents
// with embedded authorizations; tomatoes, projects and scores get a
// collection each.
//
// Uniqueness of provider identities and access tokens is enforced with
// unique indexes over derived key arrays (see user.go). Violations reach
// callers as apperror.ErrDuplicate, same as the other backends.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomatrack/tomatrack/internal/repository"
)

// DB wraps a client plus the collection handles and implements
// repository.Store.
type DB struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *mongo.Collection
	tomatoes *mongo.Collection
	projects *mongo.Collection
	scores   *mongo.Collection
	logger   *slog.Logger
}

var _ repository.Store = (*DB)(nil)

// New connects, waits for the server to answer a ping and ensures the
// indexes exist. The database is often still starting when we are, so
// the first ping retries with exponential backoff until ctx expires or
// the attempts run out.
func New(ctx context.Context, uri, dbName string, logger *slog.Logger) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}

	ping := func() error { return client.Ping(ctx, nil) }
	notify := func(err error, wait time.Duration) {
		logger.Warn("mongodb not ready, retrying", "wait", wait, "error", err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		disconnect(client)
		// The URI can carry credentials, so it stays out of the error.
		return nil, fmt.Errorf("mongodb: pinging database %q: %w", dbName, err)
	}

	database := client.Database(dbName)
	db := &DB{
		client:   client,
		db:       database,
		users:    database.Collection("users"),
		tomatoes: database.Collection("tomatoes"),
		projects: database.Collection("projects"),
		scores:   database.Collection("scores"),
		logger:   logger,
	}

	if err := db.ensureIndexes(ctx); err != nil {
		disconnect(client)
		return nil, err
	}
	return db, nil
}

// Ping reports whether the deployment is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, nil)
}

func (db *DB) Close() error {
	return disconnect(db.client)
}

func disconnect(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	// The partial filter expressions skip documents whose derived arrays
	// are empty. Without them, every legacy-only account would collide on
	// the null index entry.
	_, err := db.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "auth_keys", Value: 1}},
			Options: options.Index().
				SetName("auth_keys_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: "auth_keys.0", Value: bson.D{{Key: "$exists", Value: true}}},
				}),
		},
		{
			Keys: bson.D{{Key: "token_digests", Value: 1}},
			Options: options.Index().
				SetName("token_digests_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: "token_digests.0", Value: bson.D{{Key: "$exists", Value: true}}},
				}),
		},
		{
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "uid", Value: 1}},
			Options: options.Index().SetName("legacy_identity"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating user indexes: %w", err)
	}

	_, err = db.tomatoes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "completed_at", Value: -1}},
		Options: options.Index().SetName("user_completed"),
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating tomato indexes: %w", err)
	}

	_, err = db.projects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName("user"),
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating project indexes: %w", err)
	}

	_, err = db.scores.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "day", Value: 1}},
		Options: options.Index().SetName("day"),
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating score indexes: %w", err)
	}

	return nil
}
