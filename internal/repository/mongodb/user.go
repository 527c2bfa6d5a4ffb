package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

// userDoc is the stored shape: the model plus derived key arrays.
//
// A compound multikey index over authorizations.provider and
// authorizations.uid would not pair the values element-wise, so it cannot
// express "no two accounts share a (provider, uid)". Instead each write
// derives one composite key per authorization and a flat list of token
// digests, and the unique indexes cover those arrays.
type userDoc struct {
	model.User   `bson:",inline"`
	AuthKeys     []string `bson:"auth_keys,omitempty"`
	TokenDigests []string `bson:"token_digests,omitempty"`
}

func authKey(provider, uid string) string {
	return provider + ":" + uid
}

func docFor(user *model.User) userDoc {
	doc := userDoc{User: *user}
	for _, a := range user.Authorizations {
		doc.AuthKeys = append(doc.AuthKeys, authKey(a.Provider, a.UID))
		if a.TokenDigest != "" {
			doc.TokenDigests = append(doc.TokenDigests, a.TokenDigest)
		}
	}
	return doc
}

func (db *DB) InsertUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if _, err := db.users.InsertOne(ctx, docFor(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Duplicate("authorization", "identity or token already linked")
		}
		return fmt.Errorf("mongodb: inserting user %s: %w", user.ID, err)
	}
	return nil
}

// UpdateUser replaces the whole document in one write, so the embedded
// authorizations and the derived key arrays can never drift apart.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	res, err := db.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, docFor(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Duplicate("authorization", "identity or token already linked")
		}
		return fmt.Errorf("mongodb: updating user %s: %w", user.ID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

func (db *DB) findOneUser(ctx context.Context, filter bson.M, ref string) (*model.User, error) {
	var u model.User
	err := db.users.FindOne(ctx, filter).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", ref)
		}
		return nil, fmt.Errorf("mongodb: finding user (%s): %w", ref, err)
	}
	return &u, nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.findOneUser(ctx, bson.M{"_id": id}, id)
}

// FindUserByAuthorization matches the derived composite keys, which exist
// exactly when the embedded authorization does.
func (db *DB) FindUserByAuthorization(ctx context.Context, provider, uid string) (*model.User, error) {
	return db.findOneUser(ctx, bson.M{"auth_keys": authKey(provider, uid)}, provider+"/"+uid)
}

// FindUserByLegacyUID matches the deprecated top-level fields only; the
// embedded authorizations live under a different path and cannot satisfy
// this filter.
func (db *DB) FindUserByLegacyUID(ctx context.Context, provider, uid string) (*model.User, error) {
	return db.findOneUser(ctx, bson.M{"provider": provider, "uid": uid}, provider+"/"+uid)
}

func (db *DB) FindUserByTokenDigest(ctx context.Context, digest string) (*model.User, error) {
	if digest == "" {
		return nil, apperror.NotFound("user", "empty token digest")
	}
	return db.findOneUser(ctx, bson.M{"token_digests": digest}, "token digest")
}

func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := db.users.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing users: %w", err)
	}

	users := []model.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("mongodb: decoding users: %w", err)
	}
	return users, nil
}

func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb: deleting user %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
